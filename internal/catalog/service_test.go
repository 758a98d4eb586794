package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/onnwee/ethosprompt/backend/internal/cache"
	"github.com/onnwee/ethosprompt/backend/internal/circuitbreaker"
	"github.com/onnwee/ethosprompt/backend/internal/db"
)

type fakeStore struct {
	mu         sync.Mutex
	categories []db.Category
	prompts    map[int64]db.Prompt
	err        error
	calls      map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		categories: []db.Category{
			{ID: 1, Slug: "writing", Name: "Writing"},
			{ID: 2, Slug: "coding", Name: "Coding"},
		},
		prompts: map[int64]db.Prompt{
			10: {ID: 10, CategoryID: 1, Title: "Essay outline", Tags: []string{"essay"}},
			11: {ID: 11, CategoryID: 2, Title: "Code review", Tags: []string{}},
		},
		calls: map[string]int{},
	}
}

func (f *fakeStore) record(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	return f.err
}

func (f *fakeStore) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeStore) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeStore) ListCategories(ctx context.Context) ([]db.Category, error) {
	if err := f.record("ListCategories"); err != nil {
		return nil, err
	}
	return f.categories, nil
}

func (f *fakeStore) GetCategoryBySlug(ctx context.Context, slug string) (db.Category, error) {
	if err := f.record("GetCategoryBySlug"); err != nil {
		return db.Category{}, err
	}
	for _, c := range f.categories {
		if c.Slug == slug {
			return c, nil
		}
	}
	return db.Category{}, sql.ErrNoRows
}

func (f *fakeStore) ListSubcategories(ctx context.Context, categoryID int64) ([]db.Subcategory, error) {
	if err := f.record("ListSubcategories"); err != nil {
		return nil, err
	}
	return []db.Subcategory{}, nil
}

func (f *fakeStore) ListPromptsByCategory(ctx context.Context, arg db.ListPromptsByCategoryParams) ([]db.Prompt, error) {
	if err := f.record("ListPromptsByCategory"); err != nil {
		return nil, err
	}
	out := []db.Prompt{}
	for _, p := range f.prompts {
		if p.CategoryID == arg.CategoryID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) GetPrompt(ctx context.Context, id int64) (db.Prompt, error) {
	if err := f.record("GetPrompt"); err != nil {
		return db.Prompt{}, err
	}
	p, ok := f.prompts[id]
	if !ok {
		return db.Prompt{}, sql.ErrNoRows
	}
	return p, nil
}

func newTestService(t *testing.T, store Store) (*Service, *cache.AdaptiveCache[[]byte], *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	c := cache.New[[]byte](cache.Config{
		Name:                "catalog_test",
		DefaultTTL:          time.Minute,
		MemoryCheckInterval: -1,
		Clock:               mock,
		Memory:              cache.NoMemory{},
	})
	t.Cleanup(c.Close)
	return NewService(store, c, Options{FailureThreshold: 3, BreakerTimeout: time.Hour}), c, mock
}

func TestCategoriesAreCached(t *testing.T) {
	store := newFakeStore()
	svc, _, _ := newTestService(t, store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		raw, err := svc.Categories(ctx)
		if err != nil {
			t.Fatalf("Categories: %v", err)
		}
		var cats []db.Category
		if err := json.Unmarshal(raw, &cats); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(cats) != 2 || cats[0].Slug != "writing" {
			t.Errorf("unexpected categories: %+v", cats)
		}
	}
	if n := store.count("ListCategories"); n != 1 {
		t.Errorf("Expected one database read, got %d", n)
	}
}

func TestCategoryPrompts(t *testing.T) {
	svc, _, _ := newTestService(t, newFakeStore())

	raw, err := svc.CategoryPrompts(context.Background(), "writing")
	if err != nil {
		t.Fatalf("CategoryPrompts: %v", err)
	}
	var page CategoryPrompts
	if err := json.Unmarshal(raw, &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Category.Slug != "writing" || len(page.Prompts) != 1 || page.Category.PromptCount != 1 {
		t.Errorf("unexpected page: %+v", page)
	}
}

func TestNotFound(t *testing.T) {
	store := newFakeStore()
	svc, c, _ := newTestService(t, store)
	ctx := context.Background()

	if _, err := svc.CategoryPrompts(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Prompt(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if c.Has(promptKey(999)) {
		t.Error("Misses must not be cached")
	}

	// Missing rows never count against the breaker.
	for i := 0; i < 5; i++ {
		svc.Prompt(ctx, 999)
	}
	if svc.breaker.GetState() != circuitbreaker.StateClosed {
		t.Error("not-found errors should not open the breaker")
	}
}

func TestStaleCopyServedWhenDatabaseFails(t *testing.T) {
	store := newFakeStore()
	svc, _, mock := newTestService(t, store)
	ctx := context.Background()

	first, err := svc.Prompt(ctx, 10)
	if err != nil {
		t.Fatalf("Prompt: %v", err)
	}

	mock.Add(2 * time.Minute)
	store.setErr(errors.New("connection refused"))

	got, err := svc.Prompt(ctx, 10)
	if err != nil {
		t.Fatalf("Expected stale copy, got error %v", err)
	}
	if string(got) != string(first) {
		t.Error("stale copy differs from the original document")
	}
}

func TestBreakerOpensOnRepeatedFailures(t *testing.T) {
	store := newFakeStore()
	store.setErr(errors.New("connection refused"))
	svc, _, _ := newTestService(t, store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Categories(ctx); err == nil {
			t.Fatal("expected an error with no stale copy")
		}
	}
	_, err := svc.Categories(ctx)
	if !errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen once the breaker trips, got %v", err)
	}
	if n := store.count("ListCategories"); n != 3 {
		t.Errorf("Open breaker should skip the database, got %d calls", n)
	}
}

func TestWarm(t *testing.T) {
	store := newFakeStore()
	svc, c, _ := newTestService(t, store)

	if n := svc.Warm(context.Background()); n != 3 {
		t.Errorf("Expected 3 documents warmed, got %d", n)
	}
	for _, key := range []string{keyCategories, categoryKey("writing"), categoryKey("coding")} {
		if !c.Has(key) {
			t.Errorf("Expected %s to be cached", key)
		}
	}

	if n := svc.Warm(context.Background()); n != 0 {
		t.Errorf("Second warm should find everything cached, got %d", n)
	}
	if st := c.Stats(); st.Hits != 0 || st.Misses != 0 {
		t.Errorf("Warming must not skew hit statistics, got hits=%d misses=%d", st.Hits, st.Misses)
	}
}

func TestRefresh(t *testing.T) {
	store := newFakeStore()
	svc, c, _ := newTestService(t, store)
	svc.Warm(context.Background())

	store.mu.Lock()
	store.categories = append(store.categories, db.Category{ID: 3, Slug: "marketing", Name: "Marketing"})
	store.mu.Unlock()

	if n := svc.Refresh(context.Background()); n != 4 {
		t.Errorf("Expected list and 3 pages refreshed, got %d", n)
	}
	if !c.Has(categoryKey("marketing")) {
		t.Error("New category page should be cached after refresh")
	}

	store.setErr(errors.New("connection refused"))
	if n := svc.Refresh(context.Background()); n != 0 {
		t.Errorf("Nothing should refresh while the database fails, got %d", n)
	}
	if !c.Has(keyCategories) || !c.Has(categoryKey("writing")) {
		t.Error("Failed refresh must keep the cached documents")
	}
}
