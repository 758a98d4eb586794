package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/onnwee/ethosprompt/backend/internal/cache"
	"github.com/onnwee/ethosprompt/backend/internal/circuitbreaker"
	"github.com/onnwee/ethosprompt/backend/internal/db"
	"github.com/onnwee/ethosprompt/backend/internal/logger"
	"github.com/onnwee/ethosprompt/backend/internal/metrics"
)

// ErrNotFound is returned when the requested category or prompt does not exist.
var ErrNotFound = errors.New("catalog: not found")

// DefaultPromptLimit caps how many prompts a category listing returns.
const DefaultPromptLimit = 100

// Store is the read side of the catalog database.
type Store interface {
	ListCategories(ctx context.Context) ([]db.Category, error)
	GetCategoryBySlug(ctx context.Context, slug string) (db.Category, error)
	ListSubcategories(ctx context.Context, categoryID int64) ([]db.Subcategory, error)
	ListPromptsByCategory(ctx context.Context, arg db.ListPromptsByCategoryParams) ([]db.Prompt, error)
	GetPrompt(ctx context.Context, id int64) (db.Prompt, error)
}

// CategoryPrompts is the payload of a category page.
type CategoryPrompts struct {
	Category      db.Category      `json:"category"`
	Subcategories []db.Subcategory `json:"subcategories"`
	Prompts       []db.Prompt      `json:"prompts"`
}

// Service serves JSON-encoded catalog documents through the cache.
// Database reads go through a circuit breaker, so an unavailable database
// fails fast and the cache falls back to its stale copies.
type Service struct {
	store        Store
	cache        *cache.AdaptiveCache[[]byte]
	breaker      *circuitbreaker.CircuitBreaker
	queryTimeout time.Duration
	promptLimit  int32
}

// Options tunes a Service. Zero values take defaults.
type Options struct {
	QueryTimeout     time.Duration
	PromptLimit      int32
	FailureThreshold int
	BreakerTimeout   time.Duration
}

func NewService(store Store, c *cache.AdaptiveCache[[]byte], opts Options) *Service {
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 5 * time.Second
	}
	if opts.PromptLimit <= 0 {
		opts.PromptLimit = DefaultPromptLimit
	}
	return &Service{
		store: store,
		cache: c,
		breaker: circuitbreaker.New(circuitbreaker.Config{
			Name:             "catalog_db",
			FailureThreshold: opts.FailureThreshold,
			Timeout:          opts.BreakerTimeout,
			IsFailure:        countsAgainstBreaker,
		}),
		queryTimeout: opts.QueryTimeout,
		promptLimit:  opts.PromptLimit,
	}
}

// A missing row or a caller hanging up says nothing about database health.
func countsAgainstBreaker(err error) bool {
	return err != nil &&
		!errors.Is(err, sql.ErrNoRows) &&
		!errors.Is(err, context.Canceled)
}

const keyCategories = "catalog:categories"

func categoryKey(slug string) string { return "catalog:category:" + slug + ":prompts" }
func promptKey(id int64) string      { return "catalog:prompt:" + strconv.FormatInt(id, 10) }

// Categories returns the category list as JSON.
func (s *Service) Categories(ctx context.Context) ([]byte, error) {
	return s.cache.GetWithFallback(ctx, keyCategories, s.fetchCategories, cache.SetOptions{
		Priority: cache.PriorityHigh,
	})
}

// CategoryPrompts returns the category, its subcategories and its prompts as JSON.
func (s *Service) CategoryPrompts(ctx context.Context, slug string) ([]byte, error) {
	return s.cache.GetWithFallback(ctx, categoryKey(slug), func(ctx context.Context) ([]byte, error) {
		return s.fetchCategoryPrompts(ctx, slug)
	}, cache.SetOptions{})
}

// Prompt returns a single prompt as JSON.
func (s *Service) Prompt(ctx context.Context, id int64) ([]byte, error) {
	return s.cache.GetWithFallback(ctx, promptKey(id), func(ctx context.Context) ([]byte, error) {
		return s.fetchPrompt(ctx, id)
	}, cache.SetOptions{Priority: cache.PriorityLow})
}

// Warm preloads the category list and every category page that is not already cached.
func (s *Service) Warm(ctx context.Context) int {
	return s.load(ctx, s.cache.Preload)
}

// Refresh refetches the category list and every category page, replacing
// cached copies. Pages whose fetch fails keep serving their current copy.
func (s *Service) Refresh(ctx context.Context) int {
	return s.load(ctx, s.cache.Refresh)
}

type loadFunc func(ctx context.Context, items []cache.PreloadItem[[]byte]) int

func (s *Service) load(ctx context.Context, fn loadFunc) int {
	loaded := fn(ctx, []cache.PreloadItem[[]byte]{
		{Key: keyCategories, Fetch: s.fetchCategories},
	})

	raw, ok := s.cache.Peek(keyCategories)
	if !ok {
		return loaded
	}
	var cats []db.Category
	if err := json.Unmarshal(raw, &cats); err != nil {
		logger.WithComponent("catalog").Warn("cannot decode cached categories", "error", err)
		return loaded
	}

	items := make([]cache.PreloadItem[[]byte], 0, len(cats))
	for _, c := range cats {
		slug := c.Slug
		items = append(items, cache.PreloadItem[[]byte]{
			Key: categoryKey(slug),
			Fetch: func(ctx context.Context) ([]byte, error) {
				return s.fetchCategoryPrompts(ctx, slug)
			},
		})
	}
	return loaded + fn(ctx, items)
}

func (s *Service) fetchCategories(ctx context.Context) ([]byte, error) {
	var cats []db.Category
	err := s.query(ctx, "list_categories", func(ctx context.Context) error {
		var err error
		cats, err = s.store.ListCategories(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(cats)
}

func (s *Service) fetchCategoryPrompts(ctx context.Context, slug string) ([]byte, error) {
	var out CategoryPrompts
	err := s.query(ctx, "category_prompts", func(ctx context.Context) error {
		cat, err := s.store.GetCategoryBySlug(ctx, slug)
		if err != nil {
			return err
		}
		subs, err := s.store.ListSubcategories(ctx, cat.ID)
		if err != nil {
			return err
		}
		prompts, err := s.store.ListPromptsByCategory(ctx, db.ListPromptsByCategoryParams{
			CategoryID: cat.ID,
			Limit:      s.promptLimit,
		})
		if err != nil {
			return err
		}
		cat.PromptCount = int64(len(prompts))
		out = CategoryPrompts{Category: cat, Subcategories: subs, Prompts: prompts}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

func (s *Service) fetchPrompt(ctx context.Context, id int64) ([]byte, error) {
	var p db.Prompt
	err := s.query(ctx, "get_prompt", func(ctx context.Context) error {
		var err error
		p, err = s.store.GetPrompt(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(p)
}

// query runs fn under the breaker with a timeout and records metrics.
// Missing rows become a permanent ErrNotFound so no stale copy is served for them.
func (s *Service) query(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	start := time.Now()
	err := s.breaker.Call(func() error { return fn(ctx) })
	metrics.DBOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return cache.Permanent(ErrNotFound)
	default:
		metrics.DBOperationErrors.WithLabelValues(op).Inc()
		return fmt.Errorf("catalog %s: %w", op, err)
	}
}
