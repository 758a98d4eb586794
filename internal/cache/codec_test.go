package cache

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/onnwee/ethosprompt/backend/internal/metrics"
)

type document struct {
	Title string   `json:"title"`
	Body  string   `json:"body"`
	Tags  []string `json:"tags"`
}

func TestCompressRoundTrip(t *testing.T) {
	doc := document{Title: "t", Body: strings.Repeat("lorem ipsum ", 500), Tags: []string{"a", "b"}}
	packed, err := compress(doc)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if packed[0] != tagBrotliJSON {
		t.Errorf("Expected JSON tag, got 0x%02x", packed[0])
	}
	got, err := decompress[document](packed)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if got.Body != doc.Body || got.Title != doc.Title || len(got.Tags) != 2 {
		t.Error("document did not round trip")
	}

	s := strings.Repeat("abc", 1000)
	packed, err = compress(s)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	gotS, err := decompress[string](packed)
	if err != nil || gotS != s {
		t.Errorf("string did not round trip: %v", err)
	}
}

func TestDecompressRejectsBadPayloads(t *testing.T) {
	if _, err := decompress[[]byte](nil); !errors.Is(err, errCorruptPayload) {
		t.Errorf("Expected errCorruptPayload for empty input, got %v", err)
	}

	packed, err := compress([]byte(strings.Repeat("z", 100)))
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if _, err := decompress[string](packed); !errors.Is(err, errCorruptPayload) {
		t.Errorf("Expected type mismatch to be corrupt, got %v", err)
	}

	packed[0] = 0x7f
	if _, err := decompress[[]byte](packed); !errors.Is(err, errCorruptPayload) {
		t.Errorf("Expected unknown tag to be corrupt, got %v", err)
	}
}

func TestEstimateSize(t *testing.T) {
	if got := estimateSize([]byte("abcd")); got != 4 {
		t.Errorf("bytes: got %d", got)
	}
	if got := estimateSize("abc"); got != 3 {
		t.Errorf("string: got %d", got)
	}
	if got := estimateSize(map[string]int{"a": 1}); got != int64(len(`{"a":1}`)) {
		t.Errorf("map: got %d", got)
	}
	if got := estimateSize(nil); got != 0 {
		t.Errorf("nil: got %d", got)
	}
	if got := estimateSize(make(chan int)); got <= 0 {
		t.Errorf("unencodable values should still have a size, got %d", got)
	}
}

func TestAdaptiveCache_CompressesStructValues(t *testing.T) {
	c := New[document](Config{
		MaxSizeBytes:        1 << 20,
		MemoryCheckInterval: -1,
		Clock:               clock.NewMock(),
		Memory:              NoMemory{},
	})
	defer c.Close()

	doc := document{Title: "big", Body: strings.Repeat("the same words again ", 400)}
	raw := estimateSize(doc)
	c.Set("doc", doc, SetOptions{})

	if s := c.Stats(); s.Size >= raw {
		t.Errorf("Expected compressed size below %d, got %d", raw, s.Size)
	}
	got, ok := c.Get("doc")
	if !ok || got.Body != doc.Body {
		t.Error("struct value did not round trip through compression")
	}

	c.Set("small", document{Title: "tiny"}, SetOptions{})
	c.mu.Lock()
	packed := c.items["small"].packed
	c.mu.Unlock()
	if packed != nil {
		t.Error("values under the threshold should be stored raw")
	}

	c.Set("raw", doc, SetOptions{Compress: Bool(false)})
	c.mu.Lock()
	packed = c.items["raw"].packed
	c.mu.Unlock()
	if packed != nil {
		t.Error("Compress=false should store the value raw")
	}
}

type labelled struct {
	Name string
	N    int
	note string
}

func newCompressingCache[V any](t *testing.T, name string) *AdaptiveCache[V] {
	t.Helper()
	c := New[V](Config{
		Name:                name,
		MaxSizeBytes:        1 << 20,
		MemoryCheckInterval: -1,
		Clock:               clock.NewMock(),
		Memory:              NoMemory{},
	})
	t.Cleanup(c.Close)
	return c
}

func TestAdaptiveCache_CompressionKeepsInterfaceValuesIntact(t *testing.T) {
	c := newCompressingCache[any](t, "codec_any")

	v := labelled{Name: strings.Repeat("x", 4000), N: 7, note: "kept"}
	c.Set("k", v, SetOptions{Compress: Bool(true)})

	got, ok := c.Get("k")
	if !ok {
		t.Fatal("expected a hit")
	}
	if !reflect.DeepEqual(got, v) {
		t.Errorf("Get returned %T, want a value deep-equal to the stored %T", got, v)
	}
	if skipped := testutil.ToFloat64(metrics.CacheCompressions.WithLabelValues("codec_any", "skipped")); skipped != 1 {
		t.Errorf("expected the lossy encoding to be skipped once, got %v", skipped)
	}

	b := []byte(strings.Repeat("plain bytes ", 400))
	c.Set("b", b, SetOptions{Compress: Bool(true)})
	if got, _ := c.Get("b"); !reflect.DeepEqual(got, b) {
		t.Errorf("[]byte inside any did not round trip, got %T", got)
	}
}

func TestAdaptiveCache_CompressionKeepsNamedByteTypes(t *testing.T) {
	c := newCompressingCache[json.RawMessage](t, "codec_raw")

	raw := json.RawMessage("{\n  \"body\": \"" + strings.Repeat("spaced words ", 200) + "\"\n}")
	c.Set("k", raw, SetOptions{Compress: Bool(true)})

	c.mu.Lock()
	packed := c.items["k"].packed
	c.mu.Unlock()
	if packed == nil {
		t.Error("named byte slices should still be compressed")
	}

	got, ok := c.Get("k")
	if !ok || !reflect.DeepEqual(got, raw) {
		t.Errorf("RawMessage changed through compression: %d bytes in, %d out", len(raw), len(got))
	}
}
