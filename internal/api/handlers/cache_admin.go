package handlers

import (
	"net/http"
	"sort"

	"github.com/gorilla/mux"

	"github.com/onnwee/ethosprompt/backend/internal/apierr"
	"github.com/onnwee/ethosprompt/backend/internal/cache"
	"github.com/onnwee/ethosprompt/backend/internal/logger"
)

// CacheAdminHandler handles cache administration endpoints.
// Every endpoint accepts an optional ?cache=<name> to target one cache.
type CacheAdminHandler struct {
	caches map[string]cache.Cache
}

// NewCacheAdminHandler creates a new cache admin handler.
func NewCacheAdminHandler(caches ...cache.Cache) *CacheAdminHandler {
	m := make(map[string]cache.Cache, len(caches))
	for _, c := range caches {
		m[c.Name()] = c
	}
	return &CacheAdminHandler{caches: m}
}

type cacheStats struct {
	Name        string  `json:"name"`
	SizeBytes   int64   `json:"sizeBytes"`
	MaxBytes    int64   `json:"maxSizeBytes"`
	Items       int64   `json:"items"`
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	HitRate     float64 `json:"hitRate"`
	Evictions   uint64  `json:"evictions"`
	Expirations uint64  `json:"expirations"`
	MemoryUsage *uint64 `json:"memoryUsageBytes,omitempty"`
	MemoryLimit *uint64 `json:"memoryLimitBytes,omitempty"`
}

func toCacheStats(name string, s cache.Stats) cacheStats {
	out := cacheStats{
		Name:        name,
		SizeBytes:   s.Size,
		MaxBytes:    s.MaxSize,
		Items:       s.Items,
		Hits:        s.Hits,
		Misses:      s.Misses,
		HitRate:     s.HitRate,
		Evictions:   s.Evictions,
		Expirations: s.Expirations,
	}
	if s.MemoryKnown {
		used, limit := s.MemoryUsage, s.MemoryLimit
		out.MemoryUsage, out.MemoryLimit = &used, &limit
	}
	return out
}

// selected returns the caches named by ?cache=, or all of them in name order.
func (h *CacheAdminHandler) selected(w http.ResponseWriter, r *http.Request) ([]cache.Cache, bool) {
	if name := r.URL.Query().Get("cache"); name != "" {
		c, ok := h.caches[name]
		if !ok {
			apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidValue("cache", "Unknown cache: "+name))
			return nil, false
		}
		return []cache.Cache{c}, true
	}
	names := make([]string, 0, len(h.caches))
	for n := range h.caches {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]cache.Cache, 0, len(names))
	for _, n := range names {
		out = append(out, h.caches[n])
	}
	return out, true
}

// GetCacheStats returns current cache statistics.
// GET /api/admin/cache/stats
func (h *CacheAdminHandler) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	caches, ok := h.selected(w, r)
	if !ok {
		return
	}
	out := make([]cacheStats, 0, len(caches))
	for _, c := range caches {
		out = append(out, toCacheStats(c.Name(), c.Stats()))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"caches": out})
}

// InvalidateCache clears all entries, stale copies included.
// POST /api/admin/cache/invalidate
func (h *CacheAdminHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	caches, ok := h.selected(w, r)
	if !ok {
		return
	}
	names := make([]string, 0, len(caches))
	for _, c := range caches {
		c.Clear()
		names = append(names, c.Name())
	}
	logger.InfoContext(r.Context(), "cache invalidated", "caches", names)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"message": "Cache invalidated successfully",
		"caches":  names,
	})
}

// DeleteKey removes one key and its stale copy.
// DELETE /api/admin/cache/keys/{key}
func (h *CacheAdminHandler) DeleteKey(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if key == "" {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationMissingField("key"))
		return
	}
	caches, ok := h.selected(w, r)
	if !ok {
		return
	}
	deleted := false
	for _, c := range caches {
		if c.Delete(key) {
			deleted = true
		}
		if c.Delete(key + cache.StaleSuffix) {
			deleted = true
		}
	}
	if !deleted {
		apierr.WriteErrorWithContext(w, r, apierr.CacheKeyNotFound(key))
		return
	}
	logger.InfoContext(r.Context(), "cache key deleted", "key", key)
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "key": key})
}

// Sweep purges expired entries immediately.
// POST /api/admin/cache/sweep
func (h *CacheAdminHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	caches, ok := h.selected(w, r)
	if !ok {
		return
	}
	removed := 0
	for _, c := range caches {
		removed += c.Sweep()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "removed": removed})
}
