package handlers

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/onnwee/ethosprompt/backend/internal/apierr"
	"github.com/onnwee/ethosprompt/backend/internal/catalog"
	"github.com/onnwee/ethosprompt/backend/internal/logger"
)

// CatalogService serves pre-encoded catalog documents.
type CatalogService interface {
	Categories(ctx context.Context) ([]byte, error)
	CategoryPrompts(ctx context.Context, slug string) ([]byte, error)
	Prompt(ctx context.Context, id int64) ([]byte, error)
}

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// CatalogHandler exposes the prompt catalog.
type CatalogHandler struct {
	svc CatalogService
}

func NewCatalogHandler(svc CatalogService) *CatalogHandler {
	return &CatalogHandler{svc: svc}
}

// ListCategories handles GET /api/categories.
func (h *CatalogHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	body, err := h.svc.Categories(r.Context())
	h.respond(w, r, "categories", body, err)
}

// CategoryPrompts handles GET /api/categories/{slug}/prompts.
func (h *CatalogHandler) CategoryPrompts(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]
	if len(slug) > 64 || !slugPattern.MatchString(slug) {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidValue("slug", "Category slug must be lowercase letters, digits and dashes"))
		return
	}
	body, err := h.svc.CategoryPrompts(r.Context(), slug)
	h.respond(w, r, "category", body, err)
}

// GetPrompt handles GET /api/prompts/{id}.
func (h *CatalogHandler) GetPrompt(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidValue("id", "Prompt id must be a positive integer"))
		return
	}
	body, err := h.svc.Prompt(r.Context(), id)
	h.respond(w, r, "prompt", body, err)
}

func (h *CatalogHandler) respond(w http.ResponseWriter, r *http.Request, resource string, body []byte, err error) {
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			apierr.WriteErrorWithContext(w, r, apierr.CatalogNotFound(resource))
			return
		}
		logger.ErrorContext(r.Context(), "catalog read failed", "resource", resource, "error", err)
		apierr.WriteErrorWithContext(w, r, apierr.FromUpstream(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
