package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/amberline/crawlcore/internal/crawl"
	"github.com/amberline/crawlcore/internal/planner"
	"github.com/amberline/crawlcore/internal/store"
)

// CrawlService is the orchestration surface the HTTP layer depends on.
type CrawlService interface {
	StartCrawl(ctx context.Context, req planner.Request) (string, error)
	CancelCrawl(ctx context.Context, crawlID string) error
	GetCrawl(ctx context.Context, crawlID string) (*crawl.Status, error)
}

// Handler serves the crawl endpoints.
type Handler struct {
	service CrawlService
}

// NewHandler creates an API handler backed by the given service.
func NewHandler(service CrawlService) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes attaches the crawl endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/crawls", h.handleCrawls)
	mux.HandleFunc("/v1/crawls/", h.handleCrawlByID)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		WriteHealthy(w, r, "crawlcore")
	})
}

func (h *Handler) handleCrawls(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		MethodNotAllowed(w, r)
		return
	}

	var req planner.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, r, "invalid JSON body: "+err.Error())
		return
	}

	// Tenant identity arrives from the excluded auth layer via headers; the
	// engine treats both values as opaque.
	req.TenantID = r.Header.Get("X-Tenant-ID")
	req.PlanTier = r.Header.Get("X-Plan-Tier")

	crawlID, err := h.service.StartCrawl(r.Context(), req)
	if err != nil {
		var validationErr *planner.ValidationError
		if errors.As(err, &validationErr) {
			BadRequest(w, r, validationErr.Error())
			return
		}
		InternalError(w, r, err)
		return
	}

	WriteJSON(w, r, map[string]string{"jobId": crawlID}, http.StatusOK)
}

func (h *Handler) handleCrawlByID(w http.ResponseWriter, r *http.Request) {
	crawlID := r.URL.Path[len("/v1/crawls/"):]
	if crawlID == "" {
		NotFound(w, r, "Job not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getCrawl(w, r, crawlID)
	case http.MethodDelete:
		h.cancelCrawl(w, r, crawlID)
	default:
		MethodNotAllowed(w, r)
	}
}

func (h *Handler) getCrawl(w http.ResponseWriter, r *http.Request, crawlID string) {
	status, err := h.service.GetCrawl(r.Context(), crawlID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			NotFound(w, r, "Job not found")
			return
		}
		InternalError(w, r, err)
		return
	}

	WriteJSON(w, r, status, http.StatusOK)
}

func (h *Handler) cancelCrawl(w http.ResponseWriter, r *http.Request, crawlID string) {
	if err := h.service.CancelCrawl(r.Context(), crawlID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			NotFound(w, r, "Job not found")
			return
		}
		InternalError(w, r, err)
		return
	}

	WriteJSON(w, r, map[string]string{"status": "cancelled"}, http.StatusOK)
}
