package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/catalog"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/urlstate"
)

// CatalogHandlers exposes the catalog store over HTTP.
type CatalogHandlers struct {
	store   *catalog.Store
	codec   *urlstate.Codec
	history *urlstate.MemoryHistory
	logger  *zap.Logger
}

// NewCatalogHandlers wires the catalog handler group. History is optional;
// without it the back/forward endpoints report a conflict.
func NewCatalogHandlers(store *catalog.Store, codec *urlstate.Codec, history *urlstate.MemoryHistory, logger *zap.Logger) *CatalogHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogHandlers{store: store, codec: codec, history: history, logger: logger}
}

// Routes mounts the catalog endpoints.
func (h *CatalogHandlers) Routes(r chi.Router) {
	r.Get("/state", h.getState)
	r.Patch("/state", h.patchState)
	r.Post("/reset", h.reset)
	r.Get("/url", h.getURL)
	r.Post("/history/back", h.historyBack)
	r.Post("/history/forward", h.historyForward)
}

type queryStateResponse struct {
	Mode    string              `json:"mode"`
	Page    int                 `json:"page"`
	PerPage int                 `json:"per_page"`
	Search  string              `json:"search,omitempty"`
	Sort    string              `json:"sort"`
	Filters map[string][]string `json:"filters,omitempty"`
}

type catalogMetaResponse struct {
	Total            int                       `json:"total"`
	TotalPages       int                       `json:"total_pages"`
	AvailableFilters map[string][]string       `json:"available_filters,omitempty"`
	FacetCounts      map[string]map[string]int `json:"facet_counts,omitempty"`
}

type catalogSnapshotResponse struct {
	State     queryStateResponse  `json:"state"`
	Meta      catalogMetaResponse `json:"meta"`
	IsLoading bool                `json:"is_loading"`
	Error     string              `json:"error,omitempty"`
}

func toQueryStateResponse(state urlstate.QueryState) queryStateResponse {
	return queryStateResponse{
		Mode:    string(state.Mode),
		Page:    state.Page,
		PerPage: state.PerPage,
		Search:  state.Search,
		Sort:    state.Sort,
		Filters: state.Filters,
	}
}

func toCatalogSnapshotResponse(snapshot catalog.Snapshot) catalogSnapshotResponse {
	resp := catalogSnapshotResponse{
		State: toQueryStateResponse(snapshot.State),
		Meta: catalogMetaResponse{
			Total:            snapshot.Meta.Total,
			TotalPages:       snapshot.Meta.TotalPages,
			AvailableFilters: snapshot.Meta.AvailableFilters,
			FacetCounts:      snapshot.Meta.FacetCounts,
		},
		IsLoading: snapshot.IsLoading,
	}
	if snapshot.Err != nil {
		resp.Error = snapshot.Err.Error()
	}
	return resp
}

func (h *CatalogHandlers) getState(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, toCatalogSnapshotResponse(h.store.State()))
}

type patchStateRequest struct {
	Mode    *string             `json:"mode"`
	Page    *int                `json:"page"`
	PerPage *int                `json:"per_page"`
	Search  *string             `json:"search"`
	Sort    *string             `json:"sort"`
	Filters map[string][]string `json:"filters"`
	Replace bool                `json:"replace"`
}

func (h *CatalogHandlers) patchState(w http.ResponseWriter, r *http.Request) {
	body, err := readLimitedBody(r, maxBodySize)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}

	var req patchStateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "request body is not valid JSON", http.StatusBadRequest))
		return
	}

	patch := urlstate.Patch{
		Page:    req.Page,
		PerPage: req.PerPage,
		Search:  req.Search,
		Sort:    req.Sort,
		Filters: req.Filters,
	}
	if req.Mode != nil {
		mode := urlstate.Mode(*req.Mode)
		if mode != urlstate.ModeType && mode != urlstate.ModeInstance {
			httpx.WriteError(r.Context(), w, httpx.NewError("invalid_mode", "mode must be type or instance", http.StatusBadRequest))
			return
		}
		patch.Mode = &mode
	}

	h.store.UpdateState(patch, catalog.UpdateOptions{Replace: req.Replace})
	writeJSONResponse(w, http.StatusOK, toCatalogSnapshotResponse(h.store.State()))
}

type resetRequest struct {
	KeepMode bool `json:"keep_mode"`
}

func (h *CatalogHandlers) reset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	body, err := readLimitedBody(r, maxBodySize)
	switch {
	case err == nil:
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "request body is not valid JSON", http.StatusBadRequest))
			return
		}
	case errors.Is(err, errEmptyBody):
		// body is optional for reset
	default:
		writeBodyError(w, r, err)
		return
	}

	h.store.Reset(req.KeepMode)
	writeJSONResponse(w, http.StatusOK, toCatalogSnapshotResponse(h.store.State()))
}

type urlResponse struct {
	Query string `json:"query"`
}

func (h *CatalogHandlers) getURL(w http.ResponseWriter, r *http.Request) {
	state := h.store.State().State
	writeJSONResponse(w, http.StatusOK, urlResponse{Query: h.codec.Serialize(state)})
}

func (h *CatalogHandlers) historyBack(w http.ResponseWriter, r *http.Request) {
	h.historyStep(w, r, func() bool { return h.history.Back() })
}

func (h *CatalogHandlers) historyForward(w http.ResponseWriter, r *http.Request) {
	h.historyStep(w, r, func() bool { return h.history.Forward() })
}

func (h *CatalogHandlers) historyStep(w http.ResponseWriter, r *http.Request, step func() bool) {
	if h.history == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("history_unavailable", "navigation history is not enabled", http.StatusConflict))
		return
	}
	if !step() {
		httpx.WriteError(r.Context(), w, httpx.NewError("history_boundary", "no further history entries", http.StatusConflict))
		return
	}
	writeJSONResponse(w, http.StatusOK, toCatalogSnapshotResponse(h.store.State()))
}
