package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/cart"
	"github.com/hanko-field/storefront/internal/platform/httpx"
)

// CartHandlers exposes the cart store over HTTP.
type CartHandlers struct {
	store  *cart.Store
	logger *zap.Logger
}

// NewCartHandlers wires the cart handler group.
func NewCartHandlers(store *cart.Store, logger *zap.Logger) *CartHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CartHandlers{store: store, logger: logger}
}

// Routes mounts the cart endpoints.
func (h *CartHandlers) Routes(r chi.Router) {
	r.Get("/", h.getCart)
	r.Post("/items", h.addItem)
	r.Delete("/items/{kind}/{id}", h.removeItem)
	r.Post("/clear", h.clear)
}

type cartItemResponse struct {
	ID      uint64    `json:"id"`
	Kind    string    `json:"type"`
	Price   int64     `json:"price"`
	AddedAt time.Time `json:"added_at"`
}

type cartSnapshotResponse struct {
	Items           []cartItemResponse `json:"items"`
	LastUpdated     *time.Time         `json:"last_updated,omitempty"`
	IsAuthenticated bool               `json:"is_authenticated"`
	AccountID       string             `json:"account_id,omitempty"`
	IsLoading       bool               `json:"is_loading"`
	Error           string             `json:"error,omitempty"`
}

func toCartSnapshotResponse(snapshot cart.Snapshot) cartSnapshotResponse {
	items := make([]cartItemResponse, 0, len(snapshot.Cart.Items))
	for _, item := range snapshot.Cart.Items {
		items = append(items, cartItemResponse{
			ID:      item.ID,
			Kind:    string(item.Kind),
			Price:   item.Price,
			AddedAt: item.AddedAt,
		})
	}
	resp := cartSnapshotResponse{
		Items:           items,
		IsAuthenticated: snapshot.IsAuthenticated,
		AccountID:       snapshot.AccountID,
		IsLoading:       snapshot.IsLoading,
	}
	if !snapshot.Cart.LastUpdated.IsZero() {
		updated := snapshot.Cart.LastUpdated
		resp.LastUpdated = &updated
	}
	if snapshot.Err != nil {
		resp.Error = snapshot.Err.Error()
	}
	return resp
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, toCartSnapshotResponse(h.store.State()))
}

type addItemRequest struct {
	ID    uint64 `json:"id"`
	Kind  string `json:"type"`
	Price int64  `json:"price"`
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	body, err := readLimitedBody(r, maxBodySize)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}

	var req addItemRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "request body is not valid JSON", http.StatusBadRequest))
		return
	}

	cmd := cart.AddItemCommand{ID: req.ID, Kind: req.Kind, Price: req.Price}
	if err := h.store.AddItem(r.Context(), cmd); err != nil {
		if errors.Is(err, cart.ErrInvalidItem) {
			httpx.WriteError(r.Context(), w, httpx.NewError("invalid_item", err.Error(), http.StatusUnprocessableEntity))
			return
		}
		h.logger.Error("cart add item failed", zap.Error(err))
		httpx.WriteError(r.Context(), w, httpx.NewError("cart_add_failed", "failed to add item to cart", http.StatusInternalServerError))
		return
	}

	writeJSONResponse(w, http.StatusOK, toCartSnapshotResponse(h.store.State()))
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	kind, ok := cart.ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_item", "item type must be instance or accessory", http.StatusBadRequest))
		return
	}
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_item", "item id must be a positive integer", http.StatusBadRequest))
		return
	}

	if !h.store.RemoveItem(r.Context(), kind, id) {
		httpx.WriteError(r.Context(), w, httpx.NewError("item_not_found", "item is not in the cart", http.StatusNotFound))
		return
	}

	writeJSONResponse(w, http.StatusOK, toCartSnapshotResponse(h.store.State()))
}

func (h *CartHandlers) clear(w http.ResponseWriter, r *http.Request) {
	h.store.Clear(r.Context())
	writeJSONResponse(w, http.StatusOK, toCartSnapshotResponse(h.store.State()))
}
