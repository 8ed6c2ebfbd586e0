package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/cart"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/platform/session"
)

// SessionHandlers manages the account session and drives the cart
// reconciliation that a sign-in or sign-out triggers.
type SessionHandlers struct {
	manager *session.Manager
	cart    *cart.Store
	logger  *zap.Logger
}

// NewSessionHandlers wires the session handler group.
func NewSessionHandlers(manager *session.Manager, cartStore *cart.Store, logger *zap.Logger) *SessionHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandlers{manager: manager, cart: cartStore, logger: logger}
}

// Routes mounts the session endpoints.
func (h *SessionHandlers) Routes(r chi.Router) {
	r.Get("/", h.getSession)
	r.Post("/token", h.setToken)
	r.Post("/refresh", h.refresh)
	r.Delete("/", h.clear)
}

type sessionResponse struct {
	Authenticated bool   `json:"authenticated"`
	AccountID     string `json:"account_id,omitempty"`
}

func toSessionResponse(sess session.Session) sessionResponse {
	return sessionResponse{Authenticated: sess.Authenticated, AccountID: sess.AccountID}
}

func (h *SessionHandlers) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.manager.Current(r.Context())
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("session_unavailable", "failed to read session", http.StatusInternalServerError))
		return
	}
	writeJSONResponse(w, http.StatusOK, toSessionResponse(sess))
}

type setTokenRequest struct {
	Token string `json:"token"`
}

func (h *SessionHandlers) setToken(w http.ResponseWriter, r *http.Request) {
	body, err := readLimitedBody(r, maxBodySize)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}

	var req setTokenRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "request body is not valid JSON", http.StatusBadRequest))
		return
	}
	if req.Token == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "token is required", http.StatusBadRequest))
		return
	}

	sess := h.manager.SetToken(req.Token)
	if !sess.Authenticated {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_token", "token could not be verified", http.StatusUnauthorized))
		return
	}

	if h.cart != nil {
		if err := h.cart.SyncOnAuth(r.Context()); err != nil {
			h.logger.Warn("cart sync after sign-in failed", zap.Error(err))
		}
	}

	writeJSONResponse(w, http.StatusOK, toSessionResponse(sess))
}

// refresh re-runs the cart reconciliation for the current session without
// changing the token. Useful when the account cart changed server-side.
func (h *SessionHandlers) refresh(w http.ResponseWriter, r *http.Request) {
	sess, err := h.manager.Current(r.Context())
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("session_unavailable", "failed to read session", http.StatusInternalServerError))
		return
	}

	if h.cart != nil {
		if err := h.cart.SyncOnAuth(r.Context()); err != nil {
			h.logger.Warn("cart sync on refresh failed", zap.Error(err))
		}
	}

	writeJSONResponse(w, http.StatusOK, toSessionResponse(sess))
}

func (h *SessionHandlers) clear(w http.ResponseWriter, r *http.Request) {
	h.manager.Clear()

	if h.cart != nil {
		if err := h.cart.SyncOnAuth(r.Context()); err != nil {
			h.logger.Warn("cart sync after sign-out failed", zap.Error(err))
		}
	}

	writeJSONResponse(w, http.StatusOK, toSessionResponse(session.Anonymous))
}
