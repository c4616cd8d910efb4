package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"jumpgen/internal/model"
	"jumpgen/internal/service"
)

type Handler struct {
	svc service.GenerationService
}

func NewHandler(svc service.GenerationService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /jumps", h.Generate)
	mux.HandleFunc("POST /jumps/{id}/events", h.Track)
	mux.HandleFunc("GET /credits/balance", h.Balance)
	mux.HandleFunc("POST /credits/purchase", h.Purchase)
	mux.HandleFunc("GET /credits/transactions", h.Transactions)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// Generate runs one paid generation. Callers that want retry safety must
// send their own idempotency_key; without one each request is a fresh
// charge.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	var req model.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.UserID == "" || req.Goal == "" {
		h.respondError(w, http.StatusBadRequest, "missing_user_id_or_goal")
		return
	}

	jump, err := h.svc.Generate(r.Context(), req)
	if err != nil {
		h.respondGenerateError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, jump)
}

// respondGenerateError maps the failure taxonomy onto status codes. Typed
// failures only; no raw stack traces cross this boundary.
func (h *Handler) respondGenerateError(w http.ResponseWriter, err error) {
	var upstream *model.UpstreamError
	var parseErr *model.ParseError

	switch {
	case errors.Is(err, model.ErrInsufficientCredits):
		h.respondError(w, http.StatusPaymentRequired, "insufficient_credits")
	case errors.Is(err, model.ErrLedgerUnavailable):
		h.respondError(w, http.StatusServiceUnavailable, "ledger_unavailable")
	case errors.As(err, &upstream) && upstream.Exhausted:
		h.respondError(w, http.StatusGatewayTimeout, "model_unavailable")
	case errors.As(err, &upstream):
		h.respondError(w, http.StatusBadGateway, "model_rejected_request")
	case errors.As(err, &parseErr):
		h.respondError(w, http.StatusBadGateway, "plan_unparseable")
	default:
		h.respondError(w, http.StatusInternalServerError, "internal_error")
	}
}

func (h *Handler) Track(w http.ResponseWriter, r *http.Request) {
	jumpID := r.PathValue("id")
	var event model.EngagementEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if err := h.svc.Track(r.Context(), jumpID, event); err != nil {
		if errors.Is(err, model.ErrUnknownEventKind) {
			h.respondError(w, http.StatusBadRequest, "unknown_event_kind")
			return
		}
		h.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	h.respondJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		h.respondError(w, http.StatusBadRequest, "missing_user_id")
		return
	}
	balance, err := h.svc.Balance(r.Context(), userID)
	if err != nil {
		if errors.Is(err, model.ErrUnknownAccount) {
			h.respondError(w, http.StatusNotFound, "account_not_found")
			return
		}
		h.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]int64{"balance": balance})
}

func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req model.PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.UserID == "" || req.Amount <= 0 || req.ReferenceID == "" {
		h.respondError(w, http.StatusBadRequest, "missing_or_invalid_fields")
		return
	}
	if err := h.svc.Purchase(r.Context(), req); err != nil {
		if errors.Is(err, model.ErrUnknownAccount) {
			h.respondError(w, http.StatusNotFound, "account_not_found")
			return
		}
		h.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "credited"})
}

func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		h.respondError(w, http.StatusBadRequest, "missing_user_id")
		return
	}
	transactions, err := h.svc.Transactions(r.Context(), userID)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"transactions": transactions})
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
