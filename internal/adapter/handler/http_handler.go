package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/rl1809/seckill/internal/core/domain"
	"github.com/rl1809/seckill/internal/core/service"
)

type HTTPHandler struct {
	seckill      SeckillUseCase
	useProcedure bool
	logger       zerolog.Logger
	now          func() time.Time
}

type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type ExecutionHTTPRequest struct {
	BuyerID string `json:"buyer_id"`
}

func NewHTTPHandler(seckill SeckillUseCase, useProcedure bool, logger zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		seckill:      seckill,
		useProcedure: useProcedure,
		logger:       logger.With().Str("component", "http_handler").Logger(),
		now:          time.Now,
	}
}

// Router mounts every route behind request id and access log middleware.
// metrics may be nil.
func (h *HTTPHandler) Router(metrics http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.HandleFunc("GET /seckill/time/now", h.Now)
	mux.HandleFunc("GET /seckill/list", h.List)
	mux.HandleFunc("GET /seckill/{id}/detail", h.Detail)
	mux.HandleFunc("POST /seckill/{id}/exposer", h.Expose)
	mux.HandleFunc("POST /seckill/{id}/{token}/execution", h.Execute)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	return RequestID(AccessLog(h.logger)(mux))
}

func (h *HTTPHandler) List(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", defaultOffset)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	limit, err := queryInt(r, "limit", defaultLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	items, err := h.seckill.ListItems(r.Context(), offset, limit)
	if err != nil {
		h.writeLookupError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: items})
}

func (h *HTTPHandler) Detail(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathItemID(w, r)
	if !ok {
		return
	}

	item, err := h.seckill.GetItem(r.Context(), itemID)
	if err != nil {
		h.writeLookupError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: item})
}

func (h *HTTPHandler) Expose(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathItemID(w, r)
	if !ok {
		return
	}

	exposure, err := h.seckill.Expose(r.Context(), itemID)
	if err != nil {
		h.writeLookupError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: newExposureResponse(exposure)})
}

func (h *HTTPHandler) Execute(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathItemID(w, r)
	if !ok {
		return
	}

	var req ExecutionHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.BuyerID = strings.TrimSpace(req.BuyerID)
	if req.BuyerID == "" {
		writeError(w, http.StatusBadRequest, "buyer_id is required")
		return
	}

	result := execute(r.Context(), h.seckill, h.useProcedure, itemID, req.BuyerID, r.PathValue("token"))

	resp := newExecutionResponse(result)
	if result.State == domain.StateInternalError {
		writeJSON(w, http.StatusInternalServerError, Envelope{Success: false, Data: resp, Error: resp.StateInfo})
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: resp})
}

func (h *HTTPHandler) Now(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: h.now().UnixMilli()})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) writeLookupError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrItemNotFound):
		writeError(w, http.StatusNotFound, "item not found")
	case errors.Is(err, service.ErrInvalidPage):
		writeError(w, http.StatusBadRequest, "invalid page")
	default:
		h.logger.Error().Stack().Err(err).
			Str("request_id", RequestIDFrom(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func pathItemID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Envelope{Success: false, Error: message})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
