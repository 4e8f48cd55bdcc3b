package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"pricefeed/internal/model"
	"pricefeed/internal/source"
)

// DefaultHistoryLimit applies when the caller omits the limit parameter.
const DefaultHistoryLimit = 100

// tvlAttempts bounds the TVL proxy's retry loop.
const tvlAttempts = 3

// TVLClient fetches protocol TVL.
type TVLClient interface {
	FetchTVL(ctx context.Context, protocol string) (map[string]any, error)
}

// Pinger reports backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the REST surface over a Service.
type Handler struct {
	svc    *Service
	tvl    TVLClient
	db     Pinger
	logger *slog.Logger
}

// NewHandler creates the REST handler.
func NewHandler(svc *Service, tvl TVLClient, db Pinger, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		svc:    svc,
		tvl:    tvl,
		db:     db,
		logger: logger,
	}
}

// Register installs routes on a mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /prices/{symbol}/latest", h.handleLatest)
	mux.HandleFunc("GET /prices/{symbol}", h.handleHistory)
	mux.HandleFunc("POST /prices/{symbol}/fetch", h.handleFetchNow)
	mux.HandleFunc("GET /mode", h.handleGetMode)
	mux.HandleFunc("POST /mode", h.handleSetMode)
	mux.HandleFunc("GET /tvl/{protocol}", h.handleTVL)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := struct {
		Status     string         `json:"status"`
		Components map[string]any `json:"components"`
	}{
		Status:     "ok",
		Components: make(map[string]any),
	}

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["database"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["database"] = "connected"
		}
	}
	health.Components["live_mode"] = h.svc.Mode().Live

	if health.Status == "unhealthy" {
		writeJSON(w, http.StatusServiceUnavailable, health)
		return
	}
	writeJSON(w, http.StatusOK, health)
}

func (h *Handler) handleLatest(w http.ResponseWriter, r *http.Request) {
	assetID, ok := h.normalize(w, r.PathValue("symbol"))
	if !ok {
		return
	}

	obs, err := h.svc.GetLatest(r.Context(), assetID)
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "Price not found")
		return
	}
	if err != nil {
		h.logger.Error("latest price lookup failed", "asset", assetID, "error", err)
		writeError(w, http.StatusInternalServerError, "Lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, obs)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	assetID, ok := h.normalize(w, r.PathValue("symbol"))
	if !ok {
		return
	}

	limit := queryInt(r, "limit", DefaultHistoryLimit)
	offset := queryInt(r, "offset", 0)

	records, total, err := h.svc.GetHistory(r.Context(), assetID, limit, offset)
	if err != nil {
		h.logger.Error("history query failed", "asset", assetID, "error", err)
		writeError(w, http.StatusInternalServerError, "Query failed")
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Records []model.HistoryRecord `json:"records"`
		Total   int                   `json:"total_count"`
	}{
		Records: records,
		Total:   total,
	})
}

func (h *Handler) handleFetchNow(w http.ResponseWriter, r *http.Request) {
	assetID, ok := h.normalize(w, r.PathValue("symbol"))
	if !ok {
		return
	}

	obs, err := h.svc.TriggerFetch(r.Context(), assetID)
	if errors.Is(err, source.ErrFetchFailed) || errors.Is(err, source.ErrNoSource) {
		writeError(w, http.StatusBadGateway, "Failed to fetch price")
		return
	}
	if err != nil {
		h.logger.Error("on-demand fetch failed", "asset", assetID, "error", err)
		writeError(w, http.StatusInternalServerError, "Persist failed")
		return
	}

	writeJSON(w, http.StatusOK, obs)
}

func (h *Handler) handleGetMode(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Mode())
}

func (h *Handler) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Live bool `json:"live"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid body")
		return
	}

	mode, err := h.svc.SetMode(r.Context(), payload.Live)
	if err != nil {
		h.logger.Error("mode transition failed", "live", payload.Live, "error", err)
		writeError(w, http.StatusInternalServerError, "Mode transition failed")
		return
	}

	writeJSON(w, http.StatusOK, mode)
}

// handleTVL proxies DeFiLlama with bounded retry. A 404 from upstream
// passes through; other failures retry with 1s, 2s sleeps.
func (h *Handler) handleTVL(w http.ResponseWriter, r *http.Request) {
	protocol := r.PathValue("protocol")

	var lastErr error
	for attempt := 1; attempt <= tvlAttempts; attempt++ {
		if attempt > 1 {
			wait := time.Second << (attempt - 2)
			select {
			case <-r.Context().Done():
				writeError(w, http.StatusBadGateway, "TVL service unreachable")
				return
			case <-time.After(wait):
			}
		}

		payload, err := h.tvl.FetchTVL(r.Context(), protocol)
		if err == nil {
			writeJSON(w, http.StatusOK, payload)
			return
		}
		lastErr = err

		var apiErr *source.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			writeError(w, http.StatusNotFound, "Protocol not found")
			return
		}
	}

	h.logger.Error("tvl fetch exhausted retries", "protocol", protocol, "error", lastErr)
	writeError(w, http.StatusBadGateway, "Upstream TVL service error")
}

// normalize resolves a symbol or writes a 400 and returns false.
func (h *Handler) normalize(w http.ResponseWriter, symbol string) (string, bool) {
	assetID, err := h.svc.NormalizeSymbol(symbol)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return assetID, true
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
