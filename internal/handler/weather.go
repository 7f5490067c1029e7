package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/homehubapp/homehub/internal/weather"
)

// WeatherProvider is the weather service surface the handlers need.
type WeatherProvider interface {
	Aggregate(ctx context.Context, lat, lon string) weather.Aggregate
	ActiveAlerts(ctx context.Context, lat, lon string) weather.AlertsResult
	Briefing(ctx context.Context, agg weather.Aggregate, location map[string]any) weather.Briefing
}

type WeatherHandler struct {
	svc    WeatherProvider
	logger *slog.Logger
}

func NewWeatherHandler(svc WeatherProvider, logger *slog.Logger) *WeatherHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WeatherHandler{svc: svc, logger: logger}
}

// Aggregate handles GET /api/weather/aggregate?lat=..&lon=..
func (h *WeatherHandler) Aggregate(w http.ResponseWriter, r *http.Request) {
	lat, lon, ok := latLon(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Aggregate(r.Context(), lat, lon))
}

// Alerts handles GET /api/weather/alerts?lat=..&lon=..
func (h *WeatherHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	lat, lon, ok := latLon(w, r)
	if !ok {
		return
	}
	// Alerts must always be fresh; tell intermediaries not to cache.
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, h.svc.ActiveAlerts(r.Context(), lat, lon))
}

type briefingRequest struct {
	Location  map[string]any     `json:"location"`
	Aggregate *weather.Aggregate `json:"aggregate"`
}

// Briefing handles POST /api/weather/briefing. The dashboard posts back
// the aggregate it already holds rather than having the server refetch.
func (h *WeatherHandler) Briefing(w http.ResponseWriter, r *http.Request) {
	var req briefingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Aggregate == nil {
		writeError(w, http.StatusBadRequest, "missing aggregate data")
		return
	}

	w.Header().Set("Cache-Control", "s-maxage=300, stale-while-revalidate=120")
	writeJSON(w, http.StatusOK, h.svc.Briefing(r.Context(), *req.Aggregate, req.Location))
}

func latLon(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	lat := r.URL.Query().Get("lat")
	lon := r.URL.Query().Get("lon")
	if lat == "" || lon == "" {
		writeError(w, http.StatusBadRequest, "missing lat/lon parameters")
		return "", "", false
	}
	return lat, lon, true
}
