package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/homehubapp/homehub/internal/clock"
	"github.com/homehubapp/homehub/internal/model"
	"github.com/homehubapp/homehub/internal/reset"
	"github.com/homehubapp/homehub/internal/supabase"
)

// Identity resolves a caller's bearer token to a household.
type Identity interface {
	GetUser(ctx context.Context, token string) (supabase.User, error)
	MembershipByEmail(ctx context.Context, email string) (*model.Member, error)
}

// ResetHandler serves both entry points of the chore reset: the
// user-triggered single-household endpoint and the scheduled batch one.
// Both resolve "today" through the same clock and run the same engine.
type ResetHandler struct {
	identity  Identity
	runner    *reset.Runner
	defaultTZ string
	now       func() time.Time
	logger    *slog.Logger
}

func NewResetHandler(identity Identity, runner *reset.Runner, defaultTZ string, logger *slog.Logger) *ResetHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResetHandler{
		identity:  identity,
		runner:    runner,
		defaultTZ: defaultTZ,
		now:       time.Now,
		logger:    logger,
	}
}

type resetRequest struct {
	TZ    string `json:"tz"`
	Force bool   `json:"force"`
}

// ResetMine handles POST /api/chores/reset-my-household.
func (h *ResetHandler) ResetMine(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}

	// Body is optional; an empty or absent body means defaults.
	var req resetRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	ctx := r.Context()
	user, err := h.identity.GetUser(ctx, token)
	if err != nil {
		if errors.Is(err, supabase.ErrUnauthorized) {
			writeErrorDetail(w, http.StatusUnauthorized, "invalid session", err.Error())
			return
		}
		writeErrorDetail(w, http.StatusInternalServerError, "session lookup failed", err.Error())
		return
	}

	member, err := h.identity.MembershipByEmail(ctx, user.Email)
	if err != nil {
		writeErrorDetail(w, http.StatusInternalServerError, "membership lookup failed", err.Error())
		return
	}
	if member == nil {
		writeError(w, http.StatusForbidden, "no household membership")
		return
	}

	tz := req.TZ
	if tz == "" {
		tz = h.defaultTZ
	}
	day := clock.ResolveDay(tz, h.now())
	if day.Degraded {
		h.logger.Warn("time zone unavailable, using host zone", "requested_tz", tz, "used_tz", day.TZ)
	}

	outcome, err := h.runner.RunOne(ctx, member.HouseholdID, day, req.Force)
	if err != nil {
		writeErrorDetail(w, http.StatusInternalServerError, "reset failed", outcome.Err)
		return
	}

	resp := map[string]any{
		"ok":          true,
		"didReset":    outcome.Applied,
		"today":       day.Date,
		"tz":          day.TZ,
		"dow":         day.Weekday,
		"dayName":     day.Name,
		"householdId": member.HouseholdID,
	}
	if outcome.AlreadyReset {
		resp["reason"] = "already_reset_today"
	}
	writeJSON(w, http.StatusOK, resp)
}

// CronReset handles GET|POST /api/cron/chores-reset. No user auth: the
// deployment restricts who can invoke it. Always 200 with a tally unless
// the household listing itself fails.
func (h *ResetHandler) CronReset(w http.ResponseWriter, r *http.Request) {
	day := clock.ResolveDay(h.defaultTZ, h.now())
	if day.Degraded {
		h.logger.Warn("time zone unavailable, using host zone", "requested_tz", h.defaultTZ, "used_tz", day.TZ)
	}

	sum, err := h.runner.RunAll(r.Context(), day)
	if err != nil {
		writeErrorDetail(w, http.StatusInternalServerError, "database error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"tz":         day.TZ,
		"today":      day.Date,
		"dow":        day.Weekday,
		"dayName":    day.Name,
		"households": sum.Households,
		"didReset":   sum.DidReset,
		"skipped":    sum.Skipped,
		"failed":     sum.Failed,
		"results":    sum.Outcomes,
	})
}
