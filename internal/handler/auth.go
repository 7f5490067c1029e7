package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/homehubapp/homehub/internal/supabase"
)

// Directory extends Identity with the allow list. The login gate requires
// both a household membership and an allow-list row, checked server-side
// with the service role so client-side RLS flakiness can't lock the
// dashboard out.
type Directory interface {
	Identity
	AllowedEmail(ctx context.Context, email string) (bool, error)
}

// AccessHandler answers the dashboard's initial "may this account in?"
// check.
type AccessHandler struct {
	directory Directory
	logger    *slog.Logger
}

func NewAccessHandler(directory Directory, logger *slog.Logger) *AccessHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccessHandler{directory: directory, logger: logger}
}

// Check handles GET /api/auth/access.
func (h *AccessHandler) Check(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}

	ctx := r.Context()
	user, err := h.directory.GetUser(ctx, token)
	if err != nil {
		if errors.Is(err, supabase.ErrUnauthorized) {
			writeErrorDetail(w, http.StatusUnauthorized, "invalid session", err.Error())
			return
		}
		writeErrorDetail(w, http.StatusInternalServerError, "session lookup failed", err.Error())
		return
	}

	member, err := h.directory.MembershipByEmail(ctx, user.Email)
	if err != nil {
		writeErrorDetail(w, http.StatusInternalServerError, "membership lookup failed", err.Error())
		return
	}
	allowed, err := h.directory.AllowedEmail(ctx, user.Email)
	if err != nil {
		writeErrorDetail(w, http.StatusInternalServerError, "allowed email lookup failed", err.Error())
		return
	}
	if member == nil || !allowed {
		writeJSON(w, http.StatusForbidden, map[string]any{
			"error": "access not granted for this account",
			"email": user.Email,
		})
		return
	}

	role := member.Role
	if role == "" {
		role = "member"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":           true,
		"email":        user.Email,
		"household_id": member.HouseholdID,
		"role":         role,
	})
}
