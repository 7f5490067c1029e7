package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// diagnosticTables are the tables the dashboard depends on.
var diagnosticTables = []string{
	"households", "household_members", "allowed_emails",
	"user_settings", "chores", "chore_logs",
	"seen_alerts", "system_logs",
}

// Diagnostic is the Supabase surface the check needs.
type Diagnostic interface {
	Directory
	TableCount(ctx context.Context, table string) (int64, error)
}

// DiagnosticsHandler answers GET /api/diagnostics/supabase: a connectivity
// and schema self-check. Anyone with a valid session sees the env/caller
// summary; row counts and seed checks are restricted to the owner.
type DiagnosticsHandler struct {
	store         Diagnostic
	ownerEmail    string
	supabaseURL   string
	serviceKeySet bool
	logger        *slog.Logger
}

func NewDiagnosticsHandler(store Diagnostic, ownerEmail, supabaseURL string, serviceKeySet bool, logger *slog.Logger) *DiagnosticsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DiagnosticsHandler{
		store:         store,
		ownerEmail:    strings.ToLower(ownerEmail),
		supabaseURL:   supabaseURL,
		serviceKeySet: serviceKeySet,
		logger:        logger,
	}
}

type diagnosticsReport struct {
	Timestamp time.Time      `json:"timestamp"`
	Checks    map[string]any `json:"checks"`
	Errors    []string       `json:"errors"`
	Summary   string         `json:"summary"`
}

// Check handles GET /api/diagnostics/supabase.
func (h *DiagnosticsHandler) Check(w http.ResponseWriter, r *http.Request) {
	report := diagnosticsReport{
		Timestamp: time.Now().UTC(),
		Checks:    map[string]any{},
		Errors:    []string{},
	}
	defer func() {
		if len(report.Errors) == 0 {
			report.Summary = "all checks passed"
		} else {
			report.Summary = fmt.Sprintf("%d issue(s) found", len(report.Errors))
		}
		writeJSON(w, http.StatusOK, &report)
	}()

	envCheck := map[string]string{
		"SUPABASE_URL":              present(h.supabaseURL != ""),
		"SUPABASE_SERVICE_ROLE_KEY": present(h.serviceKeySet),
		"OWNER_EMAIL":               present(h.ownerEmail != ""),
	}
	report.Checks["env"] = envCheck
	if h.supabaseURL == "" || !h.serviceKeySet {
		report.Errors = append(report.Errors, "missing required environment variables")
		return
	}

	ctx := r.Context()
	var callerEmail string
	if token := bearerToken(r); token != "" {
		user, err := h.store.GetUser(ctx, token)
		if err != nil {
			report.Checks["caller"] = map[string]string{"error": err.Error()}
		} else {
			callerEmail = user.Email
			report.Checks["caller"] = map[string]any{
				"email":    user.Email,
				"user_id":  user.ID,
				"provider": user.AppMetadata.Provider,
				"verified": true,
			}
		}
	} else {
		report.Checks["caller"] = map[string]string{"error": "no authorization header provided"}
	}

	if h.ownerEmail == "" || callerEmail != h.ownerEmail {
		report.Checks["authorization"] = "detailed diagnostics restricted to the owner account"
		return
	}

	for _, table := range diagnosticTables {
		n, err := h.store.TableCount(ctx, table)
		if err != nil {
			report.Checks["table_"+table] = map[string]any{"exists": false, "error": err.Error()}
			report.Errors = append(report.Errors, fmt.Sprintf("table %q query failed", table))
			continue
		}
		report.Checks["table_"+table] = map[string]any{"exists": true, "row_count": n}
	}

	member, err := h.store.MembershipByEmail(ctx, h.ownerEmail)
	switch {
	case err != nil:
		report.Checks["owner_in_household_members"] = map[string]string{"error": err.Error()}
	case member == nil:
		report.Checks["owner_in_household_members"] = map[string]bool{"found": false}
		report.Errors = append(report.Errors, "owner not in household_members")
	default:
		report.Checks["owner_in_household_members"] = map[string]any{"found": true, "household_id": member.HouseholdID, "role": member.Role}
	}

	allowed, err := h.store.AllowedEmail(ctx, h.ownerEmail)
	switch {
	case err != nil:
		report.Checks["owner_in_allowed_emails"] = map[string]string{"error": err.Error()}
	case !allowed:
		report.Checks["owner_in_allowed_emails"] = map[string]bool{"found": false}
		report.Errors = append(report.Errors, "owner not in allowed_emails")
	default:
		report.Checks["owner_in_allowed_emails"] = map[string]bool{"found": true}
	}
}

func present(set bool) string {
	if set {
		return "set"
	}
	return "MISSING"
}
