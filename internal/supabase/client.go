// Package supabase is the HTTP client for the two Supabase collaborators:
// GoTrue (token verification) and PostgREST (households, chores, members,
// audit rows). All table writes go through the service role key; user
// tokens are only ever forwarded to GoTrue.
package supabase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sethvargo/go-retry"

	"github.com/homehubapp/homehub/internal/model"
	"github.com/homehubapp/homehub/internal/reset"
)

const (
	defaultTimeout = 12 * time.Second
	// maxDetailLen bounds upstream error bodies before they appear in
	// responses or logs.
	maxDetailLen = 200
)

var (
	ErrUnauthorized = errors.New("supabase: unauthorized")
	ErrNotFound     = errors.New("supabase: not found")
)

// Config holds connection settings for a Supabase project.
type Config struct {
	URL        string
	ServiceKey string
	Timeout    time.Duration
}

// User is the GoTrue identity behind a bearer token.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	AppMetadata struct {
		Provider string `json:"provider"`
	} `json:"app_metadata"`
}

// Client talks to one Supabase project.
type Client struct {
	http   *resty.Client
	cfg    Config
	logger *slog.Logger
}

// NewClient creates a Supabase client. The service key is sent as the
// apikey header on every request and as the bearer on table requests.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.URL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("apikey", cfg.ServiceKey).
		SetHeader("Content-Type", "application/json")
	return &Client{http: httpClient, cfg: cfg, logger: logger}
}

// GetUser verifies a caller's access token against GoTrue and returns the
// identity behind it. Any non-2xx answer maps to ErrUnauthorized with a
// truncated upstream detail.
func (c *Client) GetUser(ctx context.Context, token string) (User, error) {
	var user User
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+token).
		SetResult(&user).
		Get("/auth/v1/user")
	if err != nil {
		return User{}, fmt.Errorf("auth user: %w", err)
	}
	if resp.IsError() {
		return User{}, fmt.Errorf("%w: %s", ErrUnauthorized, truncate(resp.Body()))
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Email == "" {
		return User{}, fmt.Errorf("%w: no email in session", ErrUnauthorized)
	}
	return user, nil
}

// MembershipByEmail returns the household membership for an email, or nil
// when the email belongs to no household.
func (c *Client) MembershipByEmail(ctx context.Context, email string) (*model.Member, error) {
	var members []model.Member
	resp, err := c.serviceR(ctx).
		SetQueryParam("select", "household_id,role,email").
		SetQueryParam("email", "ilike."+email).
		SetQueryParam("limit", "1").
		SetResult(&members).
		Get("/rest/v1/household_members")
	if err != nil {
		return nil, fmt.Errorf("membership lookup: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("membership lookup: %s", truncate(resp.Body()))
	}
	if len(members) == 0 {
		return nil, nil
	}
	return &members[0], nil
}

// AllowedEmail reports whether the email is on the allow list.
func (c *Client) AllowedEmail(ctx context.Context, email string) (bool, error) {
	var rows []struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	resp, err := c.serviceR(ctx).
		SetQueryParam("select", "id,email").
		SetQueryParam("email", "ilike."+email).
		SetQueryParam("limit", "1").
		SetResult(&rows).
		Get("/rest/v1/allowed_emails")
	if err != nil {
		return false, fmt.Errorf("allowed email lookup: %w", err)
	}
	if resp.IsError() {
		return false, fmt.Errorf("allowed email lookup: %s", truncate(resp.Body()))
	}
	return len(rows) > 0, nil
}

// ListHouseholds returns households with their reset markers. When
// notResetOn is set, the filtering happens server-side: only households
// whose marker is null or differs from the date come back.
func (c *Client) ListHouseholds(ctx context.Context, notResetOn string) ([]model.Household, error) {
	req := c.serviceR(ctx).
		SetQueryParam("select", "id,name,last_chore_reset_date")
	if notResetOn != "" {
		req.SetQueryParam("or",
			fmt.Sprintf("(last_chore_reset_date.is.null,last_chore_reset_date.neq.%s)", notResetOn))
	}
	var households []model.Household
	resp, err := req.SetResult(&households).Get("/rest/v1/households")
	if err != nil {
		return nil, fmt.Errorf("list households: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("list households: %s", truncate(resp.Body()))
	}
	return households, nil
}

// Household fetches a single household by ID.
func (c *Client) Household(ctx context.Context, id string) (model.Household, error) {
	var households []model.Household
	resp, err := c.serviceR(ctx).
		SetQueryParam("select", "id,name,last_chore_reset_date").
		SetQueryParam("id", "eq."+id).
		SetQueryParam("limit", "1").
		SetResult(&households).
		Get("/rest/v1/households")
	if err != nil {
		return model.Household{}, fmt.Errorf("fetch household: %w", err)
	}
	if resp.IsError() {
		return model.Household{}, fmt.Errorf("fetch household: %s", truncate(resp.Body()))
	}
	if len(households) == 0 {
		return model.Household{}, fmt.Errorf("%w: household %s", ErrNotFound, id)
	}
	return households[0], nil
}

// StampResetDate persists the reset marker for a household. The write is
// retried a couple of times: it is the one call whose failure forces the
// whole household to be redone on the next run.
func (c *Client) StampResetDate(ctx context.Context, id, date string) error {
	backoff := retry.WithMaxRetries(2, retry.NewConstant(500*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, err := c.serviceR(ctx).
			SetQueryParam("id", "eq."+id).
			SetHeader("Prefer", "return=minimal").
			SetBody(map[string]any{"last_chore_reset_date": date}).
			Patch("/rest/v1/households")
		if err != nil {
			return retry.RetryableError(fmt.Errorf("stamp household: %w", err))
		}
		if resp.IsError() {
			return retry.RetryableError(fmt.Errorf("stamp household: %s", truncate(resp.Body())))
		}
		return nil
	})
}

// ResetChores bulk-patches every chore of the household matching the
// eligibility filter back to pending, clearing attribution. Set-based on
// the PostgREST side; no rows are loaded here.
func (c *Client) ResetChores(ctx context.Context, householdID string, f reset.Filter) error {
	resp, err := c.serviceR(ctx).
		SetQueryParam("household_id", "eq."+householdID).
		SetQueryParam("status", "in."+f.StatusIn()).
		SetQueryParam("or", f.OrClause()).
		SetHeader("Prefer", "return=minimal").
		SetBody(map[string]any{
			"status":            string(model.StatusPending),
			"completed_by_name": nil,
			"completer_email":   nil,
		}).
		Patch("/rest/v1/chores")
	if err != nil {
		return fmt.Errorf("patch chores: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("patch chores: %s", truncate(resp.Body()))
	}
	return nil
}

// InsertSystemLog appends an audit row.
func (c *Client) InsertSystemLog(ctx context.Context, entry model.SystemLog) error {
	resp, err := c.serviceR(ctx).
		SetHeader("Prefer", "return=minimal").
		SetBody(entry).
		Post("/rest/v1/system_logs")
	if err != nil {
		return fmt.Errorf("insert system log: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("insert system log: %s", truncate(resp.Body()))
	}
	return nil
}

// ResetRecorded implements the reset audit hook with a system_logs row.
func (c *Client) ResetRecorded(ctx context.Context, h model.Household, date string) error {
	name := h.Name
	if name == "" {
		name = h.ID
	}
	return c.InsertSystemLog(ctx, model.SystemLog{
		Source:  "server",
		Service: "chore-reset",
		Status:  "ok",
		Message: fmt.Sprintf("Automatic reset for %s on %s", name, date),
	})
}

// TableCount returns the exact row count for a table, via PostgREST's
// Content-Range header ("*/42").
func (c *Client) TableCount(ctx context.Context, table string) (int64, error) {
	resp, err := c.serviceR(ctx).
		SetQueryParam("select", "count").
		SetQueryParam("limit", "0").
		SetHeader("Prefer", "count=exact").
		Get("/rest/v1/" + table)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("count %s: %s", table, truncate(resp.Body()))
	}
	cr := resp.Header().Get("Content-Range")
	i := strings.LastIndexByte(cr, '/')
	if i < 0 {
		return 0, fmt.Errorf("count %s: missing content-range", table)
	}
	n, err := strconv.ParseInt(cr[i+1:], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("count %s: parse %q: %w", table, cr, err)
	}
	return n, nil
}

func (c *Client) serviceR(ctx context.Context) *resty.Request {
	return c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+c.cfg.ServiceKey)
}

func truncate(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxDetailLen {
		return s[:maxDetailLen]
	}
	return s
}
