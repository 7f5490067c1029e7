package reset

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/multierr"

	"github.com/homehubapp/homehub/internal/clock"
	"github.com/homehubapp/homehub/internal/model"
)

const defaultCallTimeout = 12 * time.Second

// HouseholdStore lists households and persists the reset marker.
type HouseholdStore interface {
	// ListHouseholds returns households whose marker is not the given
	// date (or is unset). An empty date returns all households.
	ListHouseholds(ctx context.Context, notResetOn string) ([]model.Household, error)
	Household(ctx context.Context, id string) (model.Household, error)
	StampResetDate(ctx context.Context, id, date string) error
}

// ChoreStore applies the bulk reset patch for one household.
type ChoreStore interface {
	ResetChores(ctx context.Context, householdID string, f Filter) error
}

// AuditLog records successful resets. Best-effort; failures are logged
// and never affect the run.
type AuditLog interface {
	ResetRecorded(ctx context.Context, h model.Household, date string) error
}

// Outcome is the result of processing one household.
type Outcome struct {
	HouseholdID  string `json:"householdId"`
	AlreadyReset bool   `json:"alreadyResetToday"`
	Applied      bool   `json:"resetApplied"`
	Err          string `json:"error,omitempty"`
}

// Summary tallies a batch run.
type Summary struct {
	Households int
	DidReset   int
	Skipped    int
	Failed     int
	Outcomes   []Outcome
}

// Runner drives the reset over one household or all of them. Households
// are processed sequentially: the downstream store sees one bulk patch at
// a time, and a failure in one household never touches another.
type Runner struct {
	households  HouseholdStore
	chores      ChoreStore
	audit       AuditLog
	callTimeout time.Duration
	logger      *slog.Logger
}

// NewRunner creates a Runner. audit may be nil.
func NewRunner(hs HouseholdStore, cs ChoreStore, audit AuditLog, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		households:  hs,
		chores:      cs,
		audit:       audit,
		callTimeout: defaultCallTimeout,
		logger:      logger,
	}
}

// RunOne processes a single household by ID. force skips the idempotency
// gate. The returned error, when non-nil, names the failing step; the
// outcome carries the same detail for batch callers.
func (r *Runner) RunOne(ctx context.Context, householdID string, day clock.Day, force bool) (Outcome, error) {
	h, err := r.fetchHousehold(ctx, householdID)
	if err != nil {
		return Outcome{HouseholdID: householdID, Err: err.Error()}, err
	}
	return r.runHousehold(ctx, h, day, force)
}

// RunAll processes every household for the day. It returns an error only
// when the household listing itself fails; per-household failures are
// recorded in the summary and the batch continues. The listing already
// excludes households stamped for the day, so Skipped stays 0 unless a
// household gets stamped between the listing and its turn in the loop
// (a concurrent manual reset); the per-household gate catches that case.
func (r *Runner) RunAll(ctx context.Context, day clock.Day) (Summary, error) {
	households, err := r.listHouseholds(ctx, day.Date)
	if err != nil {
		return Summary{}, fmt.Errorf("list households: %w", err)
	}

	sum := Summary{Households: len(households)}
	var errs error
	for _, h := range households {
		out, err := r.runHousehold(ctx, h, day, false)
		sum.Outcomes = append(sum.Outcomes, out)
		switch {
		case err != nil:
			sum.Failed++
			errs = multierr.Append(errs, fmt.Errorf("household %s: %w", h.ID, err))
		case out.AlreadyReset:
			sum.Skipped++
		default:
			sum.DidReset++
		}
	}

	if errs != nil {
		r.logger.Warn("batch reset finished with failures",
			"date", day.Date, "failed", sum.Failed, "errors", errs.Error())
	} else {
		r.logger.Info("batch reset complete",
			"date", day.Date, "households", sum.Households,
			"reset", sum.DidReset, "skipped", sum.Skipped)
	}
	return sum, nil
}

// runHousehold is the per-household algorithm shared by both modes:
// due check, bulk chore patch, then the marker stamp. A failed chore patch
// leaves the marker unstamped so a later run retries. A failed stamp after
// a successful patch is a partial: the reset chores are now pending and
// thus excluded from the status filter, so the retry is harmless.
func (r *Runner) runHousehold(ctx context.Context, h model.Household, day clock.Day, force bool) (Outcome, error) {
	out := Outcome{HouseholdID: h.ID}

	if !force && !Due(h, day.Date) {
		out.AlreadyReset = true
		r.logger.Debug("household already reset", "household_id", h.ID, "date", day.Date)
		return out, nil
	}

	filter := Eligibility(day)
	if err := r.resetChores(ctx, h.ID, filter); err != nil {
		err = fmt.Errorf("reset chores: %w", err)
		out.Err = err.Error()
		r.logger.Error("chore reset failed", "household_id", h.ID, "error", err)
		return out, err
	}

	if err := r.stampResetDate(ctx, h.ID, day.Date); err != nil {
		// Chores were patched but the marker was not stamped. Self-heals
		// on the next run.
		err = fmt.Errorf("stamp reset date: %w", err)
		out.Applied = true
		out.Err = err.Error()
		r.logger.Error("reset marker not stamped", "household_id", h.ID, "error", err)
		return out, err
	}

	out.Applied = true
	r.logger.Info("household reset", "household_id", h.ID, "date", day.Date, "dow", day.Weekday)

	if r.audit != nil {
		if err := r.audit.ResetRecorded(ctx, h, day.Date); err != nil {
			r.logger.Warn("audit log insert failed", "household_id", h.ID, "error", err)
		}
	}
	return out, nil
}

func (r *Runner) fetchHousehold(ctx context.Context, id string) (model.Household, error) {
	ctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	return r.households.Household(ctx, id)
}

func (r *Runner) listHouseholds(ctx context.Context, date string) ([]model.Household, error) {
	ctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	return r.households.ListHouseholds(ctx, date)
}

func (r *Runner) resetChores(ctx context.Context, id string, f Filter) error {
	ctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	return r.chores.ResetChores(ctx, id, f)
}

func (r *Runner) stampResetDate(ctx context.Context, id, date string) error {
	ctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	return r.households.StampResetDate(ctx, id, date)
}
