// Package reset decides which chores are due for their daily reset and
// drives the reset across one or all households. The decision logic is
// pure; stores are injected so both HTTP entry points (the per-user
// endpoint and the scheduled one) share exactly the same semantics.
package reset

import (
	"fmt"
	"strings"

	"github.com/homehubapp/homehub/internal/clock"
	"github.com/homehubapp/homehub/internal/model"
)

// Due reports whether a household still needs a reset for the given day.
// A nil marker means the household has never been reset. The marker is the
// sole idempotency gate: a household already stamped for today is skipped
// no matter how many times the orchestrator runs.
func Due(h model.Household, today string) bool {
	return h.LastChoreResetDate == nil || *h.LastChoreResetDate != today
}

// Filter selects the chores eligible for reset on a given day. It is built
// once per run and rendered as a single bulk update condition; individual
// chore rows are never loaded.
type Filter struct {
	Statuses []model.ChoreStatus
	Weekday  int
	DayName  string
}

// Eligibility builds the filter for a day: chores currently done or
// skipped whose category is "Daily", whose day_of_week matches, or whose
// category starts with today's weekday name. The last clause is a
// compatibility shim for rows created before day_of_week existed, when the
// weekday was stored as a category string like "Monday".
func Eligibility(d clock.Day) Filter {
	return Filter{
		Statuses: []model.ChoreStatus{model.StatusDone, model.StatusSkipped},
		Weekday:  d.Weekday,
		DayName:  d.Name,
	}
}

// Matches reports whether a single chore satisfies the filter. The bulk
// update uses OrClause/StatusIn instead; this is the same predicate in
// memory.
func (f Filter) Matches(c model.Chore) bool {
	ok := false
	for _, s := range f.Statuses {
		if c.Status == s {
			ok = true
			break
		}
	}
	if !ok {
		return false
	}
	if c.Category == model.CategoryDaily {
		return true
	}
	if c.DayOfWeek != nil && *c.DayOfWeek == f.Weekday {
		return true
	}
	return f.DayName != "" &&
		strings.HasPrefix(strings.ToLower(c.Category), strings.ToLower(f.DayName))
}

// OrClause renders the category/day-of-week disjunction as a PostgREST
// boolean expression, e.g.
// (category.eq.Daily,day_of_week.eq.5,category.ilike.Friday%).
func (f Filter) OrClause() string {
	return fmt.Sprintf("(category.eq.%s,day_of_week.eq.%d,category.ilike.%s%%)",
		model.CategoryDaily, f.Weekday, f.DayName)
}

// StatusIn renders the status list for a PostgREST in-filter, e.g.
// (done,skipped).
func (f Filter) StatusIn() string {
	parts := make([]string, len(f.Statuses))
	for i, s := range f.Statuses {
		parts[i] = string(s)
	}
	return "(" + strings.Join(parts, ",") + ")"
}
