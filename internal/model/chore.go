package model

type ChoreStatus string

const (
	StatusPending ChoreStatus = "pending"
	StatusDone    ChoreStatus = "done"
	StatusSkipped ChoreStatus = "skipped"
)

// CategoryDaily marks a chore that resets every day regardless of weekday.
const CategoryDaily = "Daily"

type Chore struct {
	ID          string      `json:"id"`
	HouseholdID string      `json:"household_id"`
	Title       string      `json:"title"`
	Status      ChoreStatus `json:"status"`
	// Category is free-form. "Daily" is special; older rows stored the
	// weekday name ("Monday") here instead of setting DayOfWeek.
	Category string `json:"category"`
	// DayOfWeek marks a weekly chore due on a specific weekday,
	// 0=Sunday through 6=Saturday.
	DayOfWeek       *int    `json:"day_of_week"`
	CompletedByName *string `json:"completed_by_name"`
	CompleterEmail  *string `json:"completer_email"`
}

// SystemLog is an audit row recorded after server-side actions.
type SystemLog struct {
	Source  string `json:"source"`
	Service string `json:"service"`
	Status  string `json:"status"`
	Message string `json:"message"`
}
