package model

// Household is the tenant grouping of chores and members, and the unit of
// idempotent reset. LastChoreResetDate is the reset marker: a YYYY-MM-DD
// calendar date, nil until the first reset runs.
type Household struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	LastChoreResetDate *string `json:"last_chore_reset_date"`
}

// Member links an email to a household.
type Member struct {
	HouseholdID string `json:"household_id"`
	Email       string `json:"email"`
	Role        string `json:"role"`
}
