package weather

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Alert is a normalized weather.gov alert. NWS splits expiry across
// `ends` and `expires`; Expires carries whichever is set.
type Alert struct {
	ID          string `json:"id"`
	Headline    string `json:"headline"`
	Event       string `json:"event"`
	Severity    string `json:"severity"`
	Urgency     string `json:"urgency"`
	Certainty   string `json:"certainty"`
	Status      string `json:"status"`
	Expires     string `json:"expires"`
	Area        string `json:"area"`
	Description string `json:"description"`
	Instruction string `json:"instruction"`
}

// AlertsResult is the payload of the alerts endpoint. An upstream failure
// is reported inline with an empty alert list; the dashboard treats that
// as "no data", not as an error page.
type AlertsResult struct {
	Active    bool      `json:"active"`
	Alerts    []Alert   `json:"alerts"`
	Count     int       `json:"count"`
	FetchedAt time.Time `json:"fetchedAt"`
	Err       string    `json:"error,omitempty"`
}

type nwsAlertFeature struct {
	ID         string `json:"id"`
	Properties struct {
		ID          string `json:"id"`
		Headline    string `json:"headline"`
		Event       string `json:"event"`
		Severity    string `json:"severity"`
		Urgency     string `json:"urgency"`
		Certainty   string `json:"certainty"`
		Status      string `json:"status"`
		Expires     string `json:"expires"`
		Ends        string `json:"ends"`
		AreaDesc    string `json:"areaDesc"`
		Description string `json:"description"`
		Instruction string `json:"instruction"`
	} `json:"properties"`
}

type nwsAlertsResponse struct {
	Features []nwsAlertFeature `json:"features"`
}

// ActiveAlerts fetches weather.gov's active alerts for a point and drops
// everything stale: cancelled, test, and draft statuses, plus alerts whose
// effective expiry is already in the past.
func (s *Service) ActiveAlerts(ctx context.Context, lat, lon string) AlertsResult {
	result := AlertsResult{Alerts: []Alert{}, FetchedAt: time.Now().UTC()}

	var payload nwsAlertsResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetResult(&payload).
		Get(fmt.Sprintf("%s/alerts/active?point=%s,%s", s.bases.weatherGov, lat, lon))
	if err != nil {
		result.Err = err.Error()
		return result
	}
	if resp.IsError() {
		result.Err = fmt.Sprintf("weather.gov returned %d", resp.StatusCode())
		return result
	}

	now := time.Now()
	for _, f := range payload.Features {
		p := f.Properties
		switch strings.ToLower(p.Status) {
		case "cancel", "test", "draft":
			continue
		}
		expiry := p.Ends
		if expiry == "" {
			expiry = p.Expires
		}
		if expiry != "" {
			if t, err := time.Parse(time.RFC3339, expiry); err == nil && !t.After(now) {
				continue
			}
		}

		id := p.ID
		if id == "" {
			id = f.ID
		}
		headline := p.Headline
		if headline == "" {
			headline = p.Event
		}
		result.Alerts = append(result.Alerts, Alert{
			ID:          id,
			Headline:    headline,
			Event:       p.Event,
			Severity:    p.Severity,
			Urgency:     p.Urgency,
			Certainty:   p.Certainty,
			Status:      p.Status,
			Expires:     expiry,
			Area:        p.AreaDesc,
			Description: p.Description,
			Instruction: p.Instruction,
		})
	}

	result.Count = len(result.Alerts)
	result.Active = result.Count > 0
	return result
}
