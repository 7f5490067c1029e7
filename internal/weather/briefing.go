package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

const systemPrompt = `You are a weather briefing assistant. You receive aggregated weather data from multiple APIs (Open-Meteo, Weather.gov, Weatherbit, Tomorrow.io, Visual Crossing, Pirate Weather).

RULES:
- Use ONLY the provided data. Never invent numbers.
- Prioritize Weather.gov for alerts.
- If any Weather.gov alerts are active, set alerts.active=true and include actions show_red_banner and show_popup.
- If sources disagree significantly (>5F temp, >30% precip), reduce confidence and explain in source_disagreements.
- Output ONLY valid JSON matching the schema below. No markdown, no explanation, just JSON.

REQUIRED OUTPUT SCHEMA:
{
  "headline": "string (8-15 words)",
  "summary": "string (2-3 sentences)",
  "confidence": 0-100,
  "hazards": ["string array"],
  "today": {"high_f": number or null, "low_f": number or null, "precip_chance_pct": number or null, "snow_chance_pct": number or null, "key_window": "string or null"},
  "tomorrow": {"high_f": number or null, "low_f": number or null, "precip_chance_pct": number or null, "snow_chance_pct": number or null, "key_window": "string or null"},
  "alerts": {"active": boolean, "banner_text": "string <=80 chars" or null, "severity": "none" | "advisory" | "watch" | "warning", "expires_at": "ISO 8601 string" or null},
  "source_disagreements": [{"topic":"string","details":"string"}],
  "actions": [{"type":"none"|"show_red_banner"|"show_popup","reason":"string"}]
}`

type genaiConfig struct {
	url   string
	key   string
	model string
}

// DayOutlook is one day's numbers in a briefing.
type DayOutlook struct {
	HighF           *float64 `json:"high_f"`
	LowF            *float64 `json:"low_f"`
	PrecipChancePct *float64 `json:"precip_chance_pct"`
	SnowChancePct   *float64 `json:"snow_chance_pct"`
	KeyWindow       *string  `json:"key_window"`
}

// BriefingAlerts is the alert banner state in a briefing.
type BriefingAlerts struct {
	Active     bool    `json:"active"`
	BannerText *string `json:"banner_text"`
	Severity   string  `json:"severity"`
	ExpiresAt  *string `json:"expires_at"`
}

type Disagreement struct {
	Topic   string `json:"topic"`
	Details string `json:"details"`
}

type Action struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// Briefing is the model's interpretation of an aggregate, or the
// deterministic fallback when the gateway is unreachable.
type Briefing struct {
	Headline            string         `json:"headline"`
	Summary             string         `json:"summary"`
	Confidence          int            `json:"confidence"`
	Hazards             []string       `json:"hazards"`
	Today               DayOutlook     `json:"today"`
	Tomorrow            DayOutlook     `json:"tomorrow"`
	Alerts              BriefingAlerts `json:"alerts"`
	SourceDisagreements []Disagreement `json:"source_disagreements"`
	Actions             []Action       `json:"actions"`
}

// Briefing asks the chat gateway to interpret the aggregate. Any failure
// (gateway unconfigured, HTTP error, unparseable answer) falls back to a
// summary derived directly from the Open-Meteo and Weather.gov slices.
func (s *Service) Briefing(ctx context.Context, agg Aggregate, location map[string]any) Briefing {
	b, err := s.callGenAI(ctx, agg, location)
	if err != nil {
		s.logger.Warn("briefing model call failed, using fallback", "error", err)
		return fallbackBriefing(agg)
	}
	return b
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (s *Service) callGenAI(ctx context.Context, agg Aggregate, location map[string]any) (Briefing, error) {
	if s.genai.url == "" {
		return Briefing{}, errors.New("briefing gateway not configured")
	}

	payload, err := json.Marshal(map[string]any{"location": location, "aggregate": agg})
	if err != nil {
		return Briefing{}, fmt.Errorf("marshal aggregate: %w", err)
	}

	req := s.client.R().
		SetContext(ctx).
		SetBody(chatRequest{
			Model: s.genai.model,
			Messages: []chatMessage{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: "Interpret this aggregated weather JSON and output the required schema. Data: " + string(payload)},
			},
		})
	if s.genai.key != "" {
		req.SetHeader("Authorization", "Bearer "+s.genai.key)
	}
	var cr chatResponse
	resp, err := req.SetResult(&cr).Post(s.genai.url)
	if err != nil {
		return Briefing{}, fmt.Errorf("chat completion: %w", err)
	}
	if resp.IsError() {
		return Briefing{}, fmt.Errorf("chat completion: HTTP %d", resp.StatusCode())
	}
	if len(cr.Choices) == 0 {
		return Briefing{}, errors.New("chat completion: no choices")
	}

	content := stripFences(cr.Choices[0].Message.Content)
	var b Briefing
	if err := json.Unmarshal([]byte(content), &b); err != nil {
		return Briefing{}, fmt.Errorf("parse model output: %w", err)
	}
	return b, nil
}

// stripFences removes markdown code fences the model sometimes wraps its
// JSON in despite instructions.
func stripFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// fallbackBriefing builds a briefing from the raw Open-Meteo daily series
// and the Weather.gov slice, with reduced confidence.
func fallbackBriefing(agg Aggregate) Briefing {
	b := Briefing{
		Headline:            "Weather data available",
		Summary:             "AI interpretation unavailable. Showing data from available sources.",
		Confidence:          35,
		Hazards:             []string{},
		Alerts:              BriefingAlerts{Severity: "none"},
		SourceDisagreements: []Disagreement{},
		Actions:             []Action{{Type: "none", Reason: "AI fallback"}},
	}

	if agg.OpenMeteo.OK {
		var om struct {
			Daily struct {
				TempMax   []float64 `json:"temperature_2m_max"`
				TempMin   []float64 `json:"temperature_2m_min"`
				PrecipMax []float64 `json:"precipitation_probability_max"`
			} `json:"daily"`
		}
		if json.Unmarshal(agg.OpenMeteo.Data, &om) == nil {
			fillOutlook(&b.Today, om.Daily.TempMax, om.Daily.TempMin, om.Daily.PrecipMax, 0)
			fillOutlook(&b.Tomorrow, om.Daily.TempMax, om.Daily.TempMin, om.Daily.PrecipMax, 1)
		}
	}

	if agg.WeatherGov.OK {
		var wg struct {
			Forecast *struct {
				Properties struct {
					Periods []struct {
						ShortForecast string `json:"shortForecast"`
					} `json:"periods"`
				} `json:"properties"`
			} `json:"forecast"`
			Alerts *struct {
				Features []nwsAlertFeature `json:"features"`
			} `json:"alerts"`
		}
		if json.Unmarshal(agg.WeatherGov.Data, &wg) == nil {
			if wg.Forecast != nil && len(wg.Forecast.Properties.Periods) > 0 &&
				wg.Forecast.Properties.Periods[0].ShortForecast != "" {
				b.Headline = wg.Forecast.Properties.Periods[0].ShortForecast
			}
			if wg.Alerts != nil && len(wg.Alerts.Features) > 0 {
				top := wg.Alerts.Features[0].Properties
				event := top.Event
				if event == "" {
					event = "Weather Alert"
				}
				banner := top.Headline
				if banner == "" {
					banner = event
				}
				if len(banner) > 80 {
					banner = banner[:80]
				}
				b.Alerts.Active = true
				b.Alerts.BannerText = &banner
				b.Alerts.Severity = mapSeverity(top.Severity)
				if top.Expires != "" {
					b.Alerts.ExpiresAt = &top.Expires
				}
				b.Hazards = append(b.Hazards, event)
				b.Actions = []Action{
					{Type: "show_red_banner", Reason: event},
					{Type: "show_popup", Reason: "NWS alert active"},
				}
			}
		}
	}

	return b
}

func fillOutlook(out *DayOutlook, max, min, precip []float64, idx int) {
	if idx < len(max) {
		v := math.Round(max[idx])
		out.HighF = &v
	}
	if idx < len(min) {
		v := math.Round(min[idx])
		out.LowF = &v
	}
	if idx < len(precip) {
		v := precip[idx]
		out.PrecipChancePct = &v
	}
}

func mapSeverity(s string) string {
	l := strings.ToLower(s)
	switch {
	case strings.Contains(l, "warning"), l == "extreme", l == "severe":
		return "warning"
	case strings.Contains(l, "watch"), l == "moderate":
		return "watch"
	case strings.Contains(l, "advisory"), l == "minor":
		return "advisory"
	default:
		return "none"
	}
}
