// Package weather fans out to the public weather APIs the dashboard draws
// from and merges the answers. Sources fail independently: a missing API
// key or a dead upstream shows up as a per-source error, never as a failed
// aggregate.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/errgroup"
)

const (
	sourceTimeout = 10 * time.Second
	// weather.gov rejects requests without an identifying User-Agent.
	userAgent = "HomeHub/1.0"
)

// Config holds the per-provider API keys. Providers with an empty key are
// reported as not configured.
type Config struct {
	WeatherbitKey     string
	TomorrowKey       string
	VisualCrossingKey string
	PirateWeatherKey  string
}

// bases are the upstream endpoints, replaceable in tests.
type bases struct {
	openMeteo      string
	weatherGov     string
	weatherbit     string
	tomorrow       string
	visualCrossing string
	pirateWeather  string
	rainViewer     string
}

func defaultBases() bases {
	return bases{
		openMeteo:      "https://api.open-meteo.com",
		weatherGov:     "https://api.weather.gov",
		weatherbit:     "https://api.weatherbit.io",
		tomorrow:       "https://api.tomorrow.io",
		visualCrossing: "https://weather.visualcrossing.com",
		pirateWeather:  "https://api.pirateweather.net",
		rainViewer:     "https://api.rainviewer.com",
	}
}

// Source is one provider's slice of the aggregate: raw JSON on success, an
// error string otherwise.
type Source struct {
	OK   bool            `json:"ok"`
	Data json.RawMessage `json:"data,omitempty"`
	Err  string          `json:"error,omitempty"`
}

func errSource(format string, args ...any) Source {
	return Source{Err: fmt.Sprintf(format, args...)}
}

// Aggregate is the merged multi-provider forecast payload.
type Aggregate struct {
	OpenMeteo      Source    `json:"openMeteo"`
	WeatherGov     Source    `json:"weatherGov"`
	Weatherbit     Source    `json:"weatherbit"`
	Tomorrow       Source    `json:"tomorrow"`
	VisualCrossing Source    `json:"visualCrossing"`
	PirateWeather  Source    `json:"pirateWeather"`
	RainViewer     Source    `json:"rainviewer"`
	FetchedAt      time.Time `json:"fetchedAt"`
}

// Service fetches and merges weather data.
type Service struct {
	cfg    Config
	bases  bases
	client *resty.Client
	genai  genaiConfig
	logger *slog.Logger
}

// NewService creates a weather service. genaiURL/genaiKey configure the
// briefing gateway and may be empty (briefings then always use the
// fallback path).
func NewService(cfg Config, genaiURL, genaiKey, genaiModel string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:   cfg,
		bases: defaultBases(),
		client: resty.New().
			SetTimeout(sourceTimeout).
			SetHeader("User-Agent", userAgent),
		genai:  genaiConfig{url: genaiURL, key: genaiKey, model: genaiModel},
		logger: logger,
	}
}

// Aggregate queries every provider in parallel and merges the results.
// The second weather.gov hop (points response carries the forecast URL)
// runs after the fan-out.
func (s *Service) Aggregate(ctx context.Context, lat, lon string) Aggregate {
	agg := Aggregate{FetchedAt: time.Now().UTC()}

	var points Source
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		agg.OpenMeteo = s.fetch(gctx, s.bases.openMeteo+"/v1/forecast"+
			"?latitude="+lat+"&longitude="+lon+
			"&current=temperature_2m,relative_humidity_2m,apparent_temperature,precipitation,windspeed_10m,wind_direction_10m,weathercode"+
			"&hourly=temperature_2m,precipitation_probability,precipitation,windspeed_10m,weathercode"+
			"&daily=temperature_2m_max,temperature_2m_min,precipitation_probability_max,precipitation_sum,sunrise,sunset"+
			"&temperature_unit=fahrenheit&windspeed_unit=mph&precipitation_unit=inch&timezone=auto&forecast_days=7")
		return nil
	})
	g.Go(func() error {
		points = s.fetch(gctx, fmt.Sprintf("%s/points/%s,%s", s.bases.weatherGov, lat, lon))
		return nil
	})
	g.Go(func() error {
		if s.cfg.WeatherbitKey == "" {
			agg.Weatherbit = errSource("WEATHERBIT_KEY not configured")
			return nil
		}
		agg.Weatherbit = s.fetch(gctx, fmt.Sprintf(
			"%s/v2.0/forecast/daily?lat=%s&lon=%s&key=%s&units=I&days=7",
			s.bases.weatherbit, lat, lon, s.cfg.WeatherbitKey))
		return nil
	})
	g.Go(func() error {
		if s.cfg.TomorrowKey == "" {
			agg.Tomorrow = errSource("TOMORROW_KEY not configured")
			return nil
		}
		agg.Tomorrow = s.fetch(gctx, fmt.Sprintf(
			"%s/v4/weather/forecast?location=%s,%s&apikey=%s&units=imperial",
			s.bases.tomorrow, lat, lon, s.cfg.TomorrowKey))
		return nil
	})
	g.Go(func() error {
		if s.cfg.VisualCrossingKey == "" {
			agg.VisualCrossing = errSource("VISUAL_CROSSING_KEY not configured")
			return nil
		}
		agg.VisualCrossing = s.fetch(gctx, fmt.Sprintf(
			"%s/VisualCrossingWebServices/rest/services/timeline/%s,%s?key=%s&unitGroup=us&include=current,days,hours"+
				"&elements=datetime,temp,tempmax,tempmin,humidity,precip,precipprob,snow,windspeed,windgust,conditions,description",
			s.bases.visualCrossing, lat, lon, s.cfg.VisualCrossingKey))
		return nil
	})
	g.Go(func() error {
		if s.cfg.PirateWeatherKey == "" {
			agg.PirateWeather = errSource("PIRATE_WEATHER_KEY not configured")
			return nil
		}
		agg.PirateWeather = s.fetch(gctx, fmt.Sprintf(
			"%s/forecast/%s/%s,%s?units=us",
			s.bases.pirateWeather, s.cfg.PirateWeatherKey, lat, lon))
		return nil
	})
	g.Go(func() error {
		agg.RainViewer = s.fetch(gctx, s.bases.rainViewer+"/public/weather-maps.json")
		return nil
	})
	g.Wait()

	agg.WeatherGov = s.weatherGovSecondHop(ctx, points, lat, lon)
	return agg
}

// weatherGovSecondHop follows the points response to the forecast URL and
// fetches active alerts alongside it.
func (s *Service) weatherGovSecondHop(ctx context.Context, points Source, lat, lon string) Source {
	if !points.OK {
		return points
	}
	var pts struct {
		Properties struct {
			Forecast string `json:"forecast"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(points.Data, &pts); err != nil || pts.Properties.Forecast == "" {
		return errSource("weather.gov points response missing forecast URL")
	}

	var forecast, alerts Source
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		forecast = s.fetch(gctx, pts.Properties.Forecast)
		return nil
	})
	g.Go(func() error {
		alerts = s.fetch(gctx, fmt.Sprintf("%s/alerts/active?point=%s,%s", s.bases.weatherGov, lat, lon))
		return nil
	})
	g.Wait()

	combined := map[string]json.RawMessage{
		"forecast": nullable(forecast),
		"alerts":   nullable(alerts),
	}
	data, err := json.Marshal(combined)
	if err != nil {
		return errSource("merge weather.gov payload: %v", err)
	}
	return Source{OK: true, Data: data}
}

func nullable(s Source) json.RawMessage {
	if !s.OK {
		return json.RawMessage("null")
	}
	return s.Data
}

func (s *Service) fetch(ctx context.Context, url string) Source {
	resp, err := s.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return errSource("%v", err)
	}
	if resp.IsError() {
		return errSource("HTTP %d", resp.StatusCode())
	}
	return Source{OK: true, Data: json.RawMessage(resp.Body())}
}
