package config

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds all server configuration, parsed from environment variables.
type Config struct {
	Addr      string `env:"HOMEHUB_ADDR" envDefault:":8080"`
	LogLevel  string `env:"HOMEHUB_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"HOMEHUB_LOG_FORMAT" envDefault:"text"`

	// TimeZone is the fallback zone for chore resets when a caller does
	// not supply one. Households expect resets aligned to their local
	// midnight, not the server's.
	TimeZone string `env:"HOMEHUB_TZ" envDefault:"America/New_York"`

	SupabaseURL        string `env:"SUPABASE_URL"`
	SupabaseServiceKey string `env:"SUPABASE_SERVICE_ROLE_KEY"`
	OwnerEmail         string `env:"OWNER_EMAIL"`

	WeatherbitKey     string `env:"WEATHERBIT_KEY"`
	TomorrowKey       string `env:"TOMORROW_KEY"`
	VisualCrossingKey string `env:"VISUAL_CROSSING_KEY"`
	PirateWeatherKey  string `env:"PIRATE_WEATHER_KEY"`

	GenAIURL   string `env:"GENAI_URL"`
	GenAIKey   string `env:"GENAI_KEY"`
	GenAIModel string `env:"GENAI_MODEL" envDefault:"MaaS_4.1"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRefreshToken string `env:"GOOGLE_REFRESH_TOKEN"`
	PhotosAlbumID      string `env:"GOOGLE_PHOTOS_ALBUM_ID"`
	PhotosPageSize     int    `env:"GOOGLE_PHOTOS_PAGE_SIZE" envDefault:"50"`
	PhotosFetchMode    string `env:"GOOGLE_PHOTOS_FETCH_MODE"`
}

// Load parses configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// ValidateSupabase checks that the Supabase collaborator is configured.
// Handlers that need the store surface this as a 500 before doing any work.
func (c Config) ValidateSupabase() error {
	if c.SupabaseURL == "" || c.SupabaseServiceKey == "" {
		return errors.New("missing SUPABASE_URL or SUPABASE_SERVICE_ROLE_KEY")
	}
	return nil
}
