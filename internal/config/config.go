package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed policy.yaml
var policyYAML []byte

type Config struct {
	Database  DatabaseConfig
	Web       WebConfig
	Extractor ExtractorConfig
	Geocoder  GeocoderConfig
	Logging   LoggingConfig
	Policy    PolicyConfig
}

type DatabaseConfig struct {
	URL          string // postgres://..., mariadb://... or sqlite://path/to/file.db
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

// Driver returns the storage backend selected by the URL scheme.
func (c *DatabaseConfig) Driver() string {
	switch {
	case strings.HasPrefix(c.URL, "sqlite://"), strings.HasPrefix(c.URL, "file:"):
		return "sqlite"
	case strings.HasPrefix(c.URL, "postgres://"), strings.HasPrefix(c.URL, "postgresql://"):
		return "postgres"
	case strings.HasPrefix(c.URL, "mariadb://"), strings.HasPrefix(c.URL, "mysql://"):
		return "mariadb"
	}
	return ""
}

// SQLitePath strips the sqlite:// scheme from the URL.
func (c *DatabaseConfig) SQLitePath() string {
	return strings.TrimPrefix(c.URL, "sqlite://")
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
}

type ExtractorConfig struct {
	URL     string        // descriptor extractor base URL, empty disables image verification
	Timeout time.Duration // per-request timeout (default 15s)
}

type GeocoderConfig struct {
	Provider     string // nominatim, google or none
	NominatimURL string
	GoogleAPIKey string
	UserAgent    string
	Timeout      time.Duration // default 5s
}

type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json or text
}

// PolicyConfig holds matching and attendance business rules.
type PolicyConfig struct {
	Matching   MatchingPolicy   `yaml:"matching"`
	Attendance AttendancePolicy `yaml:"attendance"`
}

type MatchingPolicy struct {
	DescriptorDim        int     `yaml:"descriptor_dim"`
	LiveThreshold        float64 `yaml:"live_threshold"`
	SingleFrameThreshold float64 `yaml:"single_frame_threshold"`
	MinVotes             int     `yaml:"min_votes"`
	EarlyExit            bool    `yaml:"early_exit"`
	DuplicateThreshold   float64 `yaml:"duplicate_threshold"`
}

type AttendancePolicy struct {
	Timezone       string `yaml:"timezone"`
	OfficeStart    string `yaml:"office_start"` // HH:MM in Timezone
	FullDayMinutes int    `yaml:"full_day_minutes"`
	HalfDayMinutes int    `yaml:"half_day_minutes"`
}

// Location loads the configured timezone.
func (p *AttendancePolicy) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", p.Timezone, err)
	}
	return loc, nil
}

// OfficeStartClock parses OfficeStart into hour and minute.
func (p *AttendancePolicy) OfficeStartClock() (int, int, error) {
	t, err := time.Parse("15:04", p.OfficeStart)
	if err != nil {
		return 0, 0, fmt.Errorf("parse office_start %q: %w", p.OfficeStart, err)
	}
	return t.Hour(), t.Minute(), nil
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envDuration reads an environment variable as a time.Duration ("5s", "250ms").
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LoadPolicy parses policy YAML on top of the embedded defaults.
func LoadPolicy(data []byte) (PolicyConfig, error) {
	var policy PolicyConfig
	if err := yaml.Unmarshal(policyYAML, &policy); err != nil {
		// Embedded file, this only fails on a broken build.
		panic("failed to unmarshal embedded policy.yaml: " + err.Error())
	}
	if len(data) == 0 {
		return policy, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&policy); err != nil {
		return PolicyConfig{}, fmt.Errorf("parse policy: %w", err)
	}
	return policy, nil
}

func Load() (*Config, error) {
	var override []byte
	if path := os.Getenv("POLICY_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read policy file: %w", err)
		}
		override = data
	}

	policy, err := LoadPolicy(override)
	if err != nil {
		return nil, err
	}
	if tz := os.Getenv("ATTENDANCE_TIMEZONE"); tz != "" {
		policy.Attendance.Timezone = tz
	}

	cfg := &Config{
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8080),
			AllowedOrigins: splitList(os.Getenv("WEB_ALLOWED_ORIGINS")),
		},
		Extractor: ExtractorConfig{
			URL:     os.Getenv("EXTRACTOR_URL"),
			Timeout: envDuration("EXTRACTOR_TIMEOUT", 15*time.Second),
		},
		Geocoder: GeocoderConfig{
			Provider:     envString("GEOCODER", "nominatim"),
			NominatimURL: envString("NOMINATIM_URL", "https://nominatim.openstreetmap.org"),
			GoogleAPIKey: os.Getenv("GOOGLE_MAPS_API_KEY"),
			UserAgent:    envString("GEOCODER_USER_AGENT", "punchclock"),
			Timeout:      envDuration("GEOCODER_TIMEOUT", 5*time.Second),
		},
		Logging: LoggingConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "json"),
		},
		Policy: policy,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks policy ranges and provider settings.
func (c *Config) Validate() error {
	m := c.Policy.Matching
	a := c.Policy.Attendance
	var errs []error

	if m.DescriptorDim <= 0 {
		errs = append(errs, errors.New("matching.descriptor_dim must be positive"))
	}
	if m.LiveThreshold <= 0 || m.SingleFrameThreshold <= 0 {
		errs = append(errs, errors.New("matching thresholds must be positive"))
	}
	if m.MinVotes < 1 {
		errs = append(errs, errors.New("matching.min_votes must be at least 1"))
	}
	if m.DuplicateThreshold <= 0 {
		errs = append(errs, errors.New("matching.duplicate_threshold must be positive"))
	}
	if _, err := a.Location(); err != nil {
		errs = append(errs, err)
	}
	if _, _, err := a.OfficeStartClock(); err != nil {
		errs = append(errs, err)
	}
	if a.HalfDayMinutes <= 0 || a.FullDayMinutes <= a.HalfDayMinutes {
		errs = append(errs, errors.New("attendance: need 0 < half_day_minutes < full_day_minutes"))
	}
	switch c.Geocoder.Provider {
	case "nominatim", "none":
	case "google":
		if c.Geocoder.GoogleAPIKey == "" {
			errs = append(errs, errors.New("GOOGLE_MAPS_API_KEY is required for the google geocoder"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown geocoder %q", c.Geocoder.Provider))
	}

	return errors.Join(errs...)
}
