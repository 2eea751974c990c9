package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"crm-automation-api/internal/notify"

	"github.com/joho/godotenv"
)

// Config is the complete runtime configuration, read from the environment.
type Config struct {
	DatabaseURL    string
	RunMigrations  bool
	APIPort        string
	AllowedOrigins []string
	JWTSecret      string
	InstanceID     string

	ScanWindowStartHours float64
	ScanWindowEndHours   float64
	ScanSchedule         string
	ScanTickTimeout      time.Duration

	ActionTimeout    time.Duration
	ActionRetryDelay time.Duration
	ClaimTTL         time.Duration

	MonitorLeaseTTL   time.Duration
	MonitorStaleAfter time.Duration

	SMTP notify.SMTPConfig
}

// LoadDotEnv laadt een .env bestand als het bestaat. Een ontbrekend bestand
// is geen fout.
func LoadDotEnv(files ...string) {
	_ = godotenv.Load(files...)
}

// Load reads the configuration from the environment, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RunMigrations:  strings.EqualFold(os.Getenv("RUN_MIGRATIONS"), "true"),
		APIPort:        getString("API_PORT", "8080"),
		AllowedOrigins: splitList(os.Getenv("ALLOWED_ORIGINS")),
		JWTSecret:      os.Getenv("JWT_SECRET_KEY"),
		InstanceID:     os.Getenv("INSTANCE_ID"),
		ScanSchedule:   getString("SCAN_SCHEDULE", "@every 1h"),
		SMTP: notify.SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     os.Getenv("SMTP_FROM"),
			TLS:      strings.EqualFold(os.Getenv("SMTP_TLS"), "true"),
		},
	}

	var errs []string
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	var err error
	cfg.ScanWindowStartHours, err = getFloat("SCAN_WINDOW_START_HOURS", 1.0)
	collect(err)
	cfg.ScanWindowEndHours, err = getFloat("SCAN_WINDOW_END_HOURS", 3.0)
	collect(err)
	cfg.ScanTickTimeout, err = getDuration("SCAN_TICK_TIMEOUT", 10*time.Minute)
	collect(err)
	cfg.ActionTimeout, err = getDuration("ACTION_TIMEOUT", 30*time.Second)
	collect(err)
	cfg.ActionRetryDelay, err = getDuration("ACTION_RETRY_DELAY", 2*time.Second)
	collect(err)
	cfg.ClaimTTL, err = getDuration("CLAIM_TTL", 15*time.Minute)
	collect(err)
	cfg.MonitorLeaseTTL, err = getDuration("MONITOR_LEASE_TTL", 0)
	collect(err)
	cfg.MonitorStaleAfter, err = getDuration("MONITOR_STALE_AFTER", 3*time.Hour)
	collect(err)
	cfg.SMTP.Port, err = getInt("SMTP_PORT", 587)
	collect(err)

	if cfg.ScanWindowStartHours > cfg.ScanWindowEndHours {
		errs = append(errs, fmt.Sprintf("SCAN_WINDOW_START_HOURS (%v) is after SCAN_WINDOW_END_HOURS (%v)",
			cfg.ScanWindowStartHours, cfg.ScanWindowEndHours))
	}

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// RequireServer checks the keys only the HTTP server needs.
func (c Config) RequireServer() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is not set")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}
	return nil
}

func getString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getFloat(key string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a number", key, v)
	}
	return f, nil
}

func getInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", key, v)
	}
	return n, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a duration", key, v)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: must not be negative", key)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
