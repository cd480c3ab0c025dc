package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/hydrowatch/reservoir-pipeline/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	DatabaseURL string

	KafkaBrokers    []string
	ConsumerGroupID string
	ConsumerTopics  []string // exact topics, or the single pattern "*"
	TopicScheme     domain.TopicScheme

	CDECBaseURL  string
	CDECTimeout  time.Duration
	SensorNumber string
	DurationCode string
	CSVDir       string

	ConfigFile string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// FetchDailyAt enables the scheduled fetch-and-store job when set to a
	// local "HH:MM" time. Empty disables the scheduler.
	FetchDailyAt string
}

// Load reads configuration from environment variables, applying defaults
// where unset. A .env file in the working directory is honored if present.
func Load() (*Config, error) {
	_ = godotenv.Load() // ignore missing file

	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	cdecTimeout, err := parseDuration("CDEC_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL:     envOrDefault("DATABASE_URL", "postgres://localhost:5432/reservoir"),
		KafkaBrokers:    splitList(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		ConsumerGroupID: envOrDefault("KAFKA_GROUP_ID", "reservoir-ingest"),
		ConsumerTopics:  splitList(envOrDefault("KAFKA_CONSUMER_TOPICS", "*")),
		TopicScheme:     domain.TopicScheme(envOrDefault("TOPIC_SCHEME", string(domain.SchemeStation))),
		CDECBaseURL:     envOrDefault("CDEC_BASE_URL", "https://cdec.water.ca.gov/dynamicapp/req/CSVDataServlet"),
		CDECTimeout:     cdecTimeout,
		SensorNumber:    envOrDefault("CDEC_SENSOR_NUMS", "6"),
		DurationCode:    envOrDefault("CDEC_DUR_CODE", "D"),
		CSVDir:          envOrDefault("CSV_DIR", "csv_data"),
		ConfigFile:      envOrDefault("RESERVOIR_CONFIG_FILE", "reservoir_configs.json"),
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		FetchDailyAt:    os.Getenv("FETCH_DAILY_AT"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if !cfg.TopicScheme.Valid() {
		return nil, fmt.Errorf("invalid TOPIC_SCHEME %q (want %q or %q)",
			cfg.TopicScheme, domain.SchemeStation, domain.SchemeReservoir)
	}
	if len(cfg.ConsumerTopics) == 0 {
		return nil, errors.New("KAFKA_CONSUMER_TOPICS is required")
	}
	if cfg.FetchDailyAt != "" {
		if _, err := time.Parse("15:04", cfg.FetchDailyAt); err != nil {
			return nil, fmt.Errorf("invalid FETCH_DAILY_AT %q: want HH:MM", cfg.FetchDailyAt)
		}
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseDuration(key, fallback string) (time.Duration, error) {
	raw := envOrDefault(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return d, nil
}
