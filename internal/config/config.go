package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Forecast cycle cadence and observation window.
	PollInterval time.Duration
	LookbackDays int

	// DONKI feed configuration.
	DONKIBaseURL   string
	NASAAPIKey     string
	FetchTimeout   time.Duration
	DONKICacheTTL  time.Duration
	DONKIRateLimit float64
	DONKIRateBurst int

	// Narrative generation configuration.
	NarrativeEnabled bool
	NarrativeTimeout time.Duration
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIModel      string

	// Forecast history persistence.
	HistoryEnabled bool
	HistoryDBPath  string

	// Kafka forecast publishing.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parsePositiveDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	pollInterval, err := parsePositiveDuration("POLL_INTERVAL", "30s")
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := parsePositiveDuration("FETCH_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	narrativeTimeout, err := parsePositiveDuration("NARRATIVE_TIMEOUT", "20s")
	if err != nil {
		return nil, err
	}

	lookbackDays, err := parseIntInRange("LOOKBACK_DAYS", 3, 1, 30)
	if err != nil {
		return nil, err
	}

	cacheTTL, err := parseCacheTTL()
	if err != nil {
		return nil, err
	}

	rateLimit, rateBurst, err := parseRateLimit()
	if err != nil {
		return nil, err
	}

	openAIKey := os.Getenv("OPENAI_API_KEY")
	narrativeEnabled := openAIKey != ""
	if v := os.Getenv("NARRATIVE_ENABLED"); v != "" {
		narrativeEnabled = v == "true"
	}

	kafkaEnabled := os.Getenv("KAFKA_ENABLED") == "true"

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		PollInterval: pollInterval,
		LookbackDays: lookbackDays,

		DONKIBaseURL:   envOrDefault("DONKI_BASE_URL", "https://api.nasa.gov/DONKI"),
		NASAAPIKey:     envOrDefault("NASA_API_KEY", "DEMO_KEY"),
		FetchTimeout:   fetchTimeout,
		DONKICacheTTL:  cacheTTL,
		DONKIRateLimit: rateLimit,
		DONKIRateBurst: rateBurst,

		NarrativeEnabled: narrativeEnabled,
		NarrativeTimeout: narrativeTimeout,
		OpenAIAPIKey:     openAIKey,
		OpenAIBaseURL:    envOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:      envOrDefault("OPENAI_MODEL", "gpt-4o-mini"),

		HistoryEnabled: os.Getenv("HISTORY_ENABLED") != "false",
		HistoryDBPath:  envOrDefault("HISTORY_DB_PATH", "forecasts.db"),

		KafkaEnabled: kafkaEnabled,
		KafkaBrokers: parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   envOrDefault("KAFKA_TOPIC", "space-weather-forecasts"),
	}

	if cfg.DONKIBaseURL == "" {
		return nil, errors.New("DONKI_BASE_URL is required")
	}
	if cfg.NarrativeEnabled && cfg.OpenAIAPIKey == "" {
		return nil, errors.New("NARRATIVE_ENABLED is true but OPENAI_API_KEY is not set")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if cfg.KafkaEnabled && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_TOPIC is not set")
	}

	return cfg, nil
}

// envOrDefault returns the environment variable's value, or def when unset.
func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// parsePositiveDuration parses a duration environment variable and rejects
// zero and negative values.
func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

// parseIntInRange parses an integer environment variable bounded to [min, max].
func parseIntInRange(key string, def, min, max int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < min || n > max {
		return 0, fmt.Errorf("%s must be between %d and %d", key, min, max)
	}
	return n, nil
}

// parseCacheTTL parses DONKI_CACHE_TTL. Zero is allowed and disables the
// feed cache.
func parseCacheTTL() (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault("DONKI_CACHE_TTL", "20s"))
	if err != nil || d < 0 {
		return 0, errors.New("invalid DONKI_CACHE_TTL")
	}
	return d, nil
}

// parseRateLimit parses the DONKI request rate settings. The limit is in
// requests per second; NASA's published quota for DEMO_KEY is well below the
// default of 1 rps sustained with a burst of 2.
func parseRateLimit() (float64, int, error) {
	limit := 1.0
	if s := os.Getenv("DONKI_RATE_LIMIT"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v <= 0 {
			return 0, 0, errors.New("invalid DONKI_RATE_LIMIT")
		}
		limit = v
	}

	burst := 2
	if s := os.Getenv("DONKI_RATE_BURST"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return 0, 0, errors.New("invalid DONKI_RATE_BURST")
		}
		burst = n
	}
	return limit, burst, nil
}

// parseBrokers splits a comma-separated broker list, dropping empty entries.
func parseBrokers(s string) []string {
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}
