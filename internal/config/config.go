package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig captures all tunable parameters for the matching API process.
// Values come from the environment (or an optional .env file) with defaults
// that let the binary run locally against in-memory backends.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	TripsCacheTTL time.Duration

	KafkaBrokers    []string
	KafkaMatchTopic string

	PGDSN         string
	RunMigrations bool

	TripsServiceURL  string
	TripsTimeout     time.Duration
	NotificationsURL string
	NotifyTimeout    time.Duration

	LogLevel string
}

// ConsumerConfig configures the trip event consumer.
type ConsumerConfig struct {
	MetricsAddr   string
	KafkaBrokers  []string
	KafkaTopic    string
	KafkaGroup    string
	RedisAddr     string
	RedisPassword string
	LogLevel      string
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:        ":8080",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		TripsCacheTTL:   30 * time.Second,
		KafkaMatchTopic: "match-events",
		TripsTimeout:    2 * time.Second,
		NotifyTimeout:   3 * time.Second,
		LogLevel:        "info",
	}
}

func defaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		MetricsAddr:  ":2112",
		KafkaBrokers: []string{"localhost:9092"},
		KafkaTopic:   "trip-events",
		KafkaGroup:   "carpool-matching-consumer",
		RedisAddr:    "localhost:6379",
		LogLevel:     "info",
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	// a missing .env is fine, the environment still applies
	_ = v.ReadInConfig()
	return v
}

func LoadServerConfig() (ServerConfig, error) {
	v := newViper()
	cfg := defaultServerConfig()
	var errs []error

	setString(v, &cfg.HTTPAddr, "HTTP_ADDR")
	setDuration(v, &cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDuration(v, &cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDuration(v, &cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDuration(v, &cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	setString(v, &cfg.RedisAddr, "REDIS_ADDR")
	cfg.RedisPassword = v.GetString("REDIS_PASSWORD")
	setDuration(v, &cfg.TripsCacheTTL, "TRIPS_CACHE_TTL", &errs)

	if brokers := v.GetString("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setString(v, &cfg.KafkaMatchTopic, "KAFKA_MATCH_TOPIC")

	setString(v, &cfg.PGDSN, "PG_DSN")
	cfg.RunMigrations = setBool(v, "MIGRATE", &errs)

	setString(v, &cfg.TripsServiceURL, "TRIPS_SERVICE_URL")
	cfg.TripsServiceURL = strings.TrimRight(cfg.TripsServiceURL, "/")
	setDuration(v, &cfg.TripsTimeout, "TRIPS_TIMEOUT", &errs)
	setString(v, &cfg.NotificationsURL, "NOTIFICATIONS_URL")
	cfg.NotificationsURL = strings.TrimRight(cfg.NotificationsURL, "/")
	setDuration(v, &cfg.NotifyTimeout, "NOTIFY_TIMEOUT", &errs)

	if lvl := v.GetString("LOG_LEVEL"); lvl != "" {
		cfg.LogLevel = strings.ToLower(lvl)
	}

	if cfg.TripsCacheTTL < 0 {
		errs = append(errs, fmt.Errorf("TRIPS_CACHE_TTL must be >= 0"))
	}
	if cfg.TripsTimeout <= 0 {
		errs = append(errs, fmt.Errorf("TRIPS_TIMEOUT must be > 0"))
	}
	if cfg.NotifyTimeout <= 0 {
		errs = append(errs, fmt.Errorf("NOTIFY_TIMEOUT must be > 0"))
	}
	if cfg.RunMigrations && cfg.PGDSN == "" {
		errs = append(errs, fmt.Errorf("MIGRATE requires PG_DSN"))
	}

	return cfg, errors.Join(errs...)
}

func LoadConsumerConfig() (ConsumerConfig, error) {
	v := newViper()
	cfg := defaultConsumerConfig()

	setString(v, &cfg.MetricsAddr, "METRICS_ADDR")
	brokers := v.GetString("KAFKA_BROKERS")
	if brokers == "" {
		brokers = v.GetString("KAFKA_BROKER")
	}
	if brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setString(v, &cfg.KafkaTopic, "KAFKA_TRIP_TOPIC")
	setString(v, &cfg.KafkaGroup, "KAFKA_GROUP")
	setString(v, &cfg.RedisAddr, "REDIS_ADDR")
	cfg.RedisPassword = v.GetString("REDIS_PASSWORD")
	if lvl := v.GetString("LOG_LEVEL"); lvl != "" {
		cfg.LogLevel = strings.ToLower(lvl)
	}

	if len(cfg.KafkaBrokers) == 0 {
		return cfg, errors.New("KAFKA_BROKERS must list at least one broker")
	}
	return cfg, nil
}

func setDuration(v *viper.Viper, target *time.Duration, key string, errs *[]error) {
	if s := strings.TrimSpace(v.GetString(key)); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setBool(v *viper.Viper, key string, errs *[]error) bool {
	s := strings.TrimSpace(v.GetString(key))
	if s == "" {
		return false
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return false
	}
	return b
}

func setString(v *viper.Viper, target *string, key string) {
	if s := strings.TrimSpace(v.GetString(key)); s != "" {
		*target = s
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
