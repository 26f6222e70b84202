package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"github.com/example/carpool-matching/internal/config"
	"github.com/example/carpool-matching/internal/ingest"
	"github.com/example/carpool-matching/internal/logging"
	"github.com/example/carpool-matching/internal/trips"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_consumed_total",
		Help: "Total trip event messages consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_invalid_total",
		Help: "Total invalid messages received",
	})
	cacheInvalidations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_cache_invalidations_total",
		Help: "Total trips cache entries invalidated",
	})
	cacheErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_cache_errors_total",
		Help: "Total cache invalidations that failed after retries",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, cacheInvalidations, cacheErrors)
}

func main() {
	cfg, err := config.LoadConsumerConfig()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger("carpool-matching-consumer", cfg.LogLevel)

	rc := trips.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword)

	// metrics and health server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := rc.Ping(r.Context()); err != nil {
				http.Error(w, "redis not ready", 503)
				return
			}
			w.WriteHeader(200)
			w.Write([]byte("ready"))
		})
		logger.Info("metrics/health listening", "addr", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic, GroupID: cfg.KafkaGroup, MinBytes: 1, MaxBytes: 10e6})
	defer func() {
		_ = r.Close()
		_ = rc.Close()
	}()

	logger.Info("consumer listening", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers, "group", cfg.KafkaGroup)
	consume(ctx, r, rc, logger)
	logger.Info("shutting down consumer")
}

// MessageReader is the subset of *kafka.Reader the consume loop needs.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// KeyDeleter drops cache keys. *trips.RedisCache satisfies it.
type KeyDeleter interface {
	Del(ctx context.Context, keys ...string) error
}

func consume(ctx context.Context, r MessageReader, cache KeyDeleter, logger *slog.Logger) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("kafka read error", "error", err, "backoff", backoff)
			if !sleep(ctx, backoff) {
				return
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second

		msgsConsumed.Inc()

		ev, err := ingest.DecodeTripEvent(m.Value)
		if err != nil {
			msgsInvalid.Inc()
			logger.Warn("invalid trip event", "offset", m.Offset, "error", err)
			continue
		}

		if err := invalidateWithRetry(ctx, cache, ev, 3, 200*time.Millisecond); err != nil {
			cacheErrors.Inc()
			logger.Error("cache invalidation failed", "trip_id", ev.TripID, "sede_id", ev.DestinationSedeID, "direction", ev.Direction, "error", err)
			continue
		}
		cacheInvalidations.Inc()
		logger.Debug("trips cache invalidated", "trip_id", ev.TripID, "event", ev.Type, "key", trips.CacheKey(ev.DestinationSedeID, ev.Direction))
	}
}

// invalidateWithRetry drops the cached candidate set the event affects,
// doubling the delay between attempts.
func invalidateWithRetry(ctx context.Context, cache KeyDeleter, ev ingest.TripEvent, attempts int, delay time.Duration) error {
	key := trips.CacheKey(ev.DestinationSedeID, ev.Direction)
	var err error
	for i := 0; i < attempts; i++ {
		if err = cache.Del(ctx, key); err == nil {
			return nil
		}
		if i == attempts-1 || !sleep(ctx, delay) {
			break
		}
		delay *= 2
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
