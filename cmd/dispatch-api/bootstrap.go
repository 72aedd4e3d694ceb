package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/DispatchDesk/config"
	"github.com/BearBump/DispatchDesk/internal/broker/kafka"
	"github.com/BearBump/DispatchDesk/internal/cache"
	"github.com/BearBump/DispatchDesk/internal/cache/rediscache"
	"github.com/BearBump/DispatchDesk/internal/models"
	"github.com/BearBump/DispatchDesk/internal/services/alerts"
	"github.com/BearBump/DispatchDesk/internal/services/dispatch"
	"github.com/BearBump/DispatchDesk/internal/services/generator"
	"github.com/BearBump/DispatchDesk/internal/services/mileage"
	"github.com/BearBump/DispatchDesk/internal/services/performance"
	"github.com/BearBump/DispatchDesk/internal/services/settlement"
	"github.com/BearBump/DispatchDesk/internal/services/telemetry"
	"github.com/BearBump/DispatchDesk/internal/storage/pgdispatch"
	"github.com/pkg/errors"
)

// store is everything the services need from Postgres.
type store interface {
	dispatch.Repository
	alerts.Repository
	settlement.Repository
	performance.Repository
	mileage.Repository
	telemetry.Repository
	generator.Repository
}

type settings struct {
	httpAddr    string
	swaggerPath string
	connString  string
	loc         *time.Location
	logLevel    slog.Level

	brokers        []string
	telemetryTopic string
	alertsTopic    string
	consumerGroup  string

	redisAddr string

	settlementLockTTL time.Duration
	riderCacheTTL     time.Duration
	pointsPerMinute   int64
	seedSamples       bool
	generator         generator.Config

	onListen func(httpAddr string)
}

func resolveSettings(cfg *config.Config) (settings, error) {
	d := cfg.Dispatch
	s := settings{
		httpAddr:        d.HTTPAddr,
		swaggerPath:     d.SwaggerPath,
		consumerGroup:   d.KafkaConsumerGroup,
		telemetryTopic:  cfg.Kafka.TelemetryTopic,
		alertsTopic:     cfg.Kafka.AlertsTopic,
		seedSamples:     !d.SkipSampleSeed,
		pointsPerMinute: int64(d.PointsRateLimitPerMinute),
	}
	if s.httpAddr == "" {
		s.httpAddr = ":8001"
	}
	if s.consumerGroup == "" {
		s.consumerGroup = "dispatch-api"
	}
	if s.telemetryTopic == "" {
		s.telemetryTopic = "dispatch.telemetry"
	}
	if s.alertsTopic == "" {
		s.alertsTopic = "dispatch.alerts"
	}
	if s.pointsPerMinute <= 0 {
		s.pointsPerMinute = 120
	}

	s.settlementLockTTL = time.Duration(d.SettlementLockTTLSeconds) * time.Second
	if s.settlementLockTTL <= 0 {
		s.settlementLockTTL = 30 * time.Second
	}
	s.riderCacheTTL = time.Duration(d.RiderCacheTTLSeconds) * time.Second
	if s.riderCacheTTL <= 0 {
		s.riderCacheTTL = 5 * time.Second
	}

	tz := d.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return settings{}, errors.Wrapf(err, "timezone %q", tz)
	}
	s.loc = loc

	switch strings.ToUpper(d.LogLevel) {
	case "", "INFO":
		s.logLevel = slog.LevelInfo
	case "DEBUG":
		s.logLevel = slog.LevelDebug
	case "WARN", "WARNING":
		s.logLevel = slog.LevelWarn
	case "ERROR":
		s.logLevel = slog.LevelError
	default:
		return settings{}, errors.Errorf("unknown log level %q", d.LogLevel)
	}

	g := generator.DefaultConfig()
	if d.GeneratorEnabled != nil {
		g.Enabled = *d.GeneratorEnabled
	}
	if d.GeneratorRate > 0 {
		g.Rate = d.GeneratorRate
	}
	if d.GeneratorHours > 0 {
		g.Hours = d.GeneratorHours
	}
	if d.GeneratorIntervalMinutes > 0 {
		g.Interval = time.Duration(d.GeneratorIntervalMinutes) * time.Minute
	}
	if d.GeneratorTimeProfile != nil {
		g.TimeProfile = *d.GeneratorTimeProfile
	}
	s.generator = g

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	s.connString = fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)

	// Пустой host выключает Kafka / Redis.
	if cfg.Kafka.Host != "" {
		s.brokers = []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	}
	if cfg.Redis.Host != "" {
		s.redisAddr = fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	}
	return s, nil
}

type redisDeps struct {
	cache   cache.BytesCache
	limiter telemetry.RateLimiter
	locker  settlement.Locker
}

type telemetryConsumer interface {
	Consume(ctx context.Context, handler kafka.Handler) error
}

type apiFactories struct {
	newStorage  func(ctx context.Context, s settings) (repo store, closeFn func(), err error)
	newRedis    func(s settings) (redisDeps, func())
	newProducer func(s settings) (alerts.Producer, func())
	newConsumer func(s settings) (telemetryConsumer, func())
}

func defaultFactories() apiFactories {
	return apiFactories{
		newStorage: func(ctx context.Context, s settings) (store, func(), error) {
			st, err := openPostgresWithRetry(ctx, s.connString, 60*time.Second)
			if err != nil {
				return nil, nil, err
			}
			if v, err := st.SchemaVersion(ctx); err == nil {
				slog.Info("postgres ready", "schema_version", v)
			}
			return st, st.Close, nil
		},
		newRedis: func(s settings) (redisDeps, func()) {
			if s.redisAddr == "" {
				return redisDeps{}, func() {}
			}
			cl := rediscache.Dial(s.redisAddr)
			return redisDeps{
				cache:   rediscache.NewCache(cl),
				limiter: rediscache.NewRateLimiter(cl),
				locker:  rediscache.NewLocker(cl),
			}, func() { _ = cl.Close() }
		},
		newProducer: func(s settings) (alerts.Producer, func()) {
			if len(s.brokers) == 0 {
				return nil, func() {}
			}
			p := kafka.NewProducer(s.brokers)
			return p, func() { _ = p.Close() }
		},
		newConsumer: func(s settings) (telemetryConsumer, func()) {
			if len(s.brokers) == 0 {
				return nil, func() {}
			}
			c := kafka.NewConsumer(s.brokers, s.telemetryTopic, s.consumerGroup).
				WithSkip(func(err error) bool { return errors.Is(err, models.ErrInvalidArgument) })
			return c, func() { _ = c.Close() }
		},
	}
}

// openPostgresWithRetry ждёт, пока база поднимется (docker-compose стартует параллельно).
func openPostgresWithRetry(ctx context.Context, connString string, wait time.Duration) (*pgdispatch.Storage, error) {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgdispatch.New(connString)
		if err == nil {
			return st, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}
	return nil, errors.Wrapf(lastErr, "postgres is not ready after %s", wait)
}

var _ store = (*pgdispatch.Storage)(nil)
