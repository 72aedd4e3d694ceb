package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	dashboardapi "github.com/BearBump/DispatchDesk/internal/api/dashboard_api"
	"github.com/BearBump/DispatchDesk/internal/services/alerts"
	"github.com/BearBump/DispatchDesk/internal/services/dispatch"
	"github.com/BearBump/DispatchDesk/internal/services/generator"
	"github.com/BearBump/DispatchDesk/internal/services/mileage"
	"github.com/BearBump/DispatchDesk/internal/services/performance"
	"github.com/BearBump/DispatchDesk/internal/services/settlement"
	"github.com/BearBump/DispatchDesk/internal/services/telemetry"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

func runDispatchAPI(ctx context.Context, s settings, f apiFactories) error {
	repo, closeStorage, err := f.newStorage(ctx, s)
	if err != nil {
		return err
	}
	defer closeStorage()

	rd, closeRedis := f.newRedis(s)
	defer closeRedis()
	producer, closeProducer := f.newProducer(s)
	defer closeProducer()
	consumer, closeConsumer := f.newConsumer(s)
	defer closeConsumer()

	gen := generator.NewGenerator(repo, nil)
	ctrl := generator.NewController(gen, s.generator, s.loc)

	disp := dispatch.New(repo, gen, s.loc)
	if rd.cache != nil {
		disp.WithRiderCache(rd.cache, s.riderCacheTTL)
	}
	if s.seedSamples {
		seeded, err := disp.SeedIfEmpty(ctx)
		if err != nil {
			slog.Warn("seed sample orders", "error", err.Error())
		} else if seeded {
			slog.Info("sample orders seeded")
		}
	}

	eng := alerts.New(repo)
	if producer != nil {
		eng.WithProducer(producer, s.alertsTopic)
	}
	tele := telemetry.New(repo, s.loc).WithOrders(disp)
	if rd.limiter != nil {
		tele.WithRateLimit(rd.limiter, s.pointsPerMinute)
	}

	api := dashboardapi.New(dashboardapi.Deps{
		Dispatch:    disp,
		Alerts:      eng,
		Settlements: settlement.New(repo, rd.locker).WithLockTTL(s.settlementLockTTL),
		Performance: performance.New(repo, s.loc),
		Mileage:     mileage.New(repo, s.loc),
		Telemetry:   tele,
		Generator:   ctrl,
	}).WithSwagger(s.swaggerPath)

	lis, err := net.Listen("tcp", s.httpAddr)
	if err != nil {
		return err
	}
	if s.onListen != nil {
		s.onListen(lis.Addr().String())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runHTTPServer(gctx, lis, api.Routes())
	})
	g.Go(func() error {
		if err := ctrl.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if consumer != nil {
		g.Go(func() error {
			slog.Info("kafka consumer started", "topic", s.telemetryTopic, "group", s.consumerGroup)
			err := consumer.Consume(gctx, func(_, value []byte) error {
				return tele.ApplyMessage(gctx, value)
			})
			if err != nil && gctx.Err() == nil {
				// Без Kafka HTTP продолжает работать.
				slog.Error("kafka consumer stopped", "error", err.Error())
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func runHTTPServer(ctx context.Context, lis net.Listener, h http.Handler) error {
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("HTTP server listening", "addr", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
