package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/DispatchDesk/config"
	"github.com/pkg/errors"
)

func main() {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	s, err := resolveSettings(cfg)
	if err != nil {
		panic(err)
	}
	if p := os.Getenv("swaggerPath"); p != "" {
		s.swaggerPath = p
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: s.logLevel})))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := runDispatchAPI(ctx, s, defaultFactories()); err != nil && !errors.Is(err, context.Canceled) {
		panic(err)
	}
}
