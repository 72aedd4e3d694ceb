package generator

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Config is an immutable snapshot. Controller swaps whole snapshots.
type Config struct {
	Enabled     bool          `json:"enabled"`
	Rate        int           `json:"rate"`
	Hours       int           `json:"hours"`
	Interval    time.Duration `json:"-"`
	TimeProfile bool          `json:"ai"`
}

func DefaultConfig() Config {
	return Config{Enabled: true, Rate: 5, Hours: 24, Interval: time.Minute, TimeProfile: true}
}

func (c Config) normalized() Config {
	if c.Rate < 0 {
		c.Rate = 0
	}
	if c.Hours < 1 {
		c.Hours = 1
	}
	if c.Interval < time.Minute {
		c.Interval = time.Minute
	}
	return c
}

// StartParams are the knobs accepted by Start.
type StartParams struct {
	Rate            int
	Hours           int
	IntervalMinutes int
	TimeProfile     bool
}

// Multiplier scales the per-cycle rate by minute-of-hour and rush hours.
func Multiplier(t time.Time) float64 {
	m := 0.6 + 0.4*math.Sin(float64(t.Minute())/60*2*math.Pi)
	switch h := t.Hour(); {
	case h >= 11 && h <= 13:
		m *= 2.2
	case h >= 17 && h <= 20:
		m *= 2.6
	case h >= 0 && h <= 6:
		m *= 0.3
	}
	return m
}

// CycleCount is how many orders one cycle inserts.
func CycleCount(cfg Config, t time.Time) int {
	if cfg.Rate <= 0 {
		return 0
	}
	mult := 1.0
	if cfg.TimeProfile {
		mult = Multiplier(t)
	}
	return int(math.Round(float64(cfg.Rate) * mult))
}

type Inserter interface {
	Insert(ctx context.Context, count, hours int, riders []string) (int, error)
}

type Controller struct {
	gen Inserter
	loc *time.Location
	now func() time.Time

	cfg  atomic.Pointer[Config]
	wake chan struct{}

	startedAtUnixNano int64
	lastCycleUnixNano atomic.Int64
	totalCycles       atomic.Int64
	totalInserted     atomic.Int64
	totalErrors       atomic.Int64
	lastErrorMu       sync.Mutex
	lastError         string
}

func NewController(gen Inserter, cfg Config, loc *time.Location) *Controller {
	if loc == nil {
		loc = time.UTC
	}
	c := &Controller{
		gen:               gen,
		loc:               loc,
		now:               time.Now,
		wake:              make(chan struct{}, 1),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
	cfg = cfg.normalized()
	c.cfg.Store(&cfg)
	return c
}

func (c *Controller) Config() Config {
	return *c.cfg.Load()
}

// Start включает генератор с новыми параметрами и будит цикл.
func (c *Controller) Start(p StartParams) Config {
	cfg := Config{
		Enabled:     true,
		Rate:        p.Rate,
		Hours:       p.Hours,
		Interval:    time.Duration(p.IntervalMinutes) * time.Minute,
		TimeProfile: p.TimeProfile,
	}.normalized()
	c.cfg.Store(&cfg)
	c.signal()
	return cfg
}

func (c *Controller) Stop() Config {
	cfg := c.Config()
	cfg.Enabled = false
	c.cfg.Store(&cfg)
	c.signal()
	return cfg
}

func (c *Controller) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt     time.Time  `json:"startedAt"`
	LastCycleAt   *time.Time `json:"lastCycleAt,omitempty"`
	TotalCycles   int64      `json:"totalCycles"`
	TotalInserted int64      `json:"totalInserted"`
	TotalErrors   int64      `json:"totalErrors"`
	LastError     string     `json:"lastError,omitempty"`
}

func (c *Controller) Stats() Stats {
	st := Stats{
		StartedAt:     time.Unix(0, c.startedAtUnixNano).UTC(),
		TotalCycles:   c.totalCycles.Load(),
		TotalInserted: c.totalInserted.Load(),
		TotalErrors:   c.totalErrors.Load(),
	}
	if n := c.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	c.lastErrorMu.Lock()
	st.LastError = c.lastError
	c.lastErrorMu.Unlock()
	return st
}

// Run вставляет заказы каждые Interval, пока генератор включён.
// Выключенный генератор ждёт Start или отмены контекста.
func (c *Controller) Run(ctx context.Context) error {
	for {
		cfg := c.Config()
		if cfg.Enabled {
			c.runOnce(ctx, cfg)
		}

		var (
			timer *time.Timer
			tick  <-chan time.Time
		)
		if cfg.Enabled {
			timer = time.NewTimer(cfg.Interval)
			tick = timer.C
		}
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()
		case <-tick:
		case <-c.wake:
			if timer != nil {
				timer.Stop()
			}
		}
	}
}

func (c *Controller) runOnce(ctx context.Context, cfg Config) {
	now := c.now()
	c.lastCycleUnixNano.Store(now.UTC().UnixNano())
	c.totalCycles.Add(1)

	count := CycleCount(cfg, now.In(c.loc))
	if count == 0 {
		return
	}
	n, err := c.gen.Insert(ctx, count, cfg.Hours, nil)
	if err != nil {
		c.totalErrors.Add(1)
		c.lastErrorMu.Lock()
		c.lastError = err.Error()
		c.lastErrorMu.Unlock()
		slog.Error("generator cycle", "count", count, "error", err.Error())
		return
	}
	c.totalInserted.Add(int64(n))
	slog.Info("generator cycle", "inserted", n, "hours", cfg.Hours)
}
