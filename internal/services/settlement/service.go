package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/BearBump/DispatchDesk/internal/models"
	"github.com/BearBump/DispatchDesk/internal/rounding"
)

type Repository interface {
	ListOrdersCreatedBetween(ctx context.Context, w models.Window) ([]*models.Order, error)
	CountDelayAlertsByRider(ctx context.Context, w models.Window) (map[string]int, error)
	ReplaceSettlements(ctx context.Context, w models.Window, rows []*models.Settlement) error
	ListSettlements(ctx context.Context, w models.Window) ([]*models.Settlement, error)
	ListRiders(ctx context.Context) ([]*models.Rider, error)
}

// Locker сериализует пересчёт одного и того же окна.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

type Service struct {
	repo    Repository
	locker  Locker
	lockTTL time.Duration
}

func New(repo Repository, locker Locker) *Service {
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &Service{repo: repo, locker: locker, lockTTL: 30 * time.Second}
}

func (s *Service) WithLockTTL(ttl time.Duration) *Service {
	if ttl > 0 {
		s.lockTTL = ttl
	}
	return s
}

// Row is one line of the settlement report.
type Row struct {
	Rider     string  `json:"rider"`
	Orders    int     `json:"orders"`
	Income    float64 `json:"income"`
	Subsidy   float64 `json:"subsidy"`
	Penalties float64 `json:"penalties"`
	Net       float64 `json:"net"`
}

type Report struct {
	Window   models.Window `json:"window"`
	Rows     []Row         `json:"rows"`
	Degraded []string      `json:"degraded,omitempty"`
}

// Recompute заменяет снимок за окно и возвращает отчёт: строки по net desc,
// затем зарегистрированные райдеры без активности с нулями.
func (s *Service) Recompute(ctx context.Context, w models.Window) (*Report, error) {
	unlock, err := s.locker.Lock(ctx, lockKey(w), s.lockTTL)
	if err != nil {
		return nil, err
	}
	defer unlock()

	orders, err := s.repo.ListOrdersCreatedBetween(ctx, w)
	if err != nil {
		return nil, err
	}
	delays, err := s.repo.CountDelayAlertsByRider(ctx, w)
	if err != nil {
		return nil, err
	}

	rows := Compute(orders, delays, w)
	if err := s.repo.ReplaceSettlements(ctx, w, rows); err != nil {
		return nil, err
	}

	stored, err := s.repo.ListSettlements(ctx, w)
	if err != nil {
		return nil, err
	}

	rep := &Report{Window: w, Rows: make([]Row, 0, len(stored))}
	seen := make(map[string]struct{}, len(stored))
	for _, st := range stored {
		seen[st.Rider] = struct{}{}
		rep.Rows = append(rep.Rows, Row{
			Rider:     st.Rider,
			Orders:    st.Orders,
			Income:    rounding.Money(st.TotalIncome),
			Subsidy:   rounding.Money(st.Subsidy),
			Penalties: rounding.Money(st.Penalties),
			Net:       rounding.Money(st.NetIncome),
		})
	}

	riders, err := s.repo.ListRiders(ctx)
	if err != nil {
		slog.Warn("settlements: list riders", "error", err.Error())
		rep.Degraded = append(rep.Degraded, "riders")
		return rep, nil
	}
	idle := make([]string, 0)
	for _, r := range riders {
		if r.Name == "" {
			continue
		}
		if _, ok := seen[r.Name]; !ok {
			idle = append(idle, r.Name)
		}
	}
	sort.Strings(idle)
	for _, name := range idle {
		rep.Rows = append(rep.Rows, Row{Rider: name})
	}
	return rep, nil
}

func lockKey(w models.Window) string {
	return fmt.Sprintf("lock:settlements:%d:%d", w.Start, w.End)
}

// LocalLocker is an in-process keyed mutex for single-instance deployments.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*keyLock)}
}

func (l *LocalLocker) Lock(ctx context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	release := func() {
		l.mu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}

	select {
	case kl.ch <- struct{}{}:
		return func() {
			<-kl.ch
			release()
		}, nil
	case <-ctx.Done():
		release()
		return nil, ctx.Err()
	}
}
