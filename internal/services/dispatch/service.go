package dispatch

import (
	"context"
	"time"

	"github.com/BearBump/DispatchDesk/internal/cache"
	"github.com/BearBump/DispatchDesk/internal/models"
)

// OnlineWindow: райдер онлайн, если последняя точка свежее пяти минут.
const OnlineWindow = 5 * time.Minute

type Repository interface {
	UpsertOrders(ctx context.Context, orders []*models.Order) error
	ListLatestOrders(ctx context.Context, limit int) ([]*models.Order, error)
	ListOrdersCreatedBetween(ctx context.Context, w models.Window) ([]*models.Order, error)
	InsertOrderEvent(ctx context.Context, ev *models.OrderEvent) error
	ListOrderEvents(ctx context.Context, orderID string) ([]*models.OrderEvent, error)
	CountOrders(ctx context.Context) (int, error)
	ClearSampleData(ctx context.Context) error
	SampleStatus(ctx context.Context) (orders, riders, alerts int, err error)

	CountOnlineRiders(ctx context.Context, sinceMs int64) (int, error)
	LatestPositions(ctx context.Context) (map[string]models.LivePoint, error)
	CountAlertsSince(ctx context.Context, sinceTS int64) (int, error)

	ListRiders(ctx context.Context) ([]*models.Rider, error)
	GetRider(ctx context.Context, name string) (*models.Rider, error)
	UpsertRider(ctx context.Context, r *models.Rider) error
	EnsureRiders(ctx context.Context, riders []*models.Rider) error
	ListOrderRiders(ctx context.Context) ([]string, error)
	DeleteRider(ctx context.Context, name string) error
}

// Seeder пишет демо-заказы (генератор).
type Seeder interface {
	Insert(ctx context.Context, count, hours int, riders []string) (int, error)
}

type Service struct {
	repo   Repository
	seeder Seeder

	cache    cache.BytesCache
	cacheTTL time.Duration

	loc       *time.Location
	now       func() time.Time
	startedAt time.Time
}

func New(repo Repository, seeder Seeder, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repo:      repo,
		seeder:    seeder,
		loc:       loc,
		now:       time.Now,
		startedAt: time.Now(),
	}
}

// WithRiderCache кэширует список райдеров на ttl. Регистрация и удаление сбрасывают ключ.
// Статус онлайн/офлайн и последняя позиция в ответе могут отставать не больше чем на ttl.
func (s *Service) WithRiderCache(c cache.BytesCache, ttl time.Duration) *Service {
	s.cache = c
	s.cacheTTL = ttl
	return s
}
