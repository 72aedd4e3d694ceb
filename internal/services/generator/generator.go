package generator

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/BearBump/DispatchDesk/internal/models"
	"github.com/BearBump/DispatchDesk/internal/rounding"
)

var (
	DefaultRiders = []string{"王明", "李伟", "张强", "赵敏", "陈刚", "刘洋"}
	Categories    = []string{"快餐", "奶茶", "咖啡", "轻食"}
)

type Rand interface {
	Intn(n int) int
	Float64() float64
}

type Repository interface {
	EnsureRiders(ctx context.Context, riders []*models.Rider) error
	ListRiders(ctx context.Context) ([]*models.Rider, error)
	UpsertOrders(ctx context.Context, orders []*models.Order) error
	InsertTracks(ctx context.Context, tracks []*models.Track) error
	InsertLivePoints(ctx context.Context, pts []*models.LivePoint) error
}

// Generator пишет правдоподобные демо-заказы вокруг центра Пекина.
type Generator struct {
	repo Repository
	now  func() time.Time

	mu sync.Mutex
	r  Rand
}

func NewGenerator(repo Repository, r Rand) *Generator {
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Generator{repo: repo, r: r, now: time.Now}
}

// between returns a uniform int in [lo, hi].
func (g *Generator) between(lo, hi int) int {
	return lo + g.r.Intn(hi-lo+1)
}

// Batch is what one Insert call writes.
type Batch struct {
	Orders []*models.Order
	Tracks []*models.Track
	Points []*models.LivePoint
}

// Build generates count orders created within the last hours for the given riders.
func (g *Generator) Build(count, hours int, riders []string) Batch {
	g.mu.Lock()
	defer g.mu.Unlock()

	if hours < 1 {
		hours = 1
	}
	if len(riders) == 0 {
		riders = DefaultRiders
	}
	now := g.now().Unix()
	nowMs := now * 1000

	b := Batch{}
	seen := make(map[string]struct{}, count)
	for i := 0; i < count; i++ {
		id := fmt.Sprintf("OD%d%04d", now, g.r.Intn(10000))
		for {
			if _, dup := seen[id]; !dup {
				break
			}
			id = fmt.Sprintf("OD%d%04d", now, g.r.Intn(10000))
		}
		seen[id] = struct{}{}

		rider := riders[g.r.Intn(len(riders))]
		status := models.OrderStatuses[g.r.Intn(len(models.OrderStatuses))]
		created := now - int64(g.r.Intn(hours*3600+1))

		var pickup, delivered *int64
		if status != models.OrderStatusAwaitingPickup {
			v := created + int64(g.between(300, 1800))
			pickup = &v
		}
		if status == models.OrderStatusDelivered {
			v := created + int64(g.between(1800, 7200))
			if pickup != nil && v < *pickup {
				v = *pickup + 300
			}
			delivered = &v
		}
		eta := created + int64(g.between(1800, 7200))
		category := Categories[g.r.Intn(len(Categories))]

		o := &models.Order{
			ID:          id,
			Rider:       rider,
			Status:      status,
			CreatedTS:   created,
			PickupTS:    pickup,
			DeliveredTS: delivered,
			EtaTS:       &eta,
			Origin:      &models.Point{Lng: 116.39 + g.r.Float64()*0.02, Lat: 39.90 + g.r.Float64()*0.02},
			Dest:        &models.Point{Lng: 116.40 + g.r.Float64()*0.02, Lat: 39.91 + g.r.Float64()*0.02},
			Fee:         rounding.Money(10 + g.r.Float64()*15),
			DistanceKm:  rounding.Money(2 + g.r.Float64()*6),
			Category:    &category,
		}
		b.Orders = append(b.Orders, o)

		if delivered != nil && pickup != nil {
			b.Tracks = append(b.Tracks, &models.Track{
				Rider:     rider,
				Phone:     models.StablePhone(rider),
				StartMs:   *pickup * 1000,
				EndMs:     *delivered * 1000,
				DistanceM: o.DistanceKm * (1 + g.r.Float64()*0.3) * 1000,
			})
		}
		if status != models.OrderStatusDelivered {
			b.Points = append(b.Points, &models.LivePoint{
				Rider: rider,
				Point: models.Point{Lng: 116.40 + (g.r.Float64()-0.5)*0.05, Lat: 39.91 + (g.r.Float64()-0.5)*0.05},
				TSMs:  nowMs,
			})
		}
	}
	return b
}

// Insert ensures the default riders exist, then writes count random orders.
// With no riders given it spreads orders across all known riders.
func (g *Generator) Insert(ctx context.Context, count, hours int, riders []string) (int, error) {
	if count <= 0 {
		return 0, nil
	}

	defaults := make([]*models.Rider, 0, len(DefaultRiders))
	for _, name := range DefaultRiders {
		defaults = append(defaults, &models.Rider{Name: name, Phone: models.StablePhone(name)})
	}
	if err := g.repo.EnsureRiders(ctx, defaults); err != nil {
		return 0, err
	}

	if len(riders) == 0 {
		known, err := g.repo.ListRiders(ctx)
		if err != nil {
			return 0, err
		}
		for _, r := range known {
			if r.Name != "" {
				riders = append(riders, r.Name)
			}
		}
		if len(riders) == 0 {
			riders = DefaultRiders
		}
	}

	b := g.Build(count, hours, riders)
	if err := g.repo.UpsertOrders(ctx, b.Orders); err != nil {
		return 0, err
	}
	if err := g.repo.InsertTracks(ctx, b.Tracks); err != nil {
		return 0, err
	}
	if err := g.repo.InsertLivePoints(ctx, b.Points); err != nil {
		return 0, err
	}
	return len(b.Orders), nil
}
