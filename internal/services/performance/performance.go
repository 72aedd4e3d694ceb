package performance

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/BearBump/DispatchDesk/internal/models"
)

// Заглушки: реальных данных о принятии заказов и отзывах нет.
const (
	PlaceholderAcceptRate   = 0.9
	PlaceholderPositiveRate = 0.95
)

type Repository interface {
	ListOrdersCreatedBetween(ctx context.Context, w models.Window) ([]*models.Order, error)
	ListRiders(ctx context.Context) ([]*models.Rider, error)
	EnsureRiders(ctx context.Context, riders []*models.Rider) error
	SavePerformanceDaily(ctx context.Context, rows []models.PerformanceDay) error
}

type Row struct {
	Rider        string  `json:"rider"`
	Orders       int     `json:"orders"`
	Delivered    int     `json:"delivered"`
	OnTime       int     `json:"on_time"`
	OnTimeRate   float64 `json:"on_time_rate"`
	AcceptRate   float64 `json:"accept_rate"`
	PositiveRate float64 `json:"positive_rate"`
}

type Report struct {
	Window           models.Window `json:"window"`
	Rows             []Row         `json:"rows"`
	PlaceholderRates bool          `json:"placeholder_rates"`
	Degraded         []string      `json:"degraded,omitempty"`
}

// Compute ranks riders by on-time rate desc, orders desc, name asc.
// Registered riders without orders appear with zero counts.
func Compute(orders []*models.Order, registered []string) []Row {
	byRider := make(map[string]*Row)
	get := func(name string) *Row {
		r, ok := byRider[name]
		if !ok {
			r = &Row{Rider: name, AcceptRate: PlaceholderAcceptRate, PositiveRate: PlaceholderPositiveRate}
			byRider[name] = r
		}
		return r
	}

	for _, o := range orders {
		if o.Rider == "" {
			continue
		}
		r := get(o.Rider)
		r.Orders++
		if o.IsDelivered() {
			r.Delivered++
			if o.IsOnTime() {
				r.OnTime++
			}
		}
	}
	for _, name := range registered {
		if name != "" {
			get(name)
		}
	}

	out := make([]Row, 0, len(byRider))
	for _, r := range byRider {
		if r.Delivered > 0 {
			r.OnTimeRate = float64(r.OnTime) / float64(r.Delivered)
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OnTimeRate != out[j].OnTimeRate {
			return out[i].OnTimeRate > out[j].OnTimeRate
		}
		if out[i].Orders != out[j].Orders {
			return out[i].Orders > out[j].Orders
		}
		return out[i].Rider < out[j].Rider
	})
	return out
}

type Service struct {
	repo Repository
	loc  *time.Location
}

func New(repo Repository, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{repo: repo, loc: loc}
}

func (s *Service) Report(ctx context.Context, w models.Window) (*Report, error) {
	orders, err := s.repo.ListOrdersCreatedBetween(ctx, w)
	if err != nil {
		return nil, err
	}

	rep := &Report{Window: w, PlaceholderRates: true}

	var names []string
	riders, err := s.repo.ListRiders(ctx)
	if err != nil {
		slog.Warn("performance: list riders", "error", err.Error())
		rep.Degraded = append(rep.Degraded, "riders")
	} else {
		for _, r := range riders {
			names = append(names, r.Name)
		}
	}

	rep.Rows = Compute(orders, names)

	// Дозаполняем справочник райдеров и дневной срез; ошибки не фатальны.
	ensure := make([]*models.Rider, 0, len(rep.Rows))
	day := time.Unix(w.End, 0).In(s.loc).Format(time.DateOnly)
	daily := make([]models.PerformanceDay, 0, len(rep.Rows))
	for _, r := range rep.Rows {
		ensure = append(ensure, &models.Rider{Name: r.Rider, Phone: models.StablePhone(r.Rider)})
		daily = append(daily, models.PerformanceDay{
			Rider: r.Rider, Date: day, Orders: r.Orders,
			OnTimeRate: r.OnTimeRate, AcceptRate: r.AcceptRate, PositiveRate: r.PositiveRate,
		})
	}
	if err := s.repo.EnsureRiders(ctx, ensure); err != nil {
		slog.Warn("performance: backfill riders", "error", err.Error())
		rep.Degraded = append(rep.Degraded, "rider_backfill")
	}
	if err := s.repo.SavePerformanceDaily(ctx, daily); err != nil {
		slog.Warn("performance: save daily", "error", err.Error())
		rep.Degraded = append(rep.Degraded, "performance_daily")
	}
	return rep, nil
}
