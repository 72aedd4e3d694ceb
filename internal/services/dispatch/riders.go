package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"

	"github.com/BearBump/DispatchDesk/internal/models"
	"github.com/pkg/errors"
)

const (
	RiderStatusOnline  = "在线"
	RiderStatusOffline = "离线"

	ridersCacheKey = "riders:list"

	registerSeedOrders = 20
	registerSeedHours  = 48
)

type RiderView struct {
	Name   string   `json:"name"`
	Phone  string   `json:"phone"`
	Status string   `json:"status"`
	Lng    *float64 `json:"lng"`
	Lat    *float64 `json:"lat"`
	Last   int64    `json:"last"`
}

type RiderList struct {
	Riders   []RiderView
	Degraded []string
}

// ListRiders дописывает в справочник райдеров из заказов, затем отдаёт
// зарегистрированных с последней позицией и тех, кто есть только в телеметрии.
func (s *Service) ListRiders(ctx context.Context) (*RiderList, error) {
	if cached, ok := s.cachedRiders(ctx); ok {
		return &RiderList{Riders: cached}, nil
	}

	res := &RiderList{}
	if err := s.backfillRiders(ctx); err != nil {
		slog.Warn("riders backfill", "error", err.Error())
		res.Degraded = append(res.Degraded, "backfill")
	}

	riders, err := s.repo.ListRiders(ctx)
	if err != nil {
		return nil, err
	}
	positions, err := s.repo.LatestPositions(ctx)
	if err != nil {
		slog.Warn("riders positions", "error", err.Error())
		res.Degraded = append(res.Degraded, "positions")
		positions = map[string]models.LivePoint{}
	}

	nowMs := s.now().UnixMilli()
	seen := make(map[string]struct{}, len(riders))
	res.Riders = make([]RiderView, 0, len(riders))
	for _, r := range riders {
		seen[r.Name] = struct{}{}
		v := RiderView{Name: r.Name, Phone: r.Phone, Status: RiderStatusOffline}
		if p, ok := positions[r.Name]; ok {
			fillPosition(&v, p, nowMs)
		}
		res.Riders = append(res.Riders, v)
	}

	extras := make([]string, 0)
	for name := range positions {
		if _, ok := seen[name]; !ok {
			extras = append(extras, name)
		}
	}
	sort.Strings(extras)
	for _, name := range extras {
		v := RiderView{Name: name, Status: RiderStatusOffline}
		fillPosition(&v, positions[name], nowMs)
		res.Riders = append(res.Riders, v)
	}

	if len(res.Degraded) == 0 {
		s.cacheRiders(ctx, res.Riders)
	}
	return res, nil
}

func fillPosition(v *RiderView, p models.LivePoint, nowMs int64) {
	lng, lat := p.Lng, p.Lat
	v.Lng, v.Lat = &lng, &lat
	v.Last = p.TSMs
	if p.TSMs > 0 && nowMs-p.TSMs < OnlineWindow.Milliseconds() {
		v.Status = RiderStatusOnline
	}
}

func (s *Service) backfillRiders(ctx context.Context) error {
	names, err := s.repo.ListOrderRiders(ctx)
	if err != nil {
		return err
	}
	riders := make([]*models.Rider, 0, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		riders = append(riders, &models.Rider{Name: n, Phone: models.StablePhone(n)})
	}
	return s.repo.EnsureRiders(ctx, riders)
}

func (s *Service) cachedRiders(ctx context.Context) ([]RiderView, bool) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return nil, false
	}
	b, ok, err := s.cache.Get(ctx, ridersCacheKey)
	if err != nil || !ok {
		return nil, false
	}
	var out []RiderView
	if json.Unmarshal(b, &out) != nil {
		return nil, false
	}
	return out, true
}

func (s *Service) cacheRiders(ctx context.Context, riders []RiderView) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	b, err := json.Marshal(riders)
	if err != nil {
		slog.Warn("riders cache marshal", "error", err.Error())
		return
	}
	if err := s.cache.Set(ctx, ridersCacheKey, b, s.cacheTTL); err != nil {
		slog.Warn("riders cache store", "error", err.Error())
	}
}

func (s *Service) invalidateRiders(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, ridersCacheKey); err != nil {
		slog.Warn("riders cache invalidate", "error", err.Error())
	}
}

// Register сохраняет телефон райдера (перезаписывая) и досыпает ему демо-заказы.
func (s *Service) Register(ctx context.Context, name, phone string) error {
	name, phone = strings.TrimSpace(name), strings.TrimSpace(phone)
	if name == "" || phone == "" {
		return models.Invalid("name and phone are required")
	}
	if err := s.repo.UpsertRider(ctx, &models.Rider{Name: name, Phone: phone}); err != nil {
		return err
	}
	s.invalidateRiders(ctx)

	if s.seeder != nil {
		if _, err := s.seeder.Insert(ctx, registerSeedOrders, registerSeedHours, []string{name}); err != nil {
			slog.Warn("register seed orders", "rider", name, "error", err.Error())
		}
	}
	return nil
}

// Login сверяет телефон с сохранённым. Неизвестный райдер и неверный телефон
// неразличимы для клиента.
func (s *Service) Login(ctx context.Context, name, phone string) error {
	name, phone = strings.TrimSpace(name), strings.TrimSpace(phone)
	if name == "" || phone == "" {
		return models.Invalid("name and phone are required")
	}
	r, err := s.repo.GetRider(ctx, name)
	if errors.Is(err, models.ErrNotFound) {
		return models.ErrUnauthorized
	}
	if err != nil {
		return err
	}
	if r.Phone != phone {
		return models.ErrUnauthorized
	}
	return nil
}

func (s *Service) DeleteRider(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Invalid("missing name")
	}
	if err := s.repo.DeleteRider(ctx, name); err != nil {
		return err
	}
	s.invalidateRiders(ctx)
	return nil
}
