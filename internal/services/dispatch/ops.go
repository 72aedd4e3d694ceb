package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/BearBump/DispatchDesk/internal/models"
)

const (
	overviewHours     = 6
	alertsLookback    = 24 * time.Hour
	uncategorized     = "未分类"
	DefaultSampleSize = 100
	DefaultSampleHrs  = 6
)

func (s *Service) localTime(ts int64) time.Time {
	return time.Unix(ts, 0).In(s.loc)
}

func hourLabel(t time.Time) string {
	return fmt.Sprintf("%02d:00", t.Hour())
}

type Health struct {
	OK           bool     `json:"ok"`
	Uptime       int64    `json:"uptime"`
	Orders       int      `json:"orders"`
	OnlineRiders int      `json:"onlineRiders"`
	Alerts       int      `json:"alerts"`
	Degraded     []string `json:"degraded,omitempty"`
}

// Health: счётчики заказов, онлайн-райдеров и алертов за сутки.
func (s *Service) Health(ctx context.Context) (*Health, error) {
	now := s.now()
	orders, err := s.repo.CountOrders(ctx)
	if err != nil {
		return nil, err
	}
	online, err := s.repo.CountOnlineRiders(ctx, now.Add(-OnlineWindow).UnixMilli())
	if err != nil {
		return nil, err
	}

	h := &Health{OK: true, Orders: orders, OnlineRiders: online}
	h.Uptime = int64(now.Sub(s.startedAt) / time.Second)
	if h.Uptime < 0 {
		h.Uptime = 0
	}
	h.Alerts, err = s.repo.CountAlertsSince(ctx, now.Add(-alertsLookback).Unix())
	if err != nil {
		slog.Warn("health alerts count", "error", err.Error())
		h.Degraded = append(h.Degraded, "alerts")
	}
	return h, nil
}

type KPI struct {
	Orders             int `json:"orders"`
	OnlineRiders       int `json:"onlineRiders"`
	Alerts             int `json:"alerts"`
	OnlineRidersChange int `json:"onlineRidersChange"`
}

type HourlyChart struct {
	Labels []string `json:"labels"`
	Orders []int    `json:"orders"`
}

type Overview struct {
	KPI      KPI         `json:"kpi"`
	Chart    HourlyChart `json:"chart"`
	Degraded []string    `json:"degraded,omitempty"`
}

// Overview: заказы за сегодня, онлайн, алерты за сутки и заказы по часам
// за последние шесть часов.
func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	now := s.now().In(s.loc)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	today, err := s.repo.ListOrdersCreatedBetween(ctx, models.Window{
		Start: dayStart.Unix(),
		End:   dayStart.AddDate(0, 0, 1).Unix() - 1,
	})
	if err != nil {
		return nil, err
	}

	res := &Overview{}
	res.KPI.Orders = len(today)

	if res.KPI.OnlineRiders, err = s.repo.CountOnlineRiders(ctx, now.Add(-OnlineWindow).UnixMilli()); err != nil {
		slog.Warn("overview online riders", "error", err.Error())
		res.Degraded = append(res.Degraded, "onlineRiders")
	}
	if res.KPI.Alerts, err = s.repo.CountAlertsSince(ctx, now.Add(-alertsLookback).Unix()); err != nil {
		slog.Warn("overview alerts", "error", err.Error())
		res.Degraded = append(res.Degraded, "alerts")
	}

	res.Chart = HourlyChart{
		Labels: make([]string, 0, overviewHours),
		Orders: make([]int, overviewHours),
	}
	for i := overviewHours - 1; i >= 0; i-- {
		res.Chart.Labels = append(res.Chart.Labels, hourLabel(now.Add(-time.Duration(i)*time.Hour)))
	}
	recent, err := s.repo.ListOrdersCreatedBetween(ctx, models.Window{
		Start: now.Add(-(overviewHours - 1) * time.Hour).Unix(),
		End:   now.Unix(),
	})
	if err != nil {
		slog.Warn("overview chart", "error", err.Error())
		res.Degraded = append(res.Degraded, "chart")
		return res, nil
	}
	idx := make(map[string]int, overviewHours)
	for i, l := range res.Chart.Labels {
		idx[l] = i
	}
	for _, o := range recent {
		if i, ok := idx[hourLabel(s.localTime(o.CreatedTS))]; ok {
			res.Chart.Orders[i]++
		}
	}
	return res, nil
}

type CategoryChart struct {
	Labels []string `json:"labels"`
	Counts []int    `json:"counts"`
}

type FunnelStep struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

type Analytics struct {
	Time     HourlyChart   `json:"time"`
	Category CategoryChart `json:"category"`
	Funnel   []FunnelStep  `json:"funnel"`
}

// Analytics считает распределение заказов окна по часу суток, категории и статусу.
func (s *Service) Analytics(ctx context.Context, w models.Window) (*Analytics, error) {
	orders, err := s.repo.ListOrdersCreatedBetween(ctx, w)
	if err != nil {
		return nil, err
	}
	return ComputeAnalytics(orders, s.loc), nil
}

func ComputeAnalytics(orders []*models.Order, loc *time.Location) *Analytics {
	byHour := map[string]int{}
	byCat := map[string]int{}
	byStatus := map[string]int{}
	for _, o := range orders {
		byHour[hourLabel(time.Unix(o.CreatedTS, 0).In(loc))]++
		cat := uncategorized
		if o.Category != nil {
			cat = *o.Category
		}
		byCat[cat]++
		byStatus[o.Status]++
	}

	a := &Analytics{
		Time:     HourlyChart{Labels: make([]string, 0, len(byHour)), Orders: make([]int, 0, len(byHour))},
		Category: CategoryChart{Labels: make([]string, 0, len(byCat)), Counts: make([]int, 0, len(byCat))},
		Funnel:   make([]FunnelStep, 0, len(models.OrderStatuses)),
	}

	hours := make([]string, 0, len(byHour))
	for h := range byHour {
		hours = append(hours, h)
	}
	sort.Strings(hours)
	for _, h := range hours {
		a.Time.Labels = append(a.Time.Labels, h)
		a.Time.Orders = append(a.Time.Orders, byHour[h])
	}

	cats := make([]string, 0, len(byCat))
	for c := range byCat {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool {
		if byCat[cats[i]] != byCat[cats[j]] {
			return byCat[cats[i]] > byCat[cats[j]]
		}
		return cats[i] < cats[j]
	})
	for _, c := range cats {
		a.Category.Labels = append(a.Category.Labels, c)
		a.Category.Counts = append(a.Category.Counts, byCat[c])
	}

	for _, st := range models.OrderStatuses {
		a.Funnel = append(a.Funnel, FunnelStep{Name: models.StatusLabel(st), Value: byStatus[st]})
	}
	return a
}

type SampleCounts struct {
	Orders int `json:"orders"`
	Riders int `json:"riders"`
	Alerts int `json:"alerts"`
}

func (s *Service) SampleStatus(ctx context.Context) (*SampleCounts, error) {
	o, r, a, err := s.repo.SampleStatus(ctx)
	if err != nil {
		return nil, err
	}
	return &SampleCounts{Orders: o, Riders: r, Alerts: a}, nil
}

// SampleGenerate вставляет демо-заказы; нулевые параметры берутся по умолчанию.
func (s *Service) SampleGenerate(ctx context.Context, count, hours int) (int, error) {
	if count <= 0 {
		count = DefaultSampleSize
	}
	if hours <= 0 {
		hours = DefaultSampleHrs
	}
	if s.seeder == nil {
		return 0, models.Invalid("generator is not configured")
	}
	return s.seeder.Insert(ctx, count, hours, nil)
}

func (s *Service) SampleClear(ctx context.Context) error {
	return s.repo.ClearSampleData(ctx)
}

// SeedIfEmpty кладёт три демонстрационных заказа в пустую базу.
func (s *Service) SeedIfEmpty(ctx context.Context) (bool, error) {
	n, err := s.repo.CountOrders(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	if err := s.repo.UpsertOrders(ctx, SampleOrders(s.now().Unix())); err != nil {
		return false, err
	}
	return true, nil
}

func SampleOrders(now int64) []*models.Order {
	i64 := func(v int64) *int64 { return &v }
	str := func(v string) *string { return &v }
	return []*models.Order{
		{
			ID: "OD20251210001", Rider: "王明", Status: models.OrderStatusInTransit,
			CreatedTS: now - 3600, PickupTS: i64(now - 2400), EtaTS: i64(now + 1800),
			Origin: &models.Point{Lng: 116.39, Lat: 39.91}, Dest: &models.Point{Lng: 116.405, Lat: 39.902},
			Fee: 18.5, DistanceKm: 5.2, Category: str("快餐"),
		},
		{
			ID: "OD20251210002", Rider: "李伟", Status: models.OrderStatusDelayed,
			CreatedTS: now - 5400, PickupTS: i64(now - 3000), EtaTS: i64(now + 2400),
			Origin: &models.Point{Lng: 116.402, Lat: 39.915}, Dest: &models.Point{Lng: 116.396, Lat: 39.908},
			Fee: 21.0, DistanceKm: 6.3, Category: str("奶茶"),
		},
		{
			ID: "OD20251210003", Rider: "张强", Status: models.OrderStatusAwaitingPickup,
			CreatedTS: now - 1800, EtaTS: i64(now + 1200),
			Origin: &models.Point{Lng: 116.397, Lat: 39.909}, Dest: &models.Point{Lng: 116.405, Lat: 39.902},
			Fee: 12.0, DistanceKm: 3.1, Category: str("咖啡"),
		},
	}
}
