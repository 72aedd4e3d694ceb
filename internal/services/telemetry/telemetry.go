package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/DispatchDesk/internal/broker/messages"
	"github.com/BearBump/DispatchDesk/internal/geo"
	"github.com/BearBump/DispatchDesk/internal/models"
	"github.com/BearBump/DispatchDesk/internal/rounding"
	"github.com/pkg/errors"
)

const (
	MaxTrackDistanceM = 200000.0
	MaxDailyKm        = 200.0
	PointPrecision    = 5
)

type Repository interface {
	InsertLivePoints(ctx context.Context, pts []*models.LivePoint) error
	UpsertTrack(ctx context.Context, t *models.Track) error
	DeleteTracksEndedBetween(ctx context.Context, rider string, w models.Window) (int64, error)
	ReplaceDayTracks(ctx context.Context, rider string, dayStartMs, dayEndMs int64, t *models.Track) error
	ListRecentTracks(ctx context.Context, limit int) ([]*models.Track, error)
	EnsureRiders(ctx context.Context, riders []*models.Rider) error
}

// OrderWriter принимает заказы, пришедшие через Kafka.
type OrderWriter interface {
	UpsertOrder(ctx context.Context, o *models.Order) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

var ErrRateLimited = errors.New("too many position reports")

type Service struct {
	repo   Repository
	orders OrderWriter
	rl     RateLimiter
	loc    *time.Location

	pointsPerMinute int64
}

func New(repo Repository, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{repo: repo, loc: loc}
}

// WithRateLimit caps position reports per rider per minute. Zero disables it.
func (s *Service) WithRateLimit(rl RateLimiter, perMinute int64) *Service {
	s.rl = rl
	s.pointsPerMinute = perMinute
	return s
}

func (s *Service) WithOrders(w OrderWriter) *Service {
	s.orders = w
	return s
}

// ReportPoint stores a live position. phone, if set, registers the rider when unknown.
func (s *Service) ReportPoint(ctx context.Context, p *models.LivePoint, phone string) error {
	if p == nil || strings.TrimSpace(p.Rider) == "" || p.TSMs == 0 {
		return models.Invalid("name, lng, lat and ts are required")
	}
	if s.rl != nil && s.pointsPerMinute > 0 {
		key := fmt.Sprintf("rl:points:%s:%s", p.Rider, time.UnixMilli(p.TSMs).UTC().Format("200601021504"))
		allowed, n, err := s.rl.Allow(ctx, key, s.pointsPerMinute, 70*time.Second)
		if err != nil {
			// Redis недоступен: не теряем точку.
			slog.Warn("points rate limit", "rider", p.Rider, "error", err.Error())
		} else if !allowed {
			slog.Warn("points rate limit exceeded", "rider", p.Rider, "count", n)
			return ErrRateLimited
		}
	}
	if phone != "" {
		if err := s.repo.EnsureRiders(ctx, []*models.Rider{{Name: p.Rider, Phone: phone}}); err != nil {
			return err
		}
	}
	return s.repo.InsertLivePoints(ctx, []*models.LivePoint{p})
}

// CleanPoints rounds coordinates to 5 decimals and collapses consecutive duplicates.
func CleanPoints(pts []models.Point) []models.Point {
	out := make([]models.Point, 0, len(pts))
	for i, p := range pts {
		c := models.Point{Lng: rounding.Round(p.Lng, PointPrecision), Lat: rounding.Round(p.Lat, PointPrecision)}
		if i > 0 && out[len(out)-1] == c {
			continue
		}
		out = append(out, c)
	}
	return out
}

func ClampDistance(m float64) float64 {
	if m < 0 {
		return 0
	}
	if m > MaxTrackDistanceM {
		return MaxTrackDistanceM
	}
	return m
}

// SubmitTrack upserts a recorded run keyed by (rider, start, end).
// Без переданной дистанции она считается по точкам трека.
func (s *Service) SubmitTrack(ctx context.Context, t *models.Track) error {
	if t == nil || strings.TrimSpace(t.Rider) == "" || t.StartMs == 0 || t.EndMs == 0 || len(t.Points) == 0 {
		return models.Invalid("name, start_ts, end_ts and non-empty points are required")
	}
	clean := *t
	clean.Points = CleanPoints(t.Points)
	dist := t.DistanceM
	if dist <= 0 {
		dist = geo.PathLength(clean.Points)
	}
	clean.DistanceM = ClampDistance(dist)

	if t.Phone != "" {
		if err := s.repo.EnsureRiders(ctx, []*models.Rider{{Name: t.Rider, Phone: t.Phone}}); err != nil {
			return err
		}
	}
	return s.repo.UpsertTrack(ctx, &clean)
}

func (s *Service) DeleteMileage(ctx context.Context, rider string, w models.Window) (int64, error) {
	rider = strings.TrimSpace(rider)
	if rider == "" {
		return 0, models.Invalid("missing rider")
	}
	return s.repo.DeleteTracksEndedBetween(ctx, rider, w)
}

// SetDailyMileage заменяет все треки райдера за дату одним синтетическим
// треком 08:00–12:00 с заданным километражем.
func (s *Service) SetDailyMileage(ctx context.Context, rider, date string, km float64) error {
	rider = strings.TrimSpace(rider)
	date = strings.TrimSpace(date)
	if rider == "" || date == "" {
		return models.Invalid("missing rider/date")
	}
	day, err := time.ParseInLocation(time.DateOnly, date, s.loc)
	if err != nil {
		return models.Invalid("date must be YYYY-MM-DD")
	}
	if km < 0 {
		km = 0
	}
	if km > MaxDailyKm {
		km = MaxDailyKm
	}

	next := day.AddDate(0, 0, 1)
	t := &models.Track{
		Rider:     rider,
		StartMs:   day.Add(8 * time.Hour).UnixMilli(),
		EndMs:     day.Add(12 * time.Hour).UnixMilli(),
		DistanceM: km * 1000,
	}
	return s.repo.ReplaceDayTracks(ctx, rider, day.UnixMilli(), next.UnixMilli(), t)
}

func (s *Service) RecentTracks(ctx context.Context, limit int) ([]*models.Track, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ListRecentTracks(ctx, limit)
}

// ApplyMessage handles one message from the telemetry topic.
// Malformed payloads return an error matching models.ErrInvalidArgument.
func (s *Service) ApplyMessage(ctx context.Context, value []byte) error {
	var m messages.TelemetryReported
	if err := json.Unmarshal(value, &m); err != nil {
		return models.Invalid("decode telemetry: %v", err)
	}
	switch m.Kind {
	case messages.TelemetryKindPoint:
		err := s.ReportPoint(ctx, m.Point, m.Phone)
		if errors.Is(err, ErrRateLimited) {
			return nil
		}
		return err
	case messages.TelemetryKindTrack:
		return s.SubmitTrack(ctx, m.Track)
	case messages.TelemetryKindOrder:
		if s.orders == nil {
			return models.Invalid("order telemetry is not accepted")
		}
		if m.Order == nil {
			return models.Invalid("order payload is required")
		}
		return s.orders.UpsertOrder(ctx, m.Order)
	default:
		return models.Invalid("unknown telemetry kind %q", m.Kind)
	}
}
