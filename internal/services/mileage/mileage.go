package mileage

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/BearBump/DispatchDesk/internal/models"
	"github.com/BearBump/DispatchDesk/internal/rounding"
)

// DailyThresholdKm: предупреждение, если за день строго больше.
const DailyThresholdKm = 80.0

type Repository interface {
	ListTracksEndedBetween(ctx context.Context, w models.Window) ([]*models.Track, error)
	SaveMileageDaily(ctx context.Context, rows []models.RiderDayKm) error
}

type Summary struct {
	Days      int     `json:"days"`
	TotalKm   float64 `json:"totalKm"`
	Riders    int     `json:"riders"`
	OverDaily int     `json:"overDaily"`
	Threshold float64 `json:"threshold"`
}

type Daily struct {
	Labels []string  `json:"labels"`
	Km     []float64 `json:"km"`
}

type RankingRow struct {
	Rider string  `json:"rider"`
	Km    float64 `json:"km"`
}

type Report struct {
	Summary  Summary             `json:"summary"`
	Daily    Daily               `json:"daily"`
	Ranking  []RankingRow        `json:"ranking"`
	Warnings []models.RiderDayKm `json:"warnings"`
	Degraded []string            `json:"degraded,omitempty"`
}

// Compute aggregates tracks into daily totals, a rider ranking and
// over-threshold warnings. Days are calendar dates of track end in loc.
func Compute(tracks []*models.Track, w models.Window, loc *time.Location) (*Report, []models.RiderDayKm) {
	if loc == nil {
		loc = time.UTC
	}

	dayM := make(map[string]float64)
	riderM := make(map[string]float64)
	riderDayM := make(map[[2]string]float64)
	for _, t := range tracks {
		day := time.UnixMilli(t.EndMs).In(loc).Format(time.DateOnly)
		dayM[day] += t.DistanceM
		riderM[t.Rider] += t.DistanceM
		riderDayM[[2]string{t.Rider, day}] += t.DistanceM
	}

	rep := &Report{
		Daily:    Daily{Labels: make([]string, 0, len(dayM)), Km: make([]float64, 0, len(dayM))},
		Ranking:  make([]RankingRow, 0, len(riderM)),
		Warnings: make([]models.RiderDayKm, 0),
	}

	days := make([]string, 0, len(dayM))
	for d := range dayM {
		days = append(days, d)
	}
	sort.Strings(days)
	for _, d := range days {
		rep.Daily.Labels = append(rep.Daily.Labels, d)
		rep.Daily.Km = append(rep.Daily.Km, rounding.Round(dayM[d]/1000, 2))
	}

	type riderSum struct {
		name string
		m    float64
	}
	sums := make([]riderSum, 0, len(riderM))
	for name, m := range riderM {
		sums = append(sums, riderSum{name, m})
	}
	sort.Slice(sums, func(i, j int) bool {
		if sums[i].m != sums[j].m {
			return sums[i].m > sums[j].m
		}
		return sums[i].name < sums[j].name
	})
	for _, s := range sums {
		rep.Ranking = append(rep.Ranking, RankingRow{Rider: s.name, Km: rounding.Round(s.m/1000, 2)})
	}

	perDay := make([]models.RiderDayKm, 0, len(riderDayM))
	type warn struct {
		models.RiderDayKm
		raw float64
	}
	warns := make([]warn, 0)
	for k, m := range riderDayM {
		km := m / 1000
		row := models.RiderDayKm{Rider: k[0], Date: k[1], Km: rounding.Round(km, 2)}
		perDay = append(perDay, row)
		if km > DailyThresholdKm {
			warns = append(warns, warn{row, km})
		}
	}
	sort.Slice(warns, func(i, j int) bool {
		if warns[i].Date != warns[j].Date {
			return warns[i].Date > warns[j].Date
		}
		if warns[i].raw != warns[j].raw {
			return warns[i].raw > warns[j].raw
		}
		return warns[i].Rider < warns[j].Rider
	})
	for _, wr := range warns {
		rep.Warnings = append(rep.Warnings, wr.RiderDayKm)
	}
	sort.Slice(perDay, func(i, j int) bool {
		if perDay[i].Date != perDay[j].Date {
			return perDay[i].Date < perDay[j].Date
		}
		return perDay[i].Rider < perDay[j].Rider
	})

	rep.Summary = Summary{
		Days:      w.Days(),
		TotalKm:   rounding.Round(rounding.Sum(rep.Daily.Km...), 2),
		Riders:    len(riderM),
		OverDaily: len(rep.Warnings),
		Threshold: DailyThresholdKm,
	}
	return rep, perDay
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
	tracks, err := s.repo.ListTracksEndedBetween(ctx, w)
	if err != nil {
		return nil, err
	}
	rep, perDay := Compute(tracks, w, s.loc)
	if err := s.repo.SaveMileageDaily(ctx, perDay); err != nil {
		slog.Warn("mileage: save daily", "error", err.Error())
		rep.Degraded = append(rep.Degraded, "mileage_daily")
	}
	return rep, nil
}
