package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/BearBump/DispatchDesk/internal/broker/messages"
	"github.com/BearBump/DispatchDesk/internal/models"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	points  []*models.LivePoint
	tracks  []*models.Track
	ensured []*models.Rider

	delRider string
	delW     models.Window

	dayRider         string
	dayStart, dayEnd int64
	dayTrack         *models.Track
}

func (f *fakeRepo) InsertLivePoints(ctx context.Context, pts []*models.LivePoint) error {
	f.points = append(f.points, pts...)
	return nil
}
func (f *fakeRepo) UpsertTrack(ctx context.Context, t *models.Track) error {
	f.tracks = append(f.tracks, t)
	return nil
}
func (f *fakeRepo) DeleteTracksEndedBetween(ctx context.Context, rider string, w models.Window) (int64, error) {
	f.delRider, f.delW = rider, w
	return 2, nil
}
func (f *fakeRepo) ReplaceDayTracks(ctx context.Context, rider string, dayStartMs, dayEndMs int64, t *models.Track) error {
	f.dayRider, f.dayStart, f.dayEnd, f.dayTrack = rider, dayStartMs, dayEndMs, t
	return nil
}
func (f *fakeRepo) ListRecentTracks(ctx context.Context, limit int) ([]*models.Track, error) {
	return make([]*models.Track, limit), nil
}
func (f *fakeRepo) EnsureRiders(ctx context.Context, riders []*models.Rider) error {
	f.ensured = append(f.ensured, riders...)
	return nil
}

type fakeOrders struct{ got []*models.Order }

func (f *fakeOrders) UpsertOrder(ctx context.Context, o *models.Order) error {
	f.got = append(f.got, o)
	return nil
}

type fakeRL struct {
	allow bool
	err   error
	keys  []string
}

func (r *fakeRL) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	r.keys = append(r.keys, key)
	return r.allow, 1, r.err
}

func TestCleanPoints(t *testing.T) {
	in := []models.Point{
		{Lng: 116.400001, Lat: 39.900001},
		{Lng: 116.400004, Lat: 39.900004}, // после округления совпадает с предыдущей
		{Lng: 116.41, Lat: 39.91},
		{Lng: 116.400001, Lat: 39.900001}, // не подряд: остаётся
	}
	got := CleanPoints(in)
	require.Equal(t, []models.Point{
		{Lng: 116.4, Lat: 39.9},
		{Lng: 116.41, Lat: 39.91},
		{Lng: 116.4, Lat: 39.9},
	}, got)
}

func TestClampDistance(t *testing.T) {
	require.Equal(t, 0.0, ClampDistance(-5))
	require.Equal(t, 1234.5, ClampDistance(1234.5))
	require.Equal(t, MaxTrackDistanceM, ClampDistance(1e9))
}

func TestSubmitTrack(t *testing.T) {
	repo := &fakeRepo{}
	s := New(repo, nil)

	err := s.SubmitTrack(context.Background(), &models.Track{Rider: "A", StartMs: 1, EndMs: 2})
	require.ErrorIs(t, err, models.ErrInvalidArgument)

	err = s.SubmitTrack(context.Background(), &models.Track{
		Rider: "A", Phone: "138", StartMs: 1, EndMs: 2, DistanceM: 500000,
		Points: []models.Point{{Lng: 1, Lat: 1}, {Lng: 1, Lat: 1}},
	})
	require.NoError(t, err)
	require.Len(t, repo.tracks, 1)
	require.Equal(t, MaxTrackDistanceM, repo.tracks[0].DistanceM)
	require.Len(t, repo.tracks[0].Points, 1)
	require.Equal(t, []*models.Rider{{Name: "A", Phone: "138"}}, repo.ensured)
}

func TestSubmitTrack_DistanceFromPoints(t *testing.T) {
	repo := &fakeRepo{}
	s := New(repo, nil)

	// 0.01° по экватору ≈ 1112 м
	err := s.SubmitTrack(context.Background(), &models.Track{
		Rider: "A", StartMs: 1, EndMs: 2,
		Points: []models.Point{{Lng: 0, Lat: 0}, {Lng: 0.01, Lat: 0}},
	})
	require.NoError(t, err)
	require.InDelta(t, 1112.0, repo.tracks[0].DistanceM, 1.0)

	// переданная дистанция важнее точек
	err = s.SubmitTrack(context.Background(), &models.Track{
		Rider: "A", StartMs: 3, EndMs: 4, DistanceM: 42,
		Points: []models.Point{{Lng: 0, Lat: 0}, {Lng: 0.01, Lat: 0}},
	})
	require.NoError(t, err)
	require.Equal(t, 42.0, repo.tracks[1].DistanceM)
}

func TestReportPoint(t *testing.T) {
	repo := &fakeRepo{}
	s := New(repo, nil)

	require.ErrorIs(t, s.ReportPoint(context.Background(), &models.LivePoint{Rider: "A"}, ""), models.ErrInvalidArgument)

	p := &models.LivePoint{Rider: "A", Point: models.Point{Lng: 116.4, Lat: 39.9}, TSMs: 1_700_000_000_000}
	require.NoError(t, s.ReportPoint(context.Background(), p, ""))
	require.Len(t, repo.points, 1)
	require.Empty(t, repo.ensured)
}

func TestReportPoint_RateLimit(t *testing.T) {
	repo := &fakeRepo{}
	rl := &fakeRL{allow: false}
	s := New(repo, nil).WithRateLimit(rl, 10)

	p := &models.LivePoint{Rider: "A", TSMs: 1_700_000_000_000}
	require.ErrorIs(t, s.ReportPoint(context.Background(), p, ""), ErrRateLimited)
	require.Empty(t, repo.points)
	require.Equal(t, []string{"rl:points:A:202311142213"}, rl.keys)

	// Ошибка Redis не блокирует запись точки.
	rl.err = errors.New("redis down")
	require.NoError(t, s.ReportPoint(context.Background(), p, ""))
	require.Len(t, repo.points, 1)
}

func TestSetDailyMileage(t *testing.T) {
	repo := &fakeRepo{}
	s := New(repo, nil)

	require.ErrorIs(t, s.SetDailyMileage(context.Background(), "", "2024-01-02", 1), models.ErrInvalidArgument)
	require.ErrorIs(t, s.SetDailyMileage(context.Background(), "A", "02.01.2024", 1), models.ErrInvalidArgument)

	require.NoError(t, s.SetDailyMileage(context.Background(), "A", "2024-01-02", 250))
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	require.Equal(t, "A", repo.dayRider)
	require.Equal(t, day.UnixMilli(), repo.dayStart)
	require.Equal(t, day.AddDate(0, 0, 1).UnixMilli(), repo.dayEnd)
	require.Equal(t, day.Add(8*time.Hour).UnixMilli(), repo.dayTrack.StartMs)
	require.Equal(t, day.Add(12*time.Hour).UnixMilli(), repo.dayTrack.EndMs)
	require.Equal(t, 200000.0, repo.dayTrack.DistanceM)

	require.NoError(t, s.SetDailyMileage(context.Background(), "A", "2024-01-02", -3))
	require.Equal(t, 0.0, repo.dayTrack.DistanceM)
}

func TestDeleteMileage(t *testing.T) {
	repo := &fakeRepo{}
	s := New(repo, nil)
	_, err := s.DeleteMileage(context.Background(), " ", models.Window{})
	require.ErrorIs(t, err, models.ErrInvalidArgument)

	n, err := s.DeleteMileage(context.Background(), " A ", models.Window{Start: 1, End: 2})
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
	require.Equal(t, "A", repo.delRider)
}

func TestRecentTracks_DefaultLimit(t *testing.T) {
	got, err := New(&fakeRepo{}, nil).RecentTracks(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, 50)
}

func TestApplyMessage(t *testing.T) {
	repo := &fakeRepo{}
	orders := &fakeOrders{}
	s := New(repo, nil).WithOrders(orders)

	mustJSON := func(v any) []byte {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		return b
	}

	require.NoError(t, s.ApplyMessage(context.Background(), mustJSON(messages.TelemetryReported{
		Kind:  messages.TelemetryKindPoint,
		Point: &models.LivePoint{Rider: "A", TSMs: 1},
	})))
	require.Len(t, repo.points, 1)

	require.NoError(t, s.ApplyMessage(context.Background(), mustJSON(messages.TelemetryReported{
		Kind:  messages.TelemetryKindOrder,
		Order: &models.Order{ID: "OD1"},
	})))
	require.Len(t, orders.got, 1)

	require.ErrorIs(t, s.ApplyMessage(context.Background(), []byte("{")), models.ErrInvalidArgument)
	require.ErrorIs(t, s.ApplyMessage(context.Background(), []byte(`{"kind":"nope"}`)), models.ErrInvalidArgument)
	require.ErrorIs(t, s.ApplyMessage(context.Background(), []byte(`{"kind":"track"}`)), models.ErrInvalidArgument)
}
