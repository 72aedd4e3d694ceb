package mileage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BearBump/DispatchDesk/internal/models"
	"github.com/stretchr/testify/require"
)

// 2024-01-02 10:00:00 UTC
const day2 = int64(1704189600)

func track(rider string, endSec int64, meters float64) *models.Track {
	return &models.Track{Rider: rider, StartMs: (endSec - 3600) * 1000, EndMs: endSec * 1000, DistanceM: meters}
}

func TestCompute_ThresholdIsStrict(t *testing.T) {
	w := models.Window{Start: day2 - 86400, End: day2 + 86400}

	rep, _ := Compute([]*models.Track{track("A", day2, 80000)}, w, time.UTC)
	require.Empty(t, rep.Warnings)
	require.Equal(t, 0, rep.Summary.OverDaily)

	rep, _ = Compute([]*models.Track{track("A", day2, 80001)}, w, time.UTC)
	require.Len(t, rep.Warnings, 1)
	require.Equal(t, models.RiderDayKm{Rider: "A", Date: "2024-01-02", Km: 80.0}, rep.Warnings[0])
	require.Equal(t, 1, rep.Summary.OverDaily)
}

func TestCompute_DailyRankingSummary(t *testing.T) {
	w := models.Window{Start: day2 - 2*86400, End: day2 + 86400}
	tracks := []*models.Track{
		track("A", day2-86400, 10000),
		track("A", day2, 50000),
		track("A", day2+60, 40000),
		track("B", day2, 12345),
		track("C", day2-86400, 90000),
	}
	rep, perDay := Compute(tracks, w, time.UTC)

	require.Equal(t, []string{"2024-01-01", "2024-01-02"}, rep.Daily.Labels)
	require.Equal(t, []float64{100.0, 102.35}, rep.Daily.Km)

	require.Equal(t, []RankingRow{{"A", 100}, {"C", 90}, {"B", 12.35}}, rep.Ranking)

	// Сортировка предупреждений: дата по убыванию, затем км по убыванию.
	require.Equal(t, []models.RiderDayKm{
		{Rider: "A", Date: "2024-01-02", Km: 90},
		{Rider: "C", Date: "2024-01-01", Km: 90},
	}, rep.Warnings)

	require.Equal(t, Summary{Days: 3, TotalKm: 202.35, Riders: 3, OverDaily: 2, Threshold: 80}, rep.Summary)
	require.Len(t, perDay, 4)
	require.Equal(t, models.RiderDayKm{Rider: "A", Date: "2024-01-01", Km: 10}, perDay[0])
}

func TestCompute_UsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	// 2024-01-02 20:00 UTC = 2024-01-03 04:00 UTC+8
	end := day2 + 10*3600
	rep, _ := Compute([]*models.Track{track("A", end, 1000)}, models.Window{Start: 0, End: end}, loc)
	require.Equal(t, []string{"2024-01-03"}, rep.Daily.Labels)
}

func TestCompute_Empty(t *testing.T) {
	rep, perDay := Compute(nil, models.Window{Start: 0, End: 86400}, nil)
	require.Empty(t, rep.Daily.Labels)
	require.Empty(t, rep.Ranking)
	require.Empty(t, rep.Warnings)
	require.Empty(t, perDay)
	require.Equal(t, 1, rep.Summary.Days)
}

type fakeRepo struct {
	tracks  []*models.Track
	saved   []models.RiderDayKm
	saveErr error
}

func (f *fakeRepo) ListTracksEndedBetween(ctx context.Context, w models.Window) ([]*models.Track, error) {
	return f.tracks, nil
}
func (f *fakeRepo) SaveMileageDaily(ctx context.Context, rows []models.RiderDayKm) error {
	f.saved = rows
	return f.saveErr
}

func TestService_Report(t *testing.T) {
	repo := &fakeRepo{tracks: []*models.Track{track("A", day2, 5000)}}
	rep, err := New(repo, nil).Report(context.Background(), models.Window{Start: 0, End: day2})
	require.NoError(t, err)
	require.Len(t, rep.Ranking, 1)
	require.Len(t, repo.saved, 1)
	require.Empty(t, rep.Degraded)

	repo.saveErr = errors.New("boom")
	rep, err = New(repo, nil).Report(context.Background(), models.Window{Start: 0, End: day2})
	require.NoError(t, err)
	require.Equal(t, []string{"mileage_daily"}, rep.Degraded)
}
