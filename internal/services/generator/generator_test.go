package generator

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BearBump/DispatchDesk/internal/models"
)

type fakeRepo struct {
	mu      sync.Mutex
	riders  []*models.Rider
	ensured []*models.Rider
	orders  []*models.Order
	tracks  []*models.Track
	points  []*models.LivePoint
}

func (f *fakeRepo) EnsureRiders(_ context.Context, riders []*models.Rider) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensured = append(f.ensured, riders...)
	return nil
}

func (f *fakeRepo) ListRiders(context.Context) ([]*models.Rider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.riders, nil
}

func (f *fakeRepo) UpsertOrders(_ context.Context, orders []*models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, orders...)
	return nil
}

func (f *fakeRepo) InsertTracks(_ context.Context, tracks []*models.Track) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracks = append(f.tracks, tracks...)
	return nil
}

func (f *fakeRepo) InsertLivePoints(_ context.Context, pts []*models.LivePoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, pts...)
	return nil
}

func (f *fakeRepo) orderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

func newTestGenerator(repo Repository) *Generator {
	g := NewGenerator(repo, rand.New(rand.NewSource(42)))
	g.now = func() time.Time { return time.Unix(1700000000, 0) }
	return g
}

func TestBuild_OrderShape(t *testing.T) {
	g := newTestGenerator(&fakeRepo{})
	now := int64(1700000000)

	b := g.Build(300, 6, []string{"A", "B"})
	require.Len(t, b.Orders, 300)

	ids := map[string]struct{}{}
	delivered := 0
	for _, o := range b.Orders {
		_, dup := ids[o.ID]
		require.False(t, dup, o.ID)
		ids[o.ID] = struct{}{}

		require.Contains(t, []string{"A", "B"}, o.Rider)
		require.GreaterOrEqual(t, o.CreatedTS, now-6*3600)
		require.LessOrEqual(t, o.CreatedTS, now)
		require.NotNil(t, o.EtaTS)
		require.GreaterOrEqual(t, *o.EtaTS, o.CreatedTS+1800)
		require.LessOrEqual(t, *o.EtaTS, o.CreatedTS+7200)
		require.GreaterOrEqual(t, o.Fee, 10.0)
		require.LessOrEqual(t, o.Fee, 25.0)
		require.GreaterOrEqual(t, o.DistanceKm, 2.0)
		require.LessOrEqual(t, o.DistanceKm, 8.0)
		require.Contains(t, Categories, *o.Category)

		if o.Status == models.OrderStatusAwaitingPickup {
			require.Nil(t, o.PickupTS)
		} else {
			require.NotNil(t, o.PickupTS)
		}
		if o.Status == models.OrderStatusDelivered {
			delivered++
			require.NotNil(t, o.DeliveredTS)
			require.GreaterOrEqual(t, *o.DeliveredTS, *o.PickupTS)
		} else {
			require.Nil(t, o.DeliveredTS)
		}
	}

	require.Len(t, b.Tracks, delivered)
	require.Len(t, b.Points, len(b.Orders)-delivered)
	for _, p := range b.Points {
		require.Equal(t, now*1000, p.TSMs)
		require.InDelta(t, 116.40, p.Lng, 0.025)
		require.InDelta(t, 39.91, p.Lat, 0.025)
	}
	for _, tr := range b.Tracks {
		require.Less(t, tr.StartMs, tr.EndMs)
		require.Equal(t, models.StablePhone(tr.Rider), tr.Phone)
	}
}

func TestInsert_UsesKnownRiders(t *testing.T) {
	repo := &fakeRepo{riders: []*models.Rider{{Name: "Solo", Phone: "1"}}}
	g := newTestGenerator(repo)

	n, err := g.Insert(context.Background(), 10, 2, nil)
	require.NoError(t, err)
	require.Equal(t, 10, n)
	require.Len(t, repo.ensured, len(DefaultRiders))
	for _, o := range repo.orders {
		require.Equal(t, "Solo", o.Rider)
	}
}

func TestInsert_FallsBackToDefaults(t *testing.T) {
	repo := &fakeRepo{}
	g := newTestGenerator(repo)

	n, err := g.Insert(context.Background(), 20, 1, nil)
	require.NoError(t, err)
	require.Equal(t, 20, n)
	for _, o := range repo.orders {
		require.Contains(t, DefaultRiders, o.Rider)
	}
}

func TestInsert_ExplicitRiders(t *testing.T) {
	repo := &fakeRepo{riders: []*models.Rider{{Name: "Other"}}}
	g := newTestGenerator(repo)

	_, err := g.Insert(context.Background(), 5, 48, []string{"Target"})
	require.NoError(t, err)
	for _, o := range repo.orders {
		require.Equal(t, "Target", o.Rider)
	}
}

func TestInsert_ZeroCount(t *testing.T) {
	repo := &fakeRepo{}
	n, err := newTestGenerator(repo).Insert(context.Background(), 0, 1, nil)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Empty(t, repo.ensured)
}

func TestMultiplier(t *testing.T) {
	at := func(h, m int) time.Time { return time.Date(2024, 5, 1, h, m, 0, 0, time.UTC) }

	require.InDelta(t, 0.6, Multiplier(at(9, 0)), 1e-9)
	require.InDelta(t, 1.0, Multiplier(at(9, 15)), 1e-9)
	require.InDelta(t, 0.6*2.2, Multiplier(at(12, 0)), 1e-9)
	require.InDelta(t, 0.6*2.6, Multiplier(at(18, 30)), 1e-9)
	require.InDelta(t, 0.6*0.3, Multiplier(at(3, 0)), 1e-9)
}

func TestCycleCount(t *testing.T) {
	noon := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.Equal(t, 13, CycleCount(Config{Rate: 10, TimeProfile: true}, noon))
	require.Equal(t, 10, CycleCount(Config{Rate: 10}, noon))
	require.Zero(t, CycleCount(Config{Rate: 0, TimeProfile: true}, noon))
}

type countingInserter struct {
	mu    sync.Mutex
	calls []int
}

func (c *countingInserter) Insert(_ context.Context, count, _ int, _ []string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, count)
	return count, nil
}

func (c *countingInserter) n() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func TestController_StartStop(t *testing.T) {
	c := NewController(&countingInserter{}, DefaultConfig(), time.UTC)
	require.True(t, c.Config().Enabled)

	cfg := c.Start(StartParams{Rate: -3, Hours: 0, IntervalMinutes: 0, TimeProfile: false})
	require.True(t, cfg.Enabled)
	require.Equal(t, 0, cfg.Rate)
	require.Equal(t, 1, cfg.Hours)
	require.Equal(t, time.Minute, cfg.Interval)
	require.False(t, cfg.TimeProfile)

	cfg = c.Stop()
	require.False(t, cfg.Enabled)
	require.Equal(t, 1, c.Config().Hours)
}

func TestController_Run(t *testing.T) {
	ins := &countingInserter{}
	c := NewController(ins, Config{Enabled: true, Rate: 4, Hours: 1, Interval: time.Hour}, time.UTC)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return ins.n() == 1 }, time.Second, 5*time.Millisecond)

	c.Stop()
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 1, ins.n())

	c.Start(StartParams{Rate: 2, Hours: 1, IntervalMinutes: 60})
	require.Eventually(t, func() bool { return ins.n() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	st := c.Stats()
	require.GreaterOrEqual(t, st.TotalCycles, int64(2))
	require.Equal(t, int64(6), st.TotalInserted)
}
