package pgdispatch

import (
	"context"
	"testing"
	"time"

	"github.com/BearBump/DispatchDesk/internal/models"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"
)

func startPostgres(t *testing.T) *Storage {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test")
	}
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "admin",
			"POSTGRES_PASSWORD": "admin",
			"POSTGRES_DB":       "dispatch_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := "postgres://admin:admin@" + host + ":" + port.Port() + "/dispatch_test?sslmode=disable"
	st, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return st
}

func i64(v int64) *int64 { return &v }

func TestPGDispatch_RepoFlow(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	v, err := st.SchemaVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, len(migrations), v)

	// Повторный прогон миграций ничего не делает.
	require.NoError(t, st.migrate(ctx))

	cat := "咖啡"
	now := int64(1_700_000_000)
	orders := []*models.Order{
		{
			ID: "OD1", Rider: "王明", Status: models.OrderStatusInTransit, CreatedTS: now - 100,
			EtaTS: i64(now - 10), Origin: &models.Point{Lng: 116.39, Lat: 39.91}, Dest: &models.Point{Lng: 116.40, Lat: 39.90},
			Fee: 10, DistanceKm: 2, Category: &cat,
		},
		{ID: "OD2", Rider: "李伟", Status: models.OrderStatusDelivered, CreatedTS: now - 50, DeliveredTS: i64(now - 5)},
	}
	require.NoError(t, st.UpsertOrders(ctx, orders))

	// upsert заменяет заказ целиком
	orders[1].Fee = 22.5
	require.NoError(t, st.UpsertOrders(ctx, orders[1:]))

	n, err := st.CountOrders(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	latest, err := st.ListLatestOrders(ctx, 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	require.Equal(t, "OD2", latest[0].ID)
	require.Equal(t, 22.5, latest[0].Fee)
	require.Nil(t, latest[0].Origin)

	inWin, err := st.ListOrdersCreatedBetween(ctx, models.Window{Start: now - 100, End: now - 60})
	require.NoError(t, err)
	require.Len(t, inWin, 1)
	require.Equal(t, "OD1", inWin[0].ID)
	require.NotNil(t, inWin[0].Origin)
	require.Equal(t, 116.39, inWin[0].Origin.Lng)
	require.Equal(t, "咖啡", *inWin[0].Category)

	require.NoError(t, st.InsertOrderEvent(ctx, &models.OrderEvent{OrderID: "OD1", TS: now, Type: "pickup"}))
	evs, err := st.ListOrderEvents(ctx, "OD1")
	require.NoError(t, err)
	require.Len(t, evs, 1)
	require.Equal(t, "pickup", evs[0].Type)

	riders, err := st.ListOrderRiders(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"李伟", "王明"}, riders)

	// Алерты: одна пара (order, kind) хранится в единственном экземпляре.
	a := &models.Alert{OrderID: "OD1", Rider: "王明", Kind: models.AlertKindDelay, TS: now, Point: models.Point{Lng: 1, Lat: 2}, Severity: models.SeverityDelay}
	require.NoError(t, st.ReplaceAlerts(ctx, []*models.Alert{a}))
	a2 := *a
	a2.TS = now + 60
	require.NoError(t, st.ReplaceAlerts(ctx, []*models.Alert{&a2}))
	require.Equal(t, a.ID, a2.ID)

	alerts, err := st.ListRecentAlerts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, now+60, alerts[0].TS)

	cnt, err := st.CountAlertsSince(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 1, cnt)

	delays, err := st.CountDelayAlertsByRider(ctx, models.Window{Start: now - 1000, End: now})
	require.NoError(t, err)
	require.Equal(t, map[string]int{"王明": 1}, delays)

	so, sr, sa, err := st.SampleStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, []int{2, 2, 1}, []int{so, sr, sa})

	require.NoError(t, st.ClearSampleData(ctx))
	so, _, sa, err = st.SampleStatus(ctx)
	require.NoError(t, err)
	require.Zero(t, so)
	require.Zero(t, sa)
}

func TestPGDispatch_ReplaceAlertsConcurrent(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 8; i++ {
		ts := int64(1_700_000_000 + i)
		g.Go(func() error {
			return st.ReplaceAlerts(gctx, []*models.Alert{
				{OrderID: "OD1", Rider: "A", Kind: models.AlertKindDelay, TS: ts, Severity: models.SeverityDelay},
				{OrderID: "OD1", Rider: "A", Kind: models.AlertKindDeviation, TS: ts, Severity: models.SeverityDeviation},
			})
		})
	}
	require.NoError(t, g.Wait())

	alerts, err := st.ListRecentAlerts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
}

func TestPGDispatch_RidersAndTelemetry(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	_, err := st.GetRider(ctx, "nobody")
	require.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, st.EnsureRiders(ctx, []*models.Rider{{Name: "Amy"}, {Name: "Bob", Phone: "111"}}))
	// EnsureRiders заполняет только пустой телефон
	require.NoError(t, st.EnsureRiders(ctx, []*models.Rider{{Name: "Amy", Phone: "222"}, {Name: "Bob", Phone: "999"}}))
	amy, err := st.GetRider(ctx, "Amy")
	require.NoError(t, err)
	require.Equal(t, "222", amy.Phone)
	bob, err := st.GetRider(ctx, "Bob")
	require.NoError(t, err)
	require.Equal(t, "111", bob.Phone)

	// UpsertRider перезаписывает
	require.NoError(t, st.UpsertRider(ctx, &models.Rider{Name: "Bob", Phone: "333"}))
	list, err := st.ListRiders(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "333", list[1].Phone)

	base := int64(1_700_000_000_000)
	require.NoError(t, st.InsertLivePoints(ctx, []*models.LivePoint{
		{Rider: "Amy", Point: models.Point{Lng: 1, Lat: 1}, TSMs: base},
		{Rider: "Amy", Point: models.Point{Lng: 2, Lat: 2}, TSMs: base + 1000},
		{Rider: "Bob", Point: models.Point{Lng: 3, Lat: 3}, TSMs: base - 600_000},
	}))
	pos, err := st.LatestPositions(ctx)
	require.NoError(t, err)
	require.Len(t, pos, 2)
	require.Equal(t, 2.0, pos["Amy"].Lng)

	online, err := st.CountOnlineRiders(ctx, base-300_000)
	require.NoError(t, err)
	require.Equal(t, 1, online)

	tr := &models.Track{Rider: "Amy", Phone: "222", StartMs: base, EndMs: base + 60_000, DistanceM: 1000,
		Points: []models.Point{{Lng: 1, Lat: 1}, {Lng: 2, Lat: 2}}}
	require.NoError(t, st.UpsertTrack(ctx, tr))
	tr.DistanceM = 1500
	require.NoError(t, st.UpsertTrack(ctx, tr))
	require.NoError(t, st.InsertTracks(ctx, []*models.Track{{Rider: "Bob", StartMs: base, EndMs: base + 120_000, DistanceM: 700}}))

	recent, err := st.ListRecentTracks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "Bob", recent[0].Rider)
	require.Equal(t, 1500.0, recent[1].DistanceM)

	w := models.Window{Start: base/1000 - 10, End: base/1000 + 3600}
	ended, err := st.ListTracksEndedBetween(ctx, w)
	require.NoError(t, err)
	require.Len(t, ended, 2)

	dayStart := base - base%86_400_000
	require.NoError(t, st.ReplaceDayTracks(ctx, "Amy", dayStart, dayStart+86_400_000,
		&models.Track{Rider: "Amy", StartMs: dayStart, EndMs: dayStart + 1, DistanceM: 5000}))

	deleted, err := st.DeleteTracksEndedBetween(ctx, "Bob", w)
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	require.NoError(t, st.SaveMileageDaily(ctx, []models.RiderDayKm{{Rider: "Amy", Date: "2023-11-14", Km: 5}}))
	require.NoError(t, st.SaveMileageDaily(ctx, []models.RiderDayKm{{Rider: "Amy", Date: "2023-11-14", Km: 6}}))
	require.NoError(t, st.SavePerformanceDaily(ctx, []models.PerformanceDay{{Rider: "Amy", Date: "2023-11-14", Orders: 1, OnTimeRate: 1}}))

	require.NoError(t, st.DeleteRider(ctx, "Amy"))
	_, err = st.GetRider(ctx, "Amy")
	require.ErrorIs(t, err, models.ErrNotFound)
	pos, err = st.LatestPositions(ctx)
	require.NoError(t, err)
	require.NotContains(t, pos, "Amy")
}

func TestPGDispatch_Settlements(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	w := models.Window{Start: 100, End: 200}
	rows := []*models.Settlement{
		{Rider: "Amy", Orders: 2, TotalIncome: 20, NetIncome: 18, GeneratedTS: 300},
		{Rider: "Bob", Orders: 3, TotalIncome: 30, NetIncome: 25, GeneratedTS: 300},
	}
	require.NoError(t, st.ReplaceSettlements(ctx, w, rows))
	require.NoError(t, st.ReplaceSettlements(ctx, w, rows[:1]))
	require.NoError(t, st.ReplaceSettlements(ctx, models.Window{Start: 100, End: 300}, rows[1:]))

	got, err := st.ListSettlements(ctx, w)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Amy", got[0].Rider)
	require.Equal(t, int64(100), got[0].PeriodStart)
}
