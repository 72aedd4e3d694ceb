package pgdispatch

import (
	"context"
	"encoding/json"

	"github.com/BearBump/DispatchDesk/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const orderColumns = `
  id, rider, status, created_ts, pickup_ts, delivered_ts, eta_ts,
  origin_lng, origin_lat, dest_lng, dest_lat, fee, distance_km, category`

// UpsertOrders пишет заказы целиком (insert or replace) одной транзакцией.
func (s *Storage) UpsertOrders(ctx context.Context, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		for _, o := range orders {
			if err := upsertOrder(ctx, tx, o); err != nil {
				return err
			}
		}
		return nil
	})
}

func upsertOrder(ctx context.Context, tx pgx.Tx, o *models.Order) error {
	var olng, olat, dlng, dlat *float64
	if o.Origin != nil {
		olng, olat = &o.Origin.Lng, &o.Origin.Lat
	}
	if o.Dest != nil {
		dlng, dlat = &o.Dest.Lng, &o.Dest.Lat
	}
	_, err := tx.Exec(ctx, `
INSERT INTO orders (`+orderColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (id) DO UPDATE SET
  rider = EXCLUDED.rider,
  status = EXCLUDED.status,
  created_ts = EXCLUDED.created_ts,
  pickup_ts = EXCLUDED.pickup_ts,
  delivered_ts = EXCLUDED.delivered_ts,
  eta_ts = EXCLUDED.eta_ts,
  origin_lng = EXCLUDED.origin_lng,
  origin_lat = EXCLUDED.origin_lat,
  dest_lng = EXCLUDED.dest_lng,
  dest_lat = EXCLUDED.dest_lat,
  fee = EXCLUDED.fee,
  distance_km = EXCLUDED.distance_km,
  category = EXCLUDED.category
`, o.ID, o.Rider, o.Status, o.CreatedTS, o.PickupTS, o.DeliveredTS, o.EtaTS,
		olng, olat, dlng, dlat, o.Fee, o.DistanceKm, o.Category)
	return errors.Wrap(err, "upsert order")
}

func (s *Storage) ListOrders(ctx context.Context) ([]*models.Order, error) {
	rows, err := s.db.Query(ctx, `SELECT `+orderColumns+` FROM orders`)
	if err != nil {
		return nil, errors.Wrap(err, "select orders")
	}
	return collectOrders(rows)
}

func (s *Storage) ListOrdersCreatedBetween(ctx context.Context, w models.Window) ([]*models.Order, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+orderColumns+`
FROM orders
WHERE created_ts BETWEEN $1 AND $2
`, w.Start, w.End)
	if err != nil {
		return nil, errors.Wrap(err, "select orders in window")
	}
	return collectOrders(rows)
}

func (s *Storage) ListLatestOrders(ctx context.Context, limit int) ([]*models.Order, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+orderColumns+`
FROM orders
ORDER BY created_ts DESC, id DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select latest orders")
	}
	return collectOrders(rows)
}

func collectOrders(rows pgx.Rows) ([]*models.Order, error) {
	defer rows.Close()

	out := make([]*models.Order, 0)
	for rows.Next() {
		var o models.Order
		var olng, olat, dlng, dlat *float64
		if err := rows.Scan(
			&o.ID, &o.Rider, &o.Status, &o.CreatedTS, &o.PickupTS, &o.DeliveredTS, &o.EtaTS,
			&olng, &olat, &dlng, &dlat, &o.Fee, &o.DistanceKm, &o.Category,
		); err != nil {
			return nil, errors.Wrap(err, "scan order")
		}
		if olng != nil && olat != nil {
			o.Origin = &models.Point{Lng: *olng, Lat: *olat}
		}
		if dlng != nil && dlat != nil {
			o.Dest = &models.Point{Lng: *dlng, Lat: *dlat}
		}
		out = append(out, &o)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) InsertOrderEvent(ctx context.Context, ev *models.OrderEvent) error {
	meta := ev.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return errors.Wrap(err, "marshal event meta")
	}
	_, err = s.db.Exec(ctx, `INSERT INTO order_events (order_id, ts, type, meta) VALUES ($1,$2,$3,$4)`,
		ev.OrderID, ev.TS, ev.Type, b)
	return errors.Wrap(err, "insert order event")
}

func (s *Storage) ListOrderEvents(ctx context.Context, orderID string) ([]*models.OrderEvent, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, order_id, ts, type, meta
FROM order_events
WHERE order_id = $1
ORDER BY ts ASC, id ASC
`, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "select order events")
	}
	defer rows.Close()

	out := make([]*models.OrderEvent, 0)
	for rows.Next() {
		var ev models.OrderEvent
		var meta []byte
		if err := rows.Scan(&ev.ID, &ev.OrderID, &ev.TS, &ev.Type, &meta); err != nil {
			return nil, errors.Wrap(err, "scan order event")
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &ev.Meta)
		}
		out = append(out, &ev)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) CountOrders(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM orders`).Scan(&n)
	return n, errors.Wrap(err, "count orders")
}

// ClearSampleData удаляет алерты, события, расчёты и заказы. Райдеры и треки остаются.
func (s *Storage) ClearSampleData(ctx context.Context) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		for _, q := range []string{
			`DELETE FROM alerts`,
			`DELETE FROM order_events`,
			`DELETE FROM settlements`,
			`DELETE FROM orders`,
		} {
			if _, err := tx.Exec(ctx, q); err != nil {
				return errors.Wrap(err, "clear sample data")
			}
		}
		return nil
	})
}

func (s *Storage) SampleStatus(ctx context.Context) (orders, riders, alerts int, err error) {
	err = s.db.QueryRow(ctx, `
SELECT
  (SELECT COUNT(*) FROM orders),
  (SELECT COUNT(DISTINCT rider) FROM orders),
  (SELECT COUNT(*) FROM alerts)
`).Scan(&orders, &riders, &alerts)
	return orders, riders, alerts, errors.Wrap(err, "sample status")
}
