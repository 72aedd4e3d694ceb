package pgdispatch

import (
	"context"

	"github.com/BearBump/DispatchDesk/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// ReplaceAlerts для каждой пары (order_id, kind) перезаписывает алерт через upsert
// по uq_alerts_order_kind, поэтому параллельные пересчёты не конфликтуют.
// Вся пачка пишется в одной транзакции.
func (s *Storage) ReplaceAlerts(ctx context.Context, alerts []*models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		for _, a := range alerts {
			if err := tx.QueryRow(ctx, `
INSERT INTO alerts (order_id, rider, kind, ts, lng, lat, severity)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (order_id, kind) DO UPDATE SET
  rider = EXCLUDED.rider,
  ts = EXCLUDED.ts,
  lng = EXCLUDED.lng,
  lat = EXCLUDED.lat,
  severity = EXCLUDED.severity
RETURNING id
`, a.OrderID, a.Rider, a.Kind, a.TS, a.Lng, a.Lat, a.Severity).Scan(&a.ID); err != nil {
				return errors.Wrap(err, "upsert alert")
			}
		}
		return nil
	})
}

func (s *Storage) ListRecentAlerts(ctx context.Context, limit int) ([]*models.Alert, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, order_id, rider, kind, ts, lng, lat, severity
FROM alerts
ORDER BY ts DESC, id DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select alerts")
	}
	defer rows.Close()

	out := make([]*models.Alert, 0)
	for rows.Next() {
		var a models.Alert
		if err := rows.Scan(&a.ID, &a.OrderID, &a.Rider, &a.Kind, &a.TS, &a.Lng, &a.Lat, &a.Severity); err != nil {
			return nil, errors.Wrap(err, "scan alert")
		}
		out = append(out, &a)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) CountAlertsSince(ctx context.Context, sinceTS int64) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM alerts WHERE ts > $1`, sinceTS).Scan(&n)
	return n, errors.Wrap(err, "count alerts")
}

// CountDelayAlertsByRider считает delay-алерты по заказам, созданным в окне.
func (s *Storage) CountDelayAlertsByRider(ctx context.Context, w models.Window) (map[string]int, error) {
	rows, err := s.db.Query(ctx, `
SELECT o.rider, COUNT(a.id)
FROM orders o
JOIN alerts a ON a.order_id = o.id
WHERE o.created_ts BETWEEN $1 AND $2
  AND a.kind = $3
GROUP BY o.rider
`, w.Start, w.End, models.AlertKindDelay)
	if err != nil {
		return nil, errors.Wrap(err, "count delay alerts")
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var rider string
		var n int
		if err := rows.Scan(&rider, &n); err != nil {
			return nil, errors.Wrap(err, "scan delay count")
		}
		out[rider] = n
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
