package pgdispatch

import (
	"context"

	"github.com/BearBump/DispatchDesk/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// ReplaceSettlements удаляет все строки ровно за окно w и пишет новый снимок.
func (s *Storage) ReplaceSettlements(ctx context.Context, w models.Window, rows []*models.Settlement) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM settlements WHERE period_start = $1 AND period_end = $2`, w.Start, w.End); err != nil {
			return errors.Wrap(err, "delete settlements")
		}
		for _, r := range rows {
			if _, err := tx.Exec(ctx, `
INSERT INTO settlements (
  rider, period_start, period_end, orders_count,
  total_income, subsidy, penalties, net_income, generated_ts
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`, r.Rider, w.Start, w.End, r.Orders, r.TotalIncome, r.Subsidy, r.Penalties, r.NetIncome, r.GeneratedTS); err != nil {
				return errors.Wrap(err, "insert settlement")
			}
		}
		return nil
	})
}

func (s *Storage) ListSettlements(ctx context.Context, w models.Window) ([]*models.Settlement, error) {
	rows, err := s.db.Query(ctx, `
SELECT rider, period_start, period_end, orders_count,
       total_income, subsidy, penalties, net_income, generated_ts
FROM settlements
WHERE period_start = $1 AND period_end = $2
ORDER BY net_income DESC, rider ASC
`, w.Start, w.End)
	if err != nil {
		return nil, errors.Wrap(err, "select settlements")
	}
	defer rows.Close()

	out := make([]*models.Settlement, 0)
	for rows.Next() {
		var st models.Settlement
		if err := rows.Scan(
			&st.Rider, &st.PeriodStart, &st.PeriodEnd, &st.Orders,
			&st.TotalIncome, &st.Subsidy, &st.Penalties, &st.NetIncome, &st.GeneratedTS,
		); err != nil {
			return nil, errors.Wrap(err, "scan settlement")
		}
		out = append(out, &st)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) SavePerformanceDaily(ctx context.Context, rows []models.PerformanceDay) error {
	if len(rows) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		for _, r := range rows {
			if _, err := tx.Exec(ctx, `
INSERT INTO performance_daily (rider, day, orders_count, on_time_rate, accept_rate, positive_rate, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,now())
ON CONFLICT (rider, day) DO UPDATE SET
  orders_count = EXCLUDED.orders_count,
  on_time_rate = EXCLUDED.on_time_rate,
  accept_rate = EXCLUDED.accept_rate,
  positive_rate = EXCLUDED.positive_rate,
  updated_at = now()
`, r.Rider, r.Date, r.Orders, r.OnTimeRate, r.AcceptRate, r.PositiveRate); err != nil {
				return errors.Wrap(err, "upsert performance daily")
			}
		}
		return nil
	})
}
