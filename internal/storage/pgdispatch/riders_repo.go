package pgdispatch

import (
	"context"

	"github.com/BearBump/DispatchDesk/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (s *Storage) ListRiders(ctx context.Context) ([]*models.Rider, error) {
	rows, err := s.db.Query(ctx, `SELECT name, phone FROM riders ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(err, "select riders")
	}
	defer rows.Close()

	out := make([]*models.Rider, 0)
	for rows.Next() {
		var r models.Rider
		if err := rows.Scan(&r.Name, &r.Phone); err != nil {
			return nil, errors.Wrap(err, "scan rider")
		}
		out = append(out, &r)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) GetRider(ctx context.Context, name string) (*models.Rider, error) {
	var r models.Rider
	err := s.db.QueryRow(ctx, `SELECT name, phone FROM riders WHERE name = $1`, name).Scan(&r.Name, &r.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select rider")
	}
	return &r, nil
}

// UpsertRider перезаписывает телефон (регистрация).
func (s *Storage) UpsertRider(ctx context.Context, r *models.Rider) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO riders (name, phone) VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET phone = EXCLUDED.phone
`, r.Name, r.Phone)
	return errors.Wrap(err, "upsert rider")
}

// EnsureRiders добавляет недостающих райдеров и заполняет пустой телефон.
// Существующий непустой телефон не меняется.
func (s *Storage) EnsureRiders(ctx context.Context, riders []*models.Rider) error {
	if len(riders) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		for _, r := range riders {
			if r.Name == "" {
				continue
			}
			if _, err := tx.Exec(ctx, `
INSERT INTO riders (name, phone) VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET phone = EXCLUDED.phone
WHERE riders.phone = ''
`, r.Name, r.Phone); err != nil {
				return errors.Wrap(err, "ensure rider")
			}
		}
		return nil
	})
}

func (s *Storage) ListOrderRiders(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT DISTINCT rider FROM orders WHERE rider <> '' ORDER BY rider`)
	if err != nil {
		return nil, errors.Wrap(err, "select order riders")
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "scan order rider")
		}
		out = append(out, name)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// DeleteRider удаляет райдера и все зависимые строки одной транзакцией.
func (s *Storage) DeleteRider(ctx context.Context, name string) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		stmts := []string{
			`DELETE FROM alerts WHERE rider = $1`,
			`DELETE FROM order_events WHERE order_id IN (SELECT id FROM orders WHERE rider = $1)`,
			`DELETE FROM orders WHERE rider = $1`,
			`DELETE FROM live_points WHERE rider = $1`,
			`DELETE FROM tracks WHERE rider = $1`,
			`DELETE FROM settlements WHERE rider = $1`,
			`DELETE FROM mileage_daily WHERE rider = $1`,
			`DELETE FROM performance_daily WHERE rider = $1`,
			`DELETE FROM riders WHERE name = $1`,
		}
		for _, q := range stmts {
			if _, err := tx.Exec(ctx, q, name); err != nil {
				return errors.Wrap(err, "delete rider")
			}
		}
		return nil
	})
}
