package pgdispatch

import (
	"context"
	"encoding/json"

	"github.com/BearBump/DispatchDesk/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (s *Storage) InsertLivePoints(ctx context.Context, pts []*models.LivePoint) error {
	if len(pts) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range pts {
		batch.Queue(`INSERT INTO live_points (rider, lng, lat, ts_ms) VALUES ($1,$2,$3,$4)`, p.Rider, p.Lng, p.Lat, p.TSMs)
	}
	br := s.db.SendBatch(ctx, batch)
	defer br.Close()
	for range pts {
		if _, err := br.Exec(); err != nil {
			return errors.Wrap(err, "insert live point")
		}
	}
	return nil
}

// LatestPositions возвращает последнюю точку каждого райдера.
func (s *Storage) LatestPositions(ctx context.Context) (map[string]models.LivePoint, error) {
	rows, err := s.db.Query(ctx, `
SELECT DISTINCT ON (rider) rider, lng, lat, ts_ms
FROM live_points
ORDER BY rider, ts_ms DESC, id DESC
`)
	if err != nil {
		return nil, errors.Wrap(err, "select latest positions")
	}
	defer rows.Close()

	out := make(map[string]models.LivePoint)
	for rows.Next() {
		var p models.LivePoint
		if err := rows.Scan(&p.Rider, &p.Lng, &p.Lat, &p.TSMs); err != nil {
			return nil, errors.Wrap(err, "scan live point")
		}
		out[p.Rider] = p
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) CountOnlineRiders(ctx context.Context, sinceMs int64) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(DISTINCT rider) FROM live_points WHERE ts_ms > $1`, sinceMs).Scan(&n)
	return n, errors.Wrap(err, "count online riders")
}

// UpsertTrack: повторная отправка того же (rider, start, end) обновляет дистанцию и точки.
func (s *Storage) UpsertTrack(ctx context.Context, t *models.Track) error {
	pts := t.Points
	if pts == nil {
		pts = []models.Point{}
	}
	b, err := json.Marshal(pts)
	if err != nil {
		return errors.Wrap(err, "marshal track points")
	}
	_, err = s.db.Exec(ctx, `
INSERT INTO tracks (rider, phone, start_ms, end_ms, distance_m, points)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (rider, start_ms, end_ms)
DO UPDATE SET distance_m = EXCLUDED.distance_m, points = EXCLUDED.points
`, t.Rider, t.Phone, t.StartMs, t.EndMs, t.DistanceM, b)
	return errors.Wrap(err, "upsert track")
}

func (s *Storage) InsertTracks(ctx context.Context, tracks []*models.Track) error {
	if len(tracks) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		for _, t := range tracks {
			if _, err := tx.Exec(ctx, `
INSERT INTO tracks (rider, phone, start_ms, end_ms, distance_m, points)
VALUES ($1,$2,$3,$4,$5,'[]'::jsonb)
ON CONFLICT (rider, start_ms, end_ms) DO UPDATE SET distance_m = EXCLUDED.distance_m
`, t.Rider, t.Phone, t.StartMs, t.EndMs, t.DistanceM); err != nil {
				return errors.Wrap(err, "insert track")
			}
		}
		return nil
	})
}

// ListTracksEndedBetween выбирает треки, у которых end (в секундах) попадает в окно.
func (s *Storage) ListTracksEndedBetween(ctx context.Context, w models.Window) ([]*models.Track, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, rider, phone, start_ms, end_ms, distance_m
FROM tracks
WHERE end_ms / 1000 BETWEEN $1 AND $2
`, w.Start, w.End)
	if err != nil {
		return nil, errors.Wrap(err, "select tracks in window")
	}
	return collectTracks(rows)
}

func (s *Storage) ListRecentTracks(ctx context.Context, limit int) ([]*models.Track, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, rider, phone, start_ms, end_ms, distance_m
FROM tracks
ORDER BY end_ms DESC, id DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select recent tracks")
	}
	return collectTracks(rows)
}

func collectTracks(rows pgx.Rows) ([]*models.Track, error) {
	defer rows.Close()

	out := make([]*models.Track, 0)
	for rows.Next() {
		var t models.Track
		if err := rows.Scan(&t.ID, &t.Rider, &t.Phone, &t.StartMs, &t.EndMs, &t.DistanceM); err != nil {
			return nil, errors.Wrap(err, "scan track")
		}
		out = append(out, &t)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) DeleteTracksEndedBetween(ctx context.Context, rider string, w models.Window) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM tracks WHERE rider = $1 AND end_ms / 1000 BETWEEN $2 AND $3`, rider, w.Start, w.End)
	if err != nil {
		return 0, errors.Wrap(err, "delete tracks")
	}
	return tag.RowsAffected(), nil
}

// ReplaceDayTracks удаляет треки райдера с end в [dayStartMs, dayEndMs) и пишет один новый.
func (s *Storage) ReplaceDayTracks(ctx context.Context, rider string, dayStartMs, dayEndMs int64, t *models.Track) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM tracks WHERE rider = $1 AND end_ms >= $2 AND end_ms < $3`, rider, dayStartMs, dayEndMs); err != nil {
			return errors.Wrap(err, "delete day tracks")
		}
		if _, err := tx.Exec(ctx, `
INSERT INTO tracks (rider, phone, start_ms, end_ms, distance_m, points)
VALUES ($1,$2,$3,$4,$5,'[]'::jsonb)
`, t.Rider, t.Phone, t.StartMs, t.EndMs, t.DistanceM); err != nil {
			return errors.Wrap(err, "insert day track")
		}
		return nil
	})
}

// SaveMileageDaily перезаписывает дневные суммы километража.
func (s *Storage) SaveMileageDaily(ctx context.Context, rows []models.RiderDayKm) error {
	if len(rows) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		for _, r := range rows {
			if _, err := tx.Exec(ctx, `
INSERT INTO mileage_daily (rider, day, km, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (rider, day) DO UPDATE SET km = EXCLUDED.km, updated_at = now()
`, r.Rider, r.Date, r.Km); err != nil {
				return errors.Wrap(err, "upsert mileage daily")
			}
		}
		return nil
	})
}
