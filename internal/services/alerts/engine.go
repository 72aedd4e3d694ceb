package alerts

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/BearBump/DispatchDesk/internal/broker/messages"
	"github.com/BearBump/DispatchDesk/internal/geo"
	"github.com/BearBump/DispatchDesk/internal/models"
	"github.com/pkg/errors"
)

const (
	// DeviationThresholdM: отклонение считается, только если дистанция строго больше.
	DeviationThresholdM = 500.0
	// RecentLimit is how many alerts List returns.
	RecentLimit = 100
)

// segmentDistance подменяется в тестах, чтобы проверить порог без погрешности проекции.
var segmentDistance = geo.PointToSegmentDistance

type Repository interface {
	ListOrders(ctx context.Context) ([]*models.Order, error)
	LatestPositions(ctx context.Context) (map[string]models.LivePoint, error)
	ReplaceAlerts(ctx context.Context, alerts []*models.Alert) error
	ListRecentAlerts(ctx context.Context, limit int) ([]*models.Alert, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type Engine struct {
	repo     Repository
	producer Producer
	topic    string
}

func New(repo Repository) *Engine {
	return &Engine{repo: repo}
}

// WithProducer enables best-effort publishing of freshly detected alerts.
func (e *Engine) WithProducer(p Producer, topic string) *Engine {
	e.producer = p
	e.topic = topic
	return e
}

// Detect evaluates every order against its rider's latest position.
// now is unix seconds. Orders whose rider has no position produce nothing.
func Detect(orders []*models.Order, positions map[string]models.LivePoint, now int64) []*models.Alert {
	out := make([]*models.Alert, 0)
	for _, o := range orders {
		pos, ok := positions[o.Rider]
		if !ok {
			continue
		}
		if models.HasTS(o.EtaTS) && now > *o.EtaTS && o.Status != models.OrderStatusDelivered {
			out = append(out, &models.Alert{
				OrderID:  o.ID,
				Rider:    o.Rider,
				Kind:     models.AlertKindDelay,
				TS:       now,
				Point:    pos.Point,
				Severity: models.SeverityDelay,
			})
		}
		if o.Origin != nil && o.Dest != nil {
			d := segmentDistance(pos.Point, *o.Origin, *o.Dest)
			if d > DeviationThresholdM {
				out = append(out, &models.Alert{
					OrderID:  o.ID,
					Rider:    o.Rider,
					Kind:     models.AlertKindDeviation,
					TS:       now,
					Point:    pos.Point,
					Severity: models.SeverityDeviation,
				})
			}
		}
	}
	return out
}

// Recompute пересчитывает алерты с нуля по текущим фактам.
// Алерты, условие которых уже не выполняется, не удаляются.
func (e *Engine) Recompute(ctx context.Context, now time.Time) ([]*models.Alert, error) {
	orders, err := e.repo.ListOrders(ctx)
	if err != nil {
		return nil, err
	}
	positions, err := e.repo.LatestPositions(ctx)
	if err != nil {
		return nil, err
	}

	fresh := Detect(orders, positions, now.Unix())
	if err := e.repo.ReplaceAlerts(ctx, fresh); err != nil {
		return nil, err
	}
	e.publish(ctx, fresh)
	return fresh, nil
}

func (e *Engine) List(ctx context.Context) ([]*models.Alert, error) {
	return e.repo.ListRecentAlerts(ctx, RecentLimit)
}

// Report stores an externally detected alert with the same per-(order, kind) replacement.
func (e *Engine) Report(ctx context.Context, a *models.Alert) error {
	if a == nil || a.OrderID == "" || a.Rider == "" || a.Kind == "" || a.TS == 0 {
		return models.Invalid("order_id, rider, type and ts are required")
	}
	return e.repo.ReplaceAlerts(ctx, []*models.Alert{a})
}

func (e *Engine) publish(ctx context.Context, alerts []*models.Alert) {
	if e.producer == nil || e.topic == "" {
		return
	}
	for _, a := range alerts {
		b, err := json.Marshal(messages.NewAlertRaised(a))
		if err != nil {
			slog.Error("marshal alert", "error", errors.Wrap(err, "marshal").Error())
			continue
		}
		if err := e.producer.Publish(ctx, e.topic, []byte(a.OrderID), b); err != nil {
			// Доставка без гарантий: логируем и идём дальше.
			slog.Warn("publish alert", "order_id", a.OrderID, "kind", a.Kind, "error", err.Error())
			return
		}
	}
}
