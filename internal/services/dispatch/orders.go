package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/BearBump/DispatchDesk/internal/models"
	"github.com/google/uuid"
)

const LatestOrdersLimit = 100

// OrderRow is one line of the dispatcher's order table.
type OrderRow struct {
	ID       string  `json:"id"`
	Rider    string  `json:"rider"`
	Status   string  `json:"status"`
	Eta      string  `json:"eta"`
	Category *string `json:"category,omitempty"`
}

func normalizeOrder(o *models.Order) {
	o.ID = strings.TrimSpace(o.ID)
	o.Rider = strings.TrimSpace(o.Rider)
	o.Status = models.NormalizeOrderStatus(o.Status)
	o.DropZeroTimestamps()
}

// UpsertOrder пишет заказ целиком, существующий с тем же id заменяется.
func (s *Service) UpsertOrder(ctx context.Context, o *models.Order) error {
	if o == nil {
		return models.Invalid("order is required")
	}
	normalizeOrder(o)
	if o.ID == "" {
		return models.Invalid("id is required")
	}
	return s.repo.UpsertOrders(ctx, []*models.Order{o})
}

// ImportOrders пишет пачку заказов одной транзакцией. Заказам без id
// выдаётся новый идентификатор.
func (s *Service) ImportOrders(ctx context.Context, orders []*models.Order) (int, error) {
	now := s.now().Unix()
	clean := make([]*models.Order, 0, len(orders))
	for _, o := range orders {
		if o == nil {
			continue
		}
		normalizeOrder(o)
		if o.ID == "" {
			o.ID = fmt.Sprintf("OD%d%s", now, strings.ToUpper(uuid.NewString()[:8]))
		}
		clean = append(clean, o)
	}
	if err := s.repo.UpsertOrders(ctx, clean); err != nil {
		return 0, err
	}
	return len(clean), nil
}

func (s *Service) AddOrderEvent(ctx context.Context, ev *models.OrderEvent) error {
	if ev == nil {
		return models.Invalid("event is required")
	}
	ev.OrderID = strings.TrimSpace(ev.OrderID)
	ev.Type = strings.TrimSpace(ev.Type)
	if ev.OrderID == "" || ev.TS == 0 || ev.Type == "" {
		return models.Invalid("order_id, ts and type are required")
	}
	if ev.Meta == nil {
		ev.Meta = map[string]any{}
	}
	return s.repo.InsertOrderEvent(ctx, ev)
}

// OrderEvents returns an order's timeline, oldest first.
func (s *Service) OrderEvents(ctx context.Context, orderID string) ([]*models.OrderEvent, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, models.Invalid("order_id is required")
	}
	return s.repo.ListOrderEvents(ctx, orderID)
}

// ListOrders returns the latest orders by creation time, eta as local HH:MM.
func (s *Service) ListOrders(ctx context.Context) ([]OrderRow, error) {
	orders, err := s.repo.ListLatestOrders(ctx, LatestOrdersLimit)
	if err != nil {
		return nil, err
	}
	out := make([]OrderRow, 0, len(orders))
	for _, o := range orders {
		row := OrderRow{
			ID:       o.ID,
			Rider:    o.Rider,
			Status:   models.StatusLabel(o.Status),
			Category: o.Category,
		}
		if models.HasTS(o.EtaTS) {
			row.Eta = s.localTime(*o.EtaTS).Format("15:04")
		}
		out = append(out, row)
	}
	return out, nil
}
