package models

import "strings"

// Статусы заказа. В БД храним латиницей, на входе принимаем и исходные подписи.
const (
	OrderStatusAwaitingPickup = "awaiting_pickup"
	OrderStatusInTransit      = "in_transit"
	OrderStatusDelayed        = "delayed"
	OrderStatusDelivered      = "delivered"
)

var statusAliases = map[string]string{
	"待取餐": OrderStatusAwaitingPickup,
	"配送中": OrderStatusInTransit,
	"延迟":  OrderStatusDelayed,
	"已送达": OrderStatusDelivered,
}

// NormalizeOrderStatus maps display labels to canonical statuses.
// Unknown values are returned as is.
func NormalizeOrderStatus(s string) string {
	s = strings.TrimSpace(s)
	if v, ok := statusAliases[s]; ok {
		return v
	}
	return s
}

var statusLabels = map[string]string{
	OrderStatusAwaitingPickup: "待取餐",
	OrderStatusInTransit:      "配送中",
	OrderStatusDelayed:        "延迟",
	OrderStatusDelivered:      "已送达",
}

// OrderStatuses in funnel order.
var OrderStatuses = []string{
	OrderStatusAwaitingPickup,
	OrderStatusInTransit,
	OrderStatusDelayed,
	OrderStatusDelivered,
}

// StatusLabel is the display label for a canonical status.
func StatusLabel(status string) string {
	if l, ok := statusLabels[status]; ok {
		return l
	}
	return status
}

type Point struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

// Order timestamps are unix seconds.
type Order struct {
	ID          string  `json:"id"`
	Rider       string  `json:"rider"`
	Status      string  `json:"status"`
	CreatedTS   int64   `json:"created_ts"`
	PickupTS    *int64  `json:"pickup_ts,omitempty"`
	DeliveredTS *int64  `json:"delivered_ts,omitempty"`
	EtaTS       *int64  `json:"eta_ts,omitempty"`
	Origin      *Point  `json:"origin,omitempty"`
	Dest        *Point  `json:"dest,omitempty"`
	Fee         float64 `json:"fee"`
	DistanceKm  float64 `json:"distance_km"`
	Category    *string `json:"category,omitempty"`
}

// HasTS: nil и 0 одинаково означают "время не задано".
func HasTS(ts *int64) bool {
	return ts != nil && *ts != 0
}

// DropZeroTimestamps сбрасывает нулевые pickup/delivered/eta в nil.
func (o *Order) DropZeroTimestamps() {
	for _, p := range []**int64{&o.PickupTS, &o.DeliveredTS, &o.EtaTS} {
		if !HasTS(*p) {
			*p = nil
		}
	}
}

// IsDelivered: статус "доставлен" или проставлено время доставки.
func (o *Order) IsDelivered() bool {
	return o.Status == OrderStatusDelivered || HasTS(o.DeliveredTS)
}

// IsOnTime reports delivered_ts <= eta_ts. Both must be set.
func (o *Order) IsOnTime() bool {
	if !HasTS(o.DeliveredTS) || !HasTS(o.EtaTS) {
		return false
	}
	return *o.DeliveredTS <= *o.EtaTS
}

type OrderEvent struct {
	ID      int64          `json:"id"`
	OrderID string         `json:"order_id"`
	TS      int64          `json:"ts"`
	Type    string         `json:"type"`
	Meta    map[string]any `json:"meta,omitempty"`
}
