package messages

import (
	"github.com/BearBump/DispatchDesk/internal/models"
)

// Виды телеметрии в топике dispatch.telemetry.
const (
	TelemetryKindPoint = "point"
	TelemetryKindTrack = "track"
	TelemetryKindOrder = "order"
)

// TelemetryReported is one inbound fact. Exactly one payload field matches Kind.
type TelemetryReported struct {
	Kind  string            `json:"kind"`
	Phone string            `json:"phone,omitempty"`
	Point *models.LivePoint `json:"point,omitempty"`
	Track *models.Track     `json:"track,omitempty"`
	Order *models.Order     `json:"order,omitempty"`
}

// AlertRaised is published after each alert recompute.
type AlertRaised struct {
	OrderID  string  `json:"order_id"`
	Rider    string  `json:"rider"`
	Kind     string  `json:"kind"`
	TS       int64   `json:"ts"`
	Lng      float64 `json:"lng"`
	Lat      float64 `json:"lat"`
	Severity int     `json:"severity"`
}

func NewAlertRaised(a *models.Alert) AlertRaised {
	return AlertRaised{
		OrderID:  a.OrderID,
		Rider:    a.Rider,
		Kind:     a.Kind,
		TS:       a.TS,
		Lng:      a.Lng,
		Lat:      a.Lat,
		Severity: a.Severity,
	}
}
