package dashboard_api

import (
	"strings"

	"github.com/BearBump/DispatchDesk/internal/models"
)

type trackPointRequest struct {
	Name  string   `json:"name" validate:"required"`
	Phone string   `json:"phone"`
	Lng   *float64 `json:"lng" validate:"required,gte=-180,lte=180"`
	Lat   *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	TS    int64    `json:"ts" validate:"required"`
}

// trackSubmitRequest: точки приходят парами [lng, lat].
type trackSubmitRequest struct {
	Name     string      `json:"name" validate:"required"`
	Phone    string      `json:"phone"`
	StartTS  int64       `json:"start_ts" validate:"required"`
	EndTS    int64       `json:"end_ts" validate:"required"`
	Distance float64     `json:"distance"`
	Points   [][]float64 `json:"points" validate:"required,min=1,dive,min=2"`
}

func (r trackSubmitRequest) toModel() *models.Track {
	pts := make([]models.Point, 0, len(r.Points))
	for _, p := range r.Points {
		pts = append(pts, models.Point{Lng: p[0], Lat: p[1]})
	}
	return &models.Track{
		Rider:     strings.TrimSpace(r.Name),
		Phone:     strings.TrimSpace(r.Phone),
		StartMs:   r.StartTS,
		EndMs:     r.EndTS,
		DistanceM: r.Distance,
		Points:    pts,
	}
}

// orderRequest повторяет плоский формат заказа клиента.
type orderRequest struct {
	ID          string   `json:"id"`
	Rider       string   `json:"rider"`
	Status      string   `json:"status"`
	CreatedTS   int64    `json:"created_ts"`
	PickupTS    *int64   `json:"pickup_ts"`
	DeliveredTS *int64   `json:"delivered_ts"`
	EtaTS       *int64   `json:"eta_ts"`
	OriginLng   *float64 `json:"origin_lng"`
	OriginLat   *float64 `json:"origin_lat"`
	DestLng     *float64 `json:"dest_lng"`
	DestLat     *float64 `json:"dest_lat"`
	Fee         float64  `json:"fee" validate:"gte=0"`
	Distance    float64  `json:"distance" validate:"gte=0"`
	Category    *string  `json:"category"`
}

func (r orderRequest) toModel() *models.Order {
	o := &models.Order{
		ID:          r.ID,
		Rider:       r.Rider,
		Status:      r.Status,
		CreatedTS:   r.CreatedTS,
		PickupTS:    r.PickupTS,
		DeliveredTS: r.DeliveredTS,
		EtaTS:       r.EtaTS,
		Fee:         r.Fee,
		DistanceKm:  r.Distance,
		Category:    r.Category,
	}
	if r.OriginLng != nil && r.OriginLat != nil {
		o.Origin = &models.Point{Lng: *r.OriginLng, Lat: *r.OriginLat}
	}
	if r.DestLng != nil && r.DestLat != nil {
		o.Dest = &models.Point{Lng: *r.DestLng, Lat: *r.DestLat}
	}
	return o
}

type importRequest struct {
	Orders []orderRequest `json:"orders" validate:"required,dive"`
}

type orderEventRequest struct {
	OrderID string         `json:"order_id"`
	TS      int64          `json:"ts"`
	Type    string         `json:"type"`
	Meta    map[string]any `json:"meta"`
}

type alertReportRequest struct {
	OrderID  string   `json:"order_id"`
	Rider    string   `json:"rider"`
	Type     string   `json:"type" validate:"omitempty,oneof=delay deviation"`
	TS       int64    `json:"ts"`
	Lng      *float64 `json:"lng"`
	Lat      *float64 `json:"lat"`
	Severity int      `json:"severity"`
}

func (r alertReportRequest) toModel() *models.Alert {
	a := &models.Alert{
		OrderID:  strings.TrimSpace(r.OrderID),
		Rider:    strings.TrimSpace(r.Rider),
		Kind:     r.Type,
		TS:       r.TS,
		Severity: r.Severity,
	}
	if r.Lng != nil {
		a.Lng = *r.Lng
	}
	if r.Lat != nil {
		a.Lat = *r.Lat
	}
	return a
}

type riderRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type mileageDeleteRequest struct {
	Rider string `json:"rider"`
	Start int64  `json:"start"`
	End   int64  `json:"end"`
}

type mileageUpdateRequest struct {
	Rider string  `json:"rider"`
	Date  string  `json:"date"`
	Km    float64 `json:"km"`
}

// generatorStartRequest: нулевые значения заменяются дефолтами.
type generatorStartRequest struct {
	RatePerInterval int   `json:"rate_per_interval"`
	RatePerMinute   int   `json:"rate_per_minute"`
	HoursWindow     int   `json:"hours_window"`
	IntervalMinutes int   `json:"interval_minutes"`
	AIProfile       *bool `json:"ai_profile"`
}
