package models

// RiderDayKm is one rider's total mileage for a calendar day (YYYY-MM-DD).
type RiderDayKm struct {
	Rider string  `json:"rider"`
	Date  string  `json:"date"`
	Km    float64 `json:"km"`
}

type PerformanceDay struct {
	Rider        string
	Date         string
	Orders       int
	OnTimeRate   float64
	AcceptRate   float64
	PositiveRate float64
}
