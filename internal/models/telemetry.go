package models

// LivePoint is a single GPS report. TSMs is unix milliseconds.
type LivePoint struct {
	Rider string `json:"rider"`
	Point
	TSMs int64 `json:"ts"`
}

// Track is a recorded run. Start/end are unix milliseconds.
type Track struct {
	ID        int64   `json:"id"`
	Rider     string  `json:"rider"`
	Phone     string  `json:"phone"`
	StartMs   int64   `json:"start_ts"`
	EndMs     int64   `json:"end_ts"`
	DistanceM float64 `json:"distance"`
	Points    []Point `json:"points,omitempty"`
}

type Rider struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}
