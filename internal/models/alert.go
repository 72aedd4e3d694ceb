package models

const (
	AlertKindDelay     = "delay"
	AlertKindDeviation = "deviation"
)

const (
	SeverityDelay     = 2
	SeverityDeviation = 3
)

// Alert.TS is unix seconds. Хранится не больше одного алерта на пару (order_id, kind).
type Alert struct {
	ID      int64  `json:"id"`
	OrderID string `json:"order_id"`
	Rider   string `json:"rider"`
	Kind    string `json:"type"`
	TS      int64  `json:"ts"`
	Point
	Severity int `json:"severity"`
}

type Settlement struct {
	Rider       string  `json:"rider"`
	PeriodStart int64   `json:"period_start"`
	PeriodEnd   int64   `json:"period_end"`
	Orders      int     `json:"orders"`
	TotalIncome float64 `json:"total_income"`
	Subsidy     float64 `json:"subsidy"`
	Penalties   float64 `json:"penalties"`
	NetIncome   float64 `json:"net_income"`
	GeneratedTS int64   `json:"generated_ts"`
}
