package settlement

import (
	"sort"

	"github.com/BearBump/DispatchDesk/internal/models"
	"github.com/BearBump/DispatchDesk/internal/rounding"
)

// Бонусная сетка.
const (
	OnTimeBonusPerOrder = 1.2

	TopTierMinDelivered = 100
	TopTierMinRate      = 0.95
	TopTierBonus        = 80.0

	MidTierMinDelivered = 60
	MidTierMinRate      = 0.92
	MidTierBonus        = 40.0

	ZeroDelayBonus  = 50.0
	PenaltyPerDelay = 2.0
)

// RiderStats is the per-rider aggregate a settlement is computed from.
type RiderStats struct {
	Rider     string
	Created   int
	Delivered int
	OnTime    int
	Income    float64
	Delays    int
}

func (s RiderStats) OnTimeRate() float64 {
	if s.Delivered == 0 {
		return 0
	}
	return float64(s.OnTime) / float64(s.Delivered)
}

// TierBonus returns the volume/quality tier bonus.
func TierBonus(delivered int, rate float64) float64 {
	switch {
	case delivered >= TopTierMinDelivered && rate >= TopTierMinRate:
		return TopTierBonus
	case delivered >= MidTierMinDelivered && rate >= MidTierMinRate:
		return MidTierBonus
	default:
		return 0
	}
}

// Subsidy = round2(onTime*1.2 + tier + zeroDelay).
func Subsidy(s RiderStats) float64 {
	base := float64(s.OnTime) * OnTimeBonusPerOrder
	tier := TierBonus(s.Delivered, s.OnTimeRate())
	zero := 0.0
	if s.Delays == 0 && s.Delivered > 0 {
		zero = ZeroDelayBonus
	}
	return rounding.Money(base + tier + zero)
}

func Penalties(s RiderStats) float64 {
	return float64(s.Delays) * PenaltyPerDelay
}

// Aggregate groups in-window orders by rider. Orders without a rider are skipped.
// delays maps rider to the number of delay alerts on their in-window orders.
func Aggregate(orders []*models.Order, delays map[string]int) []RiderStats {
	byRider := make(map[string]*RiderStats)
	order := make([]string, 0)
	for _, o := range orders {
		if o.Rider == "" {
			continue
		}
		st, ok := byRider[o.Rider]
		if !ok {
			st = &RiderStats{Rider: o.Rider}
			byRider[o.Rider] = st
			order = append(order, o.Rider)
		}
		st.Created++
		if o.IsDelivered() {
			st.Income = rounding.Sum(st.Income, o.Fee)
			st.Delivered++
			if o.IsOnTime() {
				st.OnTime++
			}
		}
	}
	sort.Strings(order)

	out := make([]RiderStats, 0, len(order))
	for _, name := range order {
		st := byRider[name]
		st.Delays = delays[name]
		out = append(out, *st)
	}
	return out
}

// Compute builds settlement rows for the window. Orders created outside it
// are ignored. GeneratedTS is the window end.
func Compute(orders []*models.Order, delays map[string]int, w models.Window) []*models.Settlement {
	inWindow := make([]*models.Order, 0, len(orders))
	for _, o := range orders {
		if w.Contains(o.CreatedTS) {
			inWindow = append(inWindow, o)
		}
	}
	stats := Aggregate(inWindow, delays)
	out := make([]*models.Settlement, 0, len(stats))
	for _, s := range stats {
		subsidy := Subsidy(s)
		penalties := Penalties(s)
		out = append(out, &models.Settlement{
			Rider:       s.Rider,
			PeriodStart: w.Start,
			PeriodEnd:   w.End,
			Orders:      s.Created,
			TotalIncome: s.Income,
			Subsidy:     subsidy,
			Penalties:   penalties,
			NetIncome:   rounding.Sum(s.Income, subsidy, -penalties),
			GeneratedTS: w.End,
		})
	}
	return out
}
