package dashboard_api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/BearBump/DispatchDesk/internal/rounding"
	"github.com/BearBump/DispatchDesk/internal/services/generator"
)

const defaultTracksLimit = 50

func (a *DashboardAPI) getHealth(w http.ResponseWriter, r *http.Request) {
	h, err := a.Dispatch.Health(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (a *DashboardAPI) getOverview(w http.ResponseWriter, r *http.Request) {
	ov, err := a.Dispatch.Overview(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	setPartial(w, ov.Degraded)
	writeJSON(w, http.StatusOK, ov)
}

func (a *DashboardAPI) getOrders(w http.ResponseWriter, r *http.Request) {
	rows, err := a.Dispatch.ListOrders(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *DashboardAPI) getAnalytics(w http.ResponseWriter, r *http.Request) {
	win, err := a.window(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := a.Dispatch.Analytics(r.Context(), win)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *DashboardAPI) getRiders(w http.ResponseWriter, r *http.Request) {
	res, err := a.Dispatch.ListRiders(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	setPartial(w, res.Degraded)
	writeJSON(w, http.StatusOK, res.Riders)
}

type alertView struct {
	OrderID string  `json:"orderId"`
	Rider   string  `json:"rider"`
	Type    string  `json:"type"`
	Lng     float64 `json:"lng"`
	Lat     float64 `json:"lat"`
}

// getAlerts пересчитывает алерты и отдаёт последние. Если пересчёт упал,
// отдаём сохранённые с пометкой в заголовке.
func (a *DashboardAPI) getAlerts(w http.ResponseWriter, r *http.Request) {
	var degraded []string
	if _, err := a.Alerts.Recompute(r.Context(), a.now()); err != nil {
		slog.Warn("alerts recompute", "error", err.Error())
		degraded = append(degraded, "recompute")
	}
	list, err := a.Alerts.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]alertView, 0, len(list))
	for _, al := range list {
		out = append(out, alertView{OrderID: al.OrderID, Rider: al.Rider, Type: al.Kind, Lng: al.Lng, Lat: al.Lat})
	}
	setPartial(w, degraded)
	writeJSON(w, http.StatusOK, out)
}

func (a *DashboardAPI) getSettlements(w http.ResponseWriter, r *http.Request) {
	win, err := a.window(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rep, err := a.Settlements.Recompute(r.Context(), win)
	if err != nil {
		writeError(w, r, err)
		return
	}
	setPartial(w, rep.Degraded)
	writeJSON(w, http.StatusOK, rep.Rows)
}

func (a *DashboardAPI) getPerformance(w http.ResponseWriter, r *http.Request) {
	win, err := a.window(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rep, err := a.Performance.Report(r.Context(), win)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rep.PlaceholderRates {
		w.Header().Set(PlaceholderRatesHeader, "accept_rate,positive_rate")
	}
	setPartial(w, rep.Degraded)
	writeJSON(w, http.StatusOK, rep.Rows)
}

func (a *DashboardAPI) getMileage(w http.ResponseWriter, r *http.Request) {
	win, err := a.window(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rep, err := a.Mileage.Report(r.Context(), win)
	if err != nil {
		writeError(w, r, err)
		return
	}
	setPartial(w, rep.Degraded)
	writeJSON(w, http.StatusOK, rep)
}

type trackView struct {
	Name       string  `json:"name"`
	Phone      string  `json:"phone"`
	StartTS    int64   `json:"start_ts"`
	EndTS      int64   `json:"end_ts"`
	DistanceKm float64 `json:"distance_km"`
}

func (a *DashboardAPI) getTracks(w http.ResponseWriter, r *http.Request) {
	limit, err := queryIntOr(r, "limit", defaultTracksLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	tracks, err := a.Telemetry.RecentTracks(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]trackView, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, trackView{
			Name:       t.Rider,
			Phone:      t.Phone,
			StartTS:    t.StartMs,
			EndTS:      t.EndMs,
			DistanceKm: rounding.Round(t.DistanceM/1000, 3),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *DashboardAPI) getOrderEvents(w http.ResponseWriter, r *http.Request) {
	evs, err := a.Dispatch.OrderEvents(r.Context(), r.URL.Query().Get("order_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, evs)
}

func (a *DashboardAPI) getSampleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := a.Dispatch.SampleStatus(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"orders": st.Orders,
		"riders": st.Riders,
		"alerts": st.Alerts,
	})
}

type generatorStatus struct {
	Enabled  bool `json:"enabled"`
	Rate     int  `json:"rate"`
	Hours    int  `json:"hours"`
	Interval int  `json:"interval"`
	AI       bool `json:"ai"`
}

func toGeneratorStatus(cfg generator.Config) generatorStatus {
	return generatorStatus{
		Enabled:  cfg.Enabled,
		Rate:     cfg.Rate,
		Hours:    cfg.Hours,
		Interval: int(cfg.Interval / time.Minute),
		AI:       cfg.TimeProfile,
	}
}

func (a *DashboardAPI) getGeneratorStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"status": toGeneratorStatus(a.Generator.Config()),
		"stats":  a.Generator.Stats(),
	})
}
