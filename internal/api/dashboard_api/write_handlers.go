package dashboard_api

import (
	"net/http"

	"github.com/BearBump/DispatchDesk/internal/models"
	"github.com/BearBump/DispatchDesk/internal/services/dispatch"
	"github.com/BearBump/DispatchDesk/internal/services/generator"
	"github.com/pkg/errors"
)

func (a *DashboardAPI) postTrackPoint(w http.ResponseWriter, r *http.Request) {
	var req trackPointRequest
	if err := a.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p := &models.LivePoint{
		Rider: req.Name,
		Point: models.Point{Lng: *req.Lng, Lat: *req.Lat},
		TSMs:  req.TS,
	}
	if err := a.Telemetry.ReportPoint(r.Context(), p, req.Phone); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w)
}

func (a *DashboardAPI) postTrackSubmit(w http.ResponseWriter, r *http.Request) {
	var req trackSubmitRequest
	if err := a.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.Telemetry.SubmitTrack(r.Context(), req.toModel()); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w)
}

func (a *DashboardAPI) postOrderUpsert(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := a.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.Dispatch.UpsertOrder(r.Context(), req.toModel()); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w)
}

func (a *DashboardAPI) postOrdersImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := a.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	orders := make([]*models.Order, 0, len(req.Orders))
	for _, o := range req.Orders {
		orders = append(orders, o.toModel())
	}
	n, err := a.Dispatch.ImportOrders(r.Context(), orders)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "imported": n})
}

func (a *DashboardAPI) postOrderEvent(w http.ResponseWriter, r *http.Request) {
	var req orderEventRequest
	if err := a.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ev := &models.OrderEvent{OrderID: req.OrderID, TS: req.TS, Type: req.Type, Meta: req.Meta}
	if err := a.Dispatch.AddOrderEvent(r.Context(), ev); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w)
}

func (a *DashboardAPI) postAlertReport(w http.ResponseWriter, r *http.Request) {
	var req alertReportRequest
	if err := a.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.Alerts.Report(r.Context(), req.toModel()); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w)
}

// riderCredentials: GET берёт name/phone из query, POST из JSON.
func (a *DashboardAPI) riderCredentials(r *http.Request) (riderRequest, error) {
	if r.Method == http.MethodGet {
		q := r.URL.Query()
		return riderRequest{Name: q.Get("name"), Phone: q.Get("phone")}, nil
	}
	var req riderRequest
	err := a.decode(r, &req)
	return req, err
}

func (a *DashboardAPI) riderRegister(w http.ResponseWriter, r *http.Request) {
	req, err := a.riderCredentials(r)
	if err == nil {
		err = a.Dispatch.Register(r.Context(), req.Name, req.Phone)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w)
}

func (a *DashboardAPI) riderLogin(w http.ResponseWriter, r *http.Request) {
	req, err := a.riderCredentials(r)
	if err == nil {
		err = a.Dispatch.Login(r.Context(), req.Name, req.Phone)
	}
	switch {
	case err == nil:
		writeOK(w)
	case errors.Is(err, models.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, okResponse{OK: false})
	default:
		writeError(w, r, err)
	}
}

func (a *DashboardAPI) postRiderDelete(w http.ResponseWriter, r *http.Request) {
	var req riderRequest
	if err := a.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.Dispatch.DeleteRider(r.Context(), req.Name); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w)
}

func (a *DashboardAPI) postMileageDelete(w http.ResponseWriter, r *http.Request) {
	var req mileageDeleteRequest
	if err := a.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	var start, end *int64
	if req.Start != 0 {
		start = &req.Start
	}
	if req.End != 0 {
		end = &req.End
	}
	n, err := a.Telemetry.DeleteMileage(r.Context(), req.Rider, models.ResolveWindow(a.now(), start, end))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "deleted": n})
}

func (a *DashboardAPI) postMileageUpdate(w http.ResponseWriter, r *http.Request) {
	var req mileageUpdateRequest
	if err := a.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.Telemetry.SetDailyMileage(r.Context(), req.Rider, req.Date, req.Km); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w)
}

func (a *DashboardAPI) sampleGenerate(w http.ResponseWriter, r *http.Request) {
	count, err := queryIntOr(r, "count", dispatch.DefaultSampleSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	hours, err := queryIntOr(r, "hours", dispatch.DefaultSampleHrs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	n, err := a.Dispatch.SampleGenerate(r.Context(), count, hours)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "inserted": n})
}

func (a *DashboardAPI) sampleClear(w http.ResponseWriter, r *http.Request) {
	if err := a.Dispatch.SampleClear(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w)
}

func (a *DashboardAPI) postGeneratorStart(w http.ResponseWriter, r *http.Request) {
	var req generatorStartRequest
	if err := a.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p := generator.StartParams{
		Rate:            req.RatePerInterval,
		Hours:           req.HoursWindow,
		IntervalMinutes: req.IntervalMinutes,
		TimeProfile:     true,
	}
	if p.Rate == 0 {
		p.Rate = req.RatePerMinute
	}
	if p.Rate == 0 {
		p.Rate = 1
	}
	if p.Hours == 0 {
		p.Hours = 1
	}
	if p.IntervalMinutes == 0 {
		p.IntervalMinutes = 5
	}
	if req.AIProfile != nil {
		p.TimeProfile = *req.AIProfile
	}
	cfg := a.Generator.Start(p)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": toGeneratorStatus(cfg)})
}

func (a *DashboardAPI) postGeneratorStop(w http.ResponseWriter, r *http.Request) {
	a.Generator.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": map[string]bool{"enabled": false}})
}
