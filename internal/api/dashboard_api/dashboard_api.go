package dashboard_api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/DispatchDesk/internal/models"
	"github.com/BearBump/DispatchDesk/internal/services/dispatch"
	"github.com/BearBump/DispatchDesk/internal/services/generator"
	"github.com/BearBump/DispatchDesk/internal/services/mileage"
	"github.com/BearBump/DispatchDesk/internal/services/performance"
	"github.com/BearBump/DispatchDesk/internal/services/settlement"
	"github.com/BearBump/DispatchDesk/internal/services/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	httpSwagger "github.com/swaggo/http-swagger"
)

const (
	// PartialResultHeader перечисляет через запятую секции, которые не удалось прочитать.
	PartialResultHeader = "X-Partial-Result"
	// PlaceholderRatesHeader помечает поля-заглушки в аналитике.
	PlaceholderRatesHeader = "X-Placeholder-Rates"
)

type Dispatch interface {
	Health(ctx context.Context) (*dispatch.Health, error)
	Overview(ctx context.Context) (*dispatch.Overview, error)
	ListOrders(ctx context.Context) ([]dispatch.OrderRow, error)
	Analytics(ctx context.Context, w models.Window) (*dispatch.Analytics, error)
	ListRiders(ctx context.Context) (*dispatch.RiderList, error)

	UpsertOrder(ctx context.Context, o *models.Order) error
	ImportOrders(ctx context.Context, orders []*models.Order) (int, error)
	AddOrderEvent(ctx context.Context, ev *models.OrderEvent) error
	OrderEvents(ctx context.Context, orderID string) ([]*models.OrderEvent, error)

	Register(ctx context.Context, name, phone string) error
	Login(ctx context.Context, name, phone string) error
	DeleteRider(ctx context.Context, name string) error

	SampleStatus(ctx context.Context) (*dispatch.SampleCounts, error)
	SampleGenerate(ctx context.Context, count, hours int) (int, error)
	SampleClear(ctx context.Context) error
}

type Alerts interface {
	Recompute(ctx context.Context, now time.Time) ([]*models.Alert, error)
	List(ctx context.Context) ([]*models.Alert, error)
	Report(ctx context.Context, a *models.Alert) error
}

type Settlements interface {
	Recompute(ctx context.Context, w models.Window) (*settlement.Report, error)
}

type Performance interface {
	Report(ctx context.Context, w models.Window) (*performance.Report, error)
}

type Mileage interface {
	Report(ctx context.Context, w models.Window) (*mileage.Report, error)
}

type Telemetry interface {
	ReportPoint(ctx context.Context, p *models.LivePoint, phone string) error
	SubmitTrack(ctx context.Context, t *models.Track) error
	DeleteMileage(ctx context.Context, rider string, w models.Window) (int64, error)
	SetDailyMileage(ctx context.Context, rider, date string, km float64) error
	RecentTracks(ctx context.Context, limit int) ([]*models.Track, error)
}

type Generator interface {
	Start(p generator.StartParams) generator.Config
	Stop() generator.Config
	Config() generator.Config
	Stats() generator.Stats
}

type Deps struct {
	Dispatch    Dispatch
	Alerts      Alerts
	Settlements Settlements
	Performance Performance
	Mileage     Mileage
	Telemetry   Telemetry
	Generator   Generator
}

type DashboardAPI struct {
	Deps
	validate    *validator.Validate
	now         func() time.Time
	swaggerPath string
}

func New(d Deps) *DashboardAPI {
	return &DashboardAPI{
		Deps:     d,
		validate: validator.New(),
		now:      time.Now,
	}
}

// WithSwagger отдаёт /swagger.json и /docs/*, если файл существует.
func (a *DashboardAPI) WithSwagger(path string) *DashboardAPI {
	a.swaggerPath = path
	return a
}

func (a *DashboardAPI) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors)

	r.Route("/api", func(r chi.Router) {
		r.Get("/healthz", a.getHealth)
		r.Get("/overview.json", a.getOverview)
		r.Get("/orders.json", a.getOrders)
		r.Get("/order-events.json", a.getOrderEvents)
		r.Get("/analytics.json", a.getAnalytics)
		r.Get("/riders.json", a.getRiders)
		r.Get("/alerts.json", a.getAlerts)
		r.Get("/settlements.json", a.getSettlements)
		r.Get("/performance.json", a.getPerformance)
		r.Get("/mileage.json", a.getMileage)
		r.Get("/tracks.json", a.getTracks)

		r.Get("/sample/status", a.getSampleStatus)
		for _, p := range []string{"/sample/generate", "/generate-orders"} {
			r.Get(p, a.sampleGenerate)
			r.Post(p, a.sampleGenerate)
		}
		r.Get("/sample/clear", a.sampleClear)
		r.Post("/sample/clear", a.sampleClear)

		r.Post("/track-point", a.postTrackPoint)
		r.Post("/tracks/submit", a.postTrackSubmit)
		r.Post("/order-upsert", a.postOrderUpsert)
		r.Post("/orders/import", a.postOrdersImport)
		r.Post("/order-event", a.postOrderEvent)
		r.Post("/alert-report", a.postAlertReport)

		r.Get("/rider-register", a.riderRegister)
		r.Post("/rider-register", a.riderRegister)
		r.Get("/rider-login", a.riderLogin)
		r.Post("/rider-login", a.riderLogin)
		r.Post("/rider-delete", a.postRiderDelete)

		r.Post("/mileage/delete-by-rider", a.postMileageDelete)
		r.Post("/mileage/update", a.postMileageUpdate)

		r.Post("/generator/start", a.postGeneratorStart)
		r.Post("/generator/stop", a.postGeneratorStop)
		r.Get("/generator/status", a.getGeneratorStatus)
	})

	if a.swaggerPath != "" {
		if fi, err := os.Stat(a.swaggerPath); err == nil {
			r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Cache-Control", "no-store")
				http.ServeFile(w, r, a.swaggerPath)
			})
			swaggerURL := fmt.Sprintf("/swagger.json?v=%d", fi.ModTime().Unix())
			r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL(swaggerURL)))
		} else {
			slog.Warn("swagger file not found, /docs disabled", "path", a.swaggerPath)
		}
	}
	return r
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

type okResponse struct {
	OK bool `json:"ok"`
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func writeOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// writeError мапит доменные ошибки в HTTP-коды.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrInvalidArgument):
		code = http.StatusBadRequest
	case errors.Is(err, models.ErrUnauthorized):
		code = http.StatusUnauthorized
	case errors.Is(err, models.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, telemetry.ErrRateLimited):
		code = http.StatusTooManyRequests
	}
	if code == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err.Error())
	}
	writeJSON(w, code, errorResponse{OK: false, Error: err.Error()})
}

func setPartial(w http.ResponseWriter, degraded []string) {
	if len(degraded) > 0 {
		w.Header().Set(PartialResultHeader, strings.Join(degraded, ","))
	}
}

// decode читает JSON-тело и прогоняет валидатор.
func (a *DashboardAPI) decode(r *http.Request, dst any) error {
	if r.Body != nil && r.ContentLength != 0 {
		err := json.NewDecoder(r.Body).Decode(dst)
		if err != nil && !errors.Is(err, io.EOF) {
			return models.Invalid("invalid request body: %v", err)
		}
	}
	if err := a.validate.Struct(dst); err != nil {
		return models.Invalid("validation failed: %v", err)
	}
	return nil
}

// queryInt: пустое значение и ноль считаются отсутствующими.
func queryInt(r *http.Request, key string) (*int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, models.Invalid("%s must be an integer", key)
	}
	if v == 0 {
		return nil, nil
	}
	return &v, nil
}

func queryIntOr(r *http.Request, key string, def int) (int, error) {
	v, err := queryInt(r, key)
	if err != nil || v == nil {
		return def, err
	}
	return int(*v), nil
}

func (a *DashboardAPI) window(r *http.Request) (models.Window, error) {
	start, err := queryInt(r, "start")
	if err != nil {
		return models.Window{}, err
	}
	end, err := queryInt(r, "end")
	if err != nil {
		return models.Window{}, err
	}
	return models.ResolveWindow(a.now(), start, end), nil
}
