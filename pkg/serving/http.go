package serving

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"flightsync/pkg/config"
	"flightsync/pkg/timenorm"
	"flightsync/pkg/types"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// maxWindowHours bounds the hours parameter.
const maxWindowHours = 48

// Row is one leg in the HTTP response. Times are RFC 3339 UTC.
type Row struct {
	Direction    string     `json:"direction"`
	FlightNumber string     `json:"flight_number"`
	Callsign     string     `json:"callsign"`
	Airline      string     `json:"airline"`
	AircraftReg  string     `json:"aircraft_reg"`
	AircraftType string     `json:"aircraft_type"`
	DepCode      string     `json:"dep_code"`
	ArrCode      string     `json:"arr_code"`
	DisplayArr   string     `json:"display_arr_code"`
	ScheduledDep *time.Time `json:"scheduled_departure_utc"`
	EstimatedDep *time.Time `json:"estimated_departure_utc"`
	ActualDep    *time.Time `json:"actual_departure_utc"`
	ScheduledArr *time.Time `json:"scheduled_arrival_utc"`
	EstimatedArr *time.Time `json:"estimated_arrival_utc"`
	ActualArr    *time.Time `json:"actual_arrival_utc"`
	DelayMinutes *int       `json:"delay_minutes"`
	Status       string     `json:"status"`
	StatusOrigin string     `json:"status_origin"`
	Codeshares   []string   `json:"codeshares"`
	IsCodeshare  bool       `json:"is_codeshare"`
	Ephemeral    bool       `json:"ephemeral"`
	Source       string     `json:"source"`
	Badge        string     `json:"badge"`
}

type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

type Response struct {
	OK     bool     `json:"ok"`
	Window *Window  `json:"window,omitempty"`
	Count  int      `json:"count"`
	Errors []string `json:"errors"`
	Rows   []Row    `json:"rows"`
}

// Handler serves the flight board API.
type Handler struct {
	svc         *Service
	cfg         *config.Config
	zones       *timenorm.Zones
	windowHours int
}

func NewHandler(svc *Service, cfg *config.Config, zones *timenorm.Zones) *Handler {
	hours := cfg.Serve.WindowHours
	if hours <= 0 {
		hours = 12
	}
	return &Handler{svc: svc, cfg: cfg, zones: zones, windowHours: hours}
}

// NewServer returns an echo instance with the API routes and tracing
// middleware installed.
func NewServer(h *Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echo.WrapMiddleware(otelhttp.NewMiddleware("flightsync-serve")))
	h.Register(e)
	return e
}

// Register mounts the routes on e.
func (h *Handler) Register(e *echo.Echo) {
	api := e.Group("/api/v1")
	api.GET("/flights", h.GetFlights)
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]bool{"ok": true})
	})
}

func fail(c echo.Context, code int, msg string) error {
	return c.JSON(code, Response{OK: false, Errors: []string{msg}, Rows: []Row{}})
}

// GetFlights handles GET /api/v1/flights?airport=&type=&start=&hours=&status=
// where type is arrival (default), departure or both.
func (h *Handler) GetFlights(c echo.Context) error {
	airport, ok := h.cfg.Airport(c.QueryParam("airport"))
	if !ok {
		return fail(c, http.StatusBadRequest, "unknown airport")
	}

	dir := types.DirectionArrival
	if raw := c.QueryParam("type"); raw != "" {
		if dir, ok = parseType(raw); !ok {
			return fail(c, http.StatusBadRequest, "type must be arrival, departure or both")
		}
	}

	hours := h.windowHours
	if raw := c.QueryParam("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxWindowHours {
			return fail(c, http.StatusBadRequest, "hours must be between 1 and 48")
		}
		hours = n
	}

	loc := h.zones.Lookup(airport.IATA)
	if loc == nil {
		loc = time.UTC
	}
	from := h.svc.opts.Clock.Now().Add(-time.Hour)
	if raw := strings.TrimSpace(c.QueryParam("start")); raw != "" {
		t := timenorm.ToUTC(raw, loc)
		if t == nil {
			return fail(c, http.StatusBadRequest, "start is not a recognizable time")
		}
		from = *t
	}

	res, err := h.svc.Query(c.Request().Context(), Query{
		Airport:   airport.IATA,
		Direction: dir,
		From:      from,
		To:        from.Add(time.Duration(hours) * time.Hour),
		Statuses:  ParseStatuses(c.QueryParam("status")),
	})
	if err != nil {
		if errors.Is(err, ErrInvalidQuery) {
			return fail(c, http.StatusBadRequest, err.Error())
		}
		slog.Error("Flight query failed", "airport", airport.IATA, "direction", dir, "error", err)
		return fail(c, http.StatusInternalServerError, "query failed")
	}

	rows := make([]Row, 0, len(res.Rows))
	for i := range res.Rows {
		rows = append(rows, toRow(&res.Rows[i]))
	}
	errs := res.Errors
	if errs == nil {
		errs = []string{}
	}
	return c.JSON(http.StatusOK, Response{
		OK:     true,
		Window: &Window{From: res.From, To: res.To},
		Count:  len(rows),
		Errors: errs,
		Rows:   rows,
	})
}

func parseType(raw string) (types.Direction, bool) {
	if strings.EqualFold(strings.TrimSpace(raw), string(types.DirectionBoth)) {
		return types.DirectionBoth, true
	}
	return types.ParseDirection(raw)
}

func toRow(s *types.ServedLeg) Row {
	codeshares := s.Codeshares
	if codeshares == nil {
		codeshares = []string{}
	}
	return Row{
		Direction:    string(s.Direction),
		FlightNumber: s.FlightNumber,
		Callsign:     s.Callsign,
		Airline:      s.AirlineName,
		AircraftReg:  s.AircraftReg,
		AircraftType: s.AircraftType,
		DepCode:      s.DepCode,
		ArrCode:      s.ArrCode,
		DisplayArr:   s.DisplayArrCode,
		ScheduledDep: s.ScheduledDep,
		EstimatedDep: s.EstimatedDep,
		ActualDep:    s.ActualDep,
		ScheduledArr: s.ScheduledArr,
		EstimatedArr: s.EstimatedArr,
		ActualArr:    s.ActualArr,
		DelayMinutes: s.DelayMinutes,
		Status:       string(s.Status),
		StatusOrigin: string(s.StatusOrigin),
		Codeshares:   codeshares,
		IsCodeshare:  s.IsCodeshare,
		Ephemeral:    s.Ephemeral,
		Source:       s.Source,
		Badge:        s.Badge,
	}
}
