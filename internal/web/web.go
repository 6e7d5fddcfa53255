// Package web serves the calendar UI and the JSON/ICS APIs on top of the
// lunar calculation core.
package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"mooncal/internal/battery"
	"mooncal/internal/config"
	"mooncal/internal/icsfeed"
	applog "mooncal/internal/log"
	"mooncal/internal/lunar"
	"mooncal/internal/overlay"
)

// Server provides the HTTP endpoints for the calendar UI, the phase API,
// the ICS feed and battery status.
type Server struct {
	cfg   *config.Config
	debug bool
	mux   *http.ServeMux

	// Month responses are cached briefly so the UI and the capture
	// pipeline don't recompute overlays on every request.
	eventsMu    sync.RWMutex
	eventsCache map[string]*eventsCacheEntry

	batteryMu    sync.RWMutex
	batteryCache *batteryCacheEntry
}

//go:embed all:static
var embeddedStatic embed.FS

// NewServer constructs a Server for the given config. debug switches cache
// and preview paths to the working directory.
func NewServer(cfg *config.Config, debug bool) *Server {
	s := &Server{
		cfg:         cfg,
		debug:       debug,
		mux:         http.NewServeMux(),
		eventsCache: make(map[string]*eventsCacheEntry),
	}
	s.registerRoutes()
	return s
}

// Handler returns the http.Handler, wrapped with basic auth if configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		applog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// Start runs the HTTP server until ctx is canceled, then shuts down
// gracefully.
func Start(ctx context.Context, cfg *config.Config, debug bool) error {
	s := NewServer(cfg, debug)
	srv := &http.Server{Addr: cfg.Listen, Handler: s.Handler()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	applog.Info("starting HTTP server", "listen", "http://"+cfg.Listen, "debug", debug)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware protects everything except /health.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="mooncal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/phase", s.handlePhase)
	s.mux.HandleFunc("/api/events", s.handleEvents)
	s.mux.HandleFunc("/moon.ics", s.handleFeed)
	s.mux.HandleFunc("/api/battery", s.handleBattery)
	s.mux.HandleFunc("/preview.png", s.handlePreview)
	s.mux.Handle("/", s.staticFileServer())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// phaseResponse is the JSON shape for /api/phase.
type phaseResponse struct {
	Date             time.Time `json:"date"`
	Phase            float64   `json:"phase"`
	Name             string    `json:"name"`
	Illumination     float64   `json:"illumination"`
	AgeDays          float64   `json:"age_days"`
	Waxing           bool      `json:"waxing"`
	NextNewMoon      time.Time `json:"next_new_moon"`
	NextFullMoon     time.Time `json:"next_full_moon"`
	DaysToNewMoon    int       `json:"days_to_new_moon"`
	DaysToFullMoon   int       `json:"days_to_full_moon"`
	NewMoonRelative  string    `json:"new_moon_relative"`
	FullMoonRelative string    `json:"full_moon_relative"`
}

// handlePhase returns the full phase breakdown for one date.
//
// GET /api/phase?date=2024-01-15T12:00:00Z
//
// date accepts RFC3339 or plain YYYY-MM-DD; it defaults to now in the
// configured display timezone.
func (s *Server) handlePhase(w http.ResponseWriter, r *http.Request) {
	loc := s.displayLocation()

	date := time.Now().In(loc)
	if q := r.URL.Query().Get("date"); q != "" {
		parsed, err := parseDateParam(q, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date parameter")
			return
		}
		date = parsed
	}

	info, err := lunar.Info(date)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	nextNew, err := lunar.NextNewMoon(date)
	if err != nil {
		applog.Error("next new moon search failed", err, "date", date.Format(time.RFC3339))
		writeError(w, http.StatusInternalServerError, "phase search failed")
		return
	}
	nextFull, err := lunar.NextFullMoon(date)
	if err != nil {
		applog.Error("next full moon search failed", err, "date", date.Format(time.RFC3339))
		writeError(w, http.StatusInternalServerError, "phase search failed")
		return
	}

	daysToNew, err := lunar.DaysBetween(date, nextNew)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "day arithmetic failed")
		return
	}
	daysToFull, err := lunar.DaysBetween(date, nextFull)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "day arithmetic failed")
		return
	}

	writeJSON(w, http.StatusOK, phaseResponse{
		Date:             date,
		Phase:            info.Phase,
		Name:             info.Name,
		Illumination:     info.Illumination,
		AgeDays:          info.AgeDays,
		Waxing:           info.Waxing,
		NextNewMoon:      nextNew,
		NextFullMoon:     nextFull,
		DaysToNewMoon:    daysToNew,
		DaysToFullMoon:   daysToFull,
		NewMoonRelative:  lunar.FormatRelativeDays(daysToNew),
		FullMoonRelative: lunar.FormatRelativeDays(daysToFull),
	})
}

// phaseDayDTO is the per-day cell of the calendar grid.
type phaseDayDTO struct {
	Date         string  `json:"date"` // YYYY-MM-DD in display timezone
	Phase        float64 `json:"phase"`
	Name         string  `json:"name"`
	Illumination float64 `json:"illumination"`
	Marker       string  `json:"marker,omitempty"`
}

// occurrenceDTO is a JSON-friendly view of overlay occurrences.
type occurrenceDTO struct {
	SourceID    string    `json:"source_id"`
	UID         string    `json:"uid"`
	InstanceKey string    `json:"instance_key"`
	Summary     string    `json:"summary"`
	Location    string    `json:"location"`
	AllDay      bool      `json:"all_day"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// eventsResponse is the JSON shape for /api/events.
type eventsResponse struct {
	Year            int             `json:"year"`
	Month           int             `json:"month"`
	DisplayTimeZone string          `json:"display_timezone"`
	WeekStart       string          `json:"week_start"`
	Days            []phaseDayDTO   `json:"days"`
	Occurrences     []occurrenceDTO `json:"occurrences"`
}

type eventsCacheEntry struct {
	resp      eventsResponse
	updatedAt time.Time
}

type batteryCacheEntry struct {
	status    battery.Status
	updatedAt time.Time
}

type batteryResponse struct {
	Percent   int `json:"percent"`
	VoltageMv int `json:"voltage_mv"`
}

// handleEvents returns the calendar grid data for one month: per-day phase
// values with event markers, plus expanded overlay occurrences.
//
// GET /api/events?year=2024&month=1 (defaults to the current month)
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	loc := s.displayLocation()

	now := time.Now().In(loc)
	q := r.URL.Query()
	year := parseIntDefault(q.Get("year"), now.Year())
	month := parseIntDefault(q.Get("month"), int(now.Month()))
	if month < 1 || month > 12 {
		writeError(w, http.StatusBadRequest, "month outside [1,12]")
		return
	}

	const cacheTTL = 30 * time.Second
	key := fmt.Sprintf("%04d-%02d", year, month)

	s.eventsMu.RLock()
	entry := s.eventsCache[key]
	s.eventsMu.RUnlock()
	if entry != nil && time.Since(entry.updatedAt) < cacheTTL {
		writeJSON(w, http.StatusOK, entry.resp)
		return
	}

	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, loc)
	end := start.AddDate(0, 1, -1)

	days, err := s.buildDays(start, end)
	if err != nil {
		applog.Error("phase grid build failed", err, "year", year, "month", month)
		writeError(w, http.StatusInternalServerError, "failed to compute phase grid")
		return
	}

	occurrences := s.fetchOverlays(ctx, start, start.AddDate(0, 1, 0), loc)

	resp := eventsResponse{
		Year:            year,
		Month:           month,
		DisplayTimeZone: loc.String(),
		WeekStart:       s.cfg.WeekStart,
		Days:            days,
		Occurrences:     occurrences,
	}

	s.eventsMu.Lock()
	s.eventsCache[key] = &eventsCacheEntry{resp: resp, updatedAt: time.Now()}
	s.eventsMu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

// buildDays computes the per-day phase values and event markers for the
// inclusive day range [start,end].
func (s *Server) buildDays(start, end time.Time) ([]phaseDayDTO, error) {
	events, err := lunar.PhaseEvents(start, end)
	if err != nil {
		return nil, err
	}
	markers := make(map[string]string, len(events))
	for _, ev := range events {
		markers[ev.Time.Format("2006-01-02")] = string(ev.Kind)
	}

	var days []phaseDayDTO
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		info, err := lunar.Info(day)
		if err != nil {
			return nil, err
		}
		date := day.Format("2006-01-02")
		days = append(days, phaseDayDTO{
			Date:         date,
			Phase:        info.Phase,
			Name:         info.Name,
			Illumination: info.Illumination,
			Marker:       markers[date],
		})
	}
	return days, nil
}

// fetchOverlays expands the configured ICS subscriptions for the window.
// Overlay failures degrade to an empty list; the moon calendar must render
// even when a subscription endpoint is down.
func (s *Server) fetchOverlays(ctx context.Context, start, end time.Time, loc *time.Location) []occurrenceDTO {
	sources := make([]overlay.Source, 0, len(s.cfg.Overlays))
	for _, o := range s.cfg.Overlays {
		if o.URL == "" {
			continue
		}
		id := o.ID
		if id == "" {
			id = o.Name
		}
		if id == "" {
			id = o.URL
		}
		sources = append(sources, overlay.Source{ID: id, URL: o.URL})
	}
	if len(sources) == 0 {
		return []occurrenceDTO{}
	}

	cacheDir := "/var/lib/mooncal/overlay-cache"
	if s.debug {
		cacheDir = "./cache/overlay-cache"
	}
	client := overlay.NewClient(cacheDir)

	feeds, errs := client.FetchAll(ctx, sources)
	if len(errs) > 0 {
		applog.Warn("overlay fetches failed", "error_count", len(errs))
	}

	occs, err := overlay.Expand(feeds, overlay.Window{Start: start, End: end, Location: loc})
	if err != nil {
		applog.Error("overlay expand failed", err)
		return []occurrenceDTO{}
	}

	dtos := make([]occurrenceDTO, 0, len(occs))
	for _, occ := range occs {
		dtos = append(dtos, occurrenceDTO(occ))
	}
	return dtos
}

// handleFeed serves the subscribe-able ICS feed of upcoming phase events.
//
// GET /moon.ics?months=3 (default from config months_ahead)
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	loc := s.displayLocation()

	months := parseIntDefault(r.URL.Query().Get("months"), s.cfg.MonthsAhead)
	if months < 1 {
		months = s.cfg.MonthsAhead
	}

	now := time.Now().In(loc)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, months, 0)

	events, err := lunar.PhaseEvents(start, end)
	if err != nil {
		applog.Error("feed phase events failed", err)
		writeError(w, http.StatusInternalServerError, "failed to compute phase events")
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="moon.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(icsfeed.Build(events, now)))
}

// handleBattery exposes the battery gauge with a short TTL cache so the UI
// polling doesn't hammer the I2C bus.
func (s *Server) handleBattery(w http.ResponseWriter, r *http.Request) {
	const batteryCacheTTL = 30 * time.Second

	s.batteryMu.RLock()
	bc := s.batteryCache
	s.batteryMu.RUnlock()
	if bc != nil && time.Since(bc.updatedAt) < batteryCacheTTL {
		writeJSON(w, http.StatusOK, batteryResponse{Percent: bc.status.Percent, VoltageMv: bc.status.VoltageMv})
		return
	}

	status, err := battery.DefaultReader().Read(r.Context())
	if err != nil {
		applog.Error("battery read failed", err)
		writeError(w, http.StatusInternalServerError, "failed to read battery")
		return
	}

	s.batteryMu.Lock()
	s.batteryCache = &batteryCacheEntry{status: status, updatedAt: time.Now()}
	s.batteryMu.Unlock()

	writeJSON(w, http.StatusOK, batteryResponse{Percent: status.Percent, VoltageMv: status.VoltageMv})
}

// handlePreview serves the last captured panel image. Paths match the
// capture pipeline in cmd/mooncal.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	previewPath := "/var/lib/mooncal/preview.png"
	if s.debug {
		previewPath = "./cache/preview.png"
	}
	http.ServeFile(w, r, previewPath)
}

// staticFileServer serves the embedded calendar viewer. API paths never
// fall through to it.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		applog.Error("embedded static filesystem unavailable", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static UI not available", http.StatusServiceUnavailable)
		})
	}

	fileServer := http.FileServer(http.FS(sub))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api" || strings.HasPrefix(r.URL.Path, "/api/") {
			http.NotFound(w, r)
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}

func (s *Server) displayLocation() *time.Location {
	if s.cfg.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(s.cfg.Timezone)
	if err != nil {
		applog.Warn("failed to load timezone; falling back to local", "name", s.cfg.Timezone)
		return time.Local
	}
	return loc
}

func parseDateParam(v string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", v, loc)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		applog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
