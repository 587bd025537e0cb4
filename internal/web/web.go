package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"whatson/internal/config"
	domainerrors "whatson/internal/errors"
	"whatson/internal/events"
	"whatson/internal/ics"
	appLog "whatson/internal/log"
	"whatson/internal/metrics"
	"whatson/internal/model"
)

const (
	msgLoadFailed = "Failed to load events. Please try again later."
	msgNoMatches  = "No events found matching your criteria."
)

// EventProvider supplies the normalized event list.
type EventProvider interface {
	GetEvents(ctx context.Context) ([]model.Event, error)
	Refresh(ctx context.Context) ([]model.Event, error)
	Invalidate(ctx context.Context)
}

// Server provides the HTTP API over grouped and filtered events.
type Server struct {
	cfg      *config.Config
	provider EventProvider
	router   *chi.Mux
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithClock overrides the time source used for the on-sale window.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMetrics serves m at /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, provider EventProvider, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		provider: provider,
		router:   chi.NewRouter(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)

	if len(s.cfg.AllowedOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}

	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		s.router.Use(s.basicAuthMiddleware)
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	if s.metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/events", s.handleEvents)
		r.Get("/events.ics", s.handleEventsICS)
		r.Get("/facets", s.handleFacets)
		r.Post("/refresh", s.handleRefresh)
	})
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials leave auth disabled.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
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
			w.Header().Set("WWW-Authenticate", `Basic realm="whatson", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// requestLogger logs one line per request through the app logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		appLog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// eventDTO is a grouped event with its display labels.
type eventDTO struct {
	model.GroupedEvent
	DateLabel string `json:"dateLabel"`
	TimeLabel string `json:"timeLabel"`
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Count   int        `json:"count"`
	Message string     `json:"message,omitempty"`
	Events  []eventDTO `json:"events"`
}

type facetDTO struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// facetsResponse is the JSON response shape for /api/facets.
type facetsResponse struct {
	Categories []facetDTO `json:"categories"`
	Months     []facetDTO `json:"months"`
}

type refreshResponse struct {
	Count       int       `json:"count"`
	RefreshedAt time.Time `json:"refreshedAt"`
}

// handleEvents returns grouped events passing the selection.
//
// GET /api/events?category=all&tag=&search=&month=all
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	loc := s.cfg.Location()
	selected, ok := s.selection(w, r, loc)
	if !ok {
		return
	}

	dtos := make([]eventDTO, 0, len(selected))
	for _, g := range selected {
		dtos = append(dtos, eventDTO{
			GroupedEvent: g,
			DateLabel:    events.FormatDates(g.Occurrences(), loc),
			TimeLabel:    events.FormatTime(g.Event, loc),
		})
	}

	resp := eventsResponse{Count: len(dtos), Events: dtos}
	if len(dtos) == 0 {
		resp.Message = msgNoMatches
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleEventsICS exports the same selection as /api/events.
func (s *Server) handleEventsICS(w http.ResponseWriter, r *http.Request) {
	loc := s.cfg.Location()
	selected, ok := s.selection(w, r, loc)
	if !ok {
		return
	}

	feed := ics.Export(selected, ics.ExportConfig{Location: loc, Now: s.now()})
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="events.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(feed))
}

// handleFacets lists the category and month choices over every grouped event,
// regardless of the current selection.
func (s *Server) handleFacets(w http.ResponseWriter, r *http.Request) {
	loc := s.cfg.Location()
	evs, err := s.provider.GetEvents(r.Context())
	if err != nil {
		writeFetchError(w, err)
		return
	}
	grouped := events.GroupIn(evs, loc)

	writeJSON(w, http.StatusOK, facetsResponse{
		Categories: toFacets(events.Categories(grouped)),
		Months:     toFacets(events.Months(grouped, loc)),
	})
}

// handleRefresh refetches the listings. On failure the cached list is dropped.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	evs, err := s.provider.Refresh(r.Context())
	if err != nil {
		// A forced refresh that fails must not leave the old list being served.
		s.provider.Invalidate(r.Context())
		writeFetchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{Count: len(evs), RefreshedAt: s.now().UTC()})
}

// selection loads, groups and filters events for the request's query. On
// failure it has already written the response.
func (s *Server) selection(w http.ResponseWriter, r *http.Request, loc *time.Location) ([]model.GroupedEvent, bool) {
	evs, err := s.provider.GetEvents(r.Context())
	if err != nil {
		writeFetchError(w, err)
		return nil, false
	}

	crit := criteriaFromQuery(r, loc)
	grouped := events.GroupIn(evs, loc)
	selected := events.FilterAt(grouped, crit, s.now())

	appLog.Debug("api events selection",
		"category", crit.Category,
		"tag", crit.Tag,
		"search", crit.SearchTerm,
		"month", crit.Month,
		"grouped", len(grouped),
		"selected", len(selected),
	)
	return selected, true
}

func criteriaFromQuery(r *http.Request, loc *time.Location) events.Criteria {
	q := r.URL.Query()
	crit := events.Criteria{
		Category:   q.Get("category"),
		Tag:        q.Get("tag"),
		SearchTerm: q.Get("search"),
		Month:      q.Get("month"),
		Location:   loc,
	}
	if crit.Category == "" {
		crit.Category = events.CategoryAll
	}
	if crit.Month == "" {
		crit.Month = events.MonthAll
	}
	return crit
}

func toFacets(values []string) []facetDTO {
	out := make([]facetDTO, 0, len(values))
	for _, v := range values {
		out = append(out, facetDTO{Value: v, Label: events.FacetLabel(v)})
	}
	return out
}

// writeFetchError logs the underlying failure and answers with the generic
// load failure message.
func writeFetchError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	var domainErr *domainerrors.Error
	if domainerrors.As(err, &domainErr) {
		status = domainErr.HTTPStatus()
	}
	appLog.Error("loading events failed", err, "status", status)
	writeError(w, status, msgLoadFailed)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
