package api

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"agendei/internal/agenda"
	"agendei/internal/config"
	"agendei/internal/metrics"
	"agendei/internal/models"
	"agendei/internal/service"
	"agendei/internal/tracing"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// SheetsMirror rewrites the spreadsheet copy of a business agenda.
type SheetsMirror interface {
	ReplaceAppointmentsSheet(ctx context.Context, appointments []*models.Appointment) error
}

// Services is everything the HTTP surface calls into. Mirror and Pinger are
// optional.
type Services struct {
	Booking      *service.BookingService
	Businesses   *service.BusinessService
	Catalog      *service.CatalogService
	Appointments *service.AppointmentService
	Sessions     *service.SessionService
	Agenda       agenda.Subscriber
	Mirror       SheetsMirror
	Pinger       Pinger
}

// HTTPServer exposes the public booking flow and the owner dashboard.
type HTTPServer struct {
	cfg     *config.Config
	svc     Services
	server  *http.Server
	auth    *HTTPAuth
	handler http.Handler
	log     zerolog.Logger
}

func NewHTTPServer(cfg *config.Config, svc Services, logger *zerolog.Logger) *HTTPServer {
	mux := http.NewServeMux()
	srv := &HTTPServer{
		cfg:  cfg,
		svc:  svc,
		auth: NewHTTPAuth(cfg.API),
		log:  componentLogger(logger, "http"),
	}

	mux.HandleFunc("GET /healthz", srv.handleHealthz)
	mux.HandleFunc("GET /readyz", srv.handleReadyz)

	srv.public(mux, "GET /api/v1/book/{slug}", srv.handleLanding)
	srv.public(mux, "GET /api/v1/book/{slug}/slots", srv.handleSlots)
	srv.public(mux, "POST /api/v1/book/{slug}/sessions", srv.handleStartSession)
	srv.public(mux, "GET /api/v1/book/{slug}/sessions/{id}", srv.handleGetSession)
	srv.public(mux, "POST /api/v1/book/{slug}/sessions/{id}/service", srv.handleChooseService)
	srv.public(mux, "POST /api/v1/book/{slug}/sessions/{id}/date", srv.handleChooseDate)
	srv.public(mux, "POST /api/v1/book/{slug}/sessions/{id}/time", srv.handleChooseTime)
	srv.public(mux, "POST /api/v1/book/{slug}/sessions/{id}/advance", srv.handleAdvance)
	srv.public(mux, "POST /api/v1/book/{slug}/sessions/{id}/back", srv.handleBack)
	srv.public(mux, "POST /api/v1/book/{slug}/sessions/{id}/details", srv.handleDetails)

	srv.dashboard(mux, "GET /api/v1/dashboard/profile", "", srv.handleGetProfile)
	srv.dashboard(mux, "PUT /api/v1/dashboard/profile", config.PermWriteProfile, srv.handleUpdateProfile)
	srv.dashboard(mux, "GET /api/v1/dashboard/services", config.PermReadAgenda, srv.handleListServices)
	srv.dashboard(mux, "POST /api/v1/dashboard/services", config.PermWriteCatalog, srv.handleCreateService)
	srv.dashboard(mux, "PUT /api/v1/dashboard/services/{id}", config.PermWriteCatalog, srv.handleUpdateService)
	srv.dashboard(mux, "DELETE /api/v1/dashboard/services/{id}", config.PermWriteCatalog, srv.handleDeactivateService)
	srv.dashboard(mux, "GET /api/v1/dashboard/clients", config.PermReadAgenda, srv.handleListClients)
	srv.dashboard(mux, "POST /api/v1/dashboard/clients", config.PermWriteCatalog, srv.handleCreateClient)
	srv.dashboard(mux, "GET /api/v1/dashboard/appointments", config.PermReadAgenda, srv.handleListAppointments)
	srv.dashboard(mux, "POST /api/v1/dashboard/appointments", config.PermWriteAgenda, srv.handleCreateAppointment)
	srv.dashboard(mux, "PATCH /api/v1/dashboard/appointments/{id}/status", config.PermWriteAgenda, srv.handleUpdateStatus)
	srv.dashboard(mux, "GET /api/v1/dashboard/appointments/export", config.PermReadAgenda, srv.handleExport)
	srv.dashboard(mux, "POST /api/v1/dashboard/appointments/resync", config.PermWriteAgenda, srv.handleResync)
	srv.dashboard(mux, "GET /api/v1/dashboard/agenda/ws", config.PermReadAgenda, srv.handleAgendaWS)

	srv.handler = tracing.Handler(srv.loggingMiddleware(srv.corsMiddleware(mux)), "agendei.http")

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.HTTP.Port),
		Handler:           srv.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.API.HTTP.ReadTimeout,
		WriteTimeout:      cfg.API.HTTP.WriteTimeout,
	}

	return srv
}

func (s *HTTPServer) Handler() http.Handler {
	return s.handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.svc.Pinger != nil {
		if err := s.svc.Pinger.Ping(r.Context()); err != nil {
			s.log.Warn().Err(err).Msg("Readiness check failed")
			writeError(w, http.StatusServiceUnavailable, "repository unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// public applies the per-visitor limit kept in the session repository.
func (s *HTTPServer) public(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	limit := s.cfg.Booking.RateLimitRequests
	window := s.cfg.Booking.RateLimitWindow

	mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if limit > 0 && s.svc.Sessions != nil {
			allowed, err := s.svc.Sessions.Allow(r.Context(), "public:"+remoteHost(r), limit, window)
			if err != nil {
				s.log.Warn().Err(err).Msg("Public rate limit check failed")
			} else if !allowed {
				writeError(w, http.StatusTooManyRequests, errRateLimited.Error())
				return
			}
		}
		h(w, r)
	}))
}

func (s *HTTPServer) dashboard(mux *http.ServeMux, pattern, permission string, h http.HandlerFunc) {
	mux.Handle(pattern, s.auth.Require(permission, h))
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDMetadataKey))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDMetadataKey, requestID)

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		dur := time.Since(start)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveHTTP(route, strconv.Itoa(recorder.status), dur)

		s.log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", dur).
			Msg("HTTP request")
	})
}

func (s *HTTPServer) corsMiddleware(next http.Handler) http.Handler {
	origins := s.cfg.API.CORSOrigins
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (slices.Contains(origins, "*") || slices.Contains(origins, origin)) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", strings.Join([]string{
				"Content-Type", s.auth.keys.apiKeyHeader, s.auth.keys.extraHeader, requestIDMetadataKey,
			}, ", "))
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// HTTPAuth provides API-key auth and per-key rate limiting for the dashboard.
type HTTPAuth struct {
	keys    *keyring
	limiter *rateLimiter
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	return &HTTPAuth{
		keys:    newKeyring(cfg.Auth),
		limiter: newRateLimiter(cfg.RateLimit),
	}
}

// Require authenticates the request, checks permission and stores the key
// in the request context.
func (a *HTTPAuth) Require(permission string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := strings.TrimSpace(r.Header.Get(a.keys.apiKeyHeader))
		extra := strings.TrimSpace(r.Header.Get(a.keys.extraHeader))
		// Browsers cannot set headers on a websocket handshake.
		if apiKey == "" && websocket.IsWebSocketUpgrade(r) {
			apiKey = strings.TrimSpace(r.URL.Query().Get("api_key"))
			extra = strings.TrimSpace(r.URL.Query().Get("api_extra"))
		}

		client, err := a.keys.authenticate(apiKey, extra)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		if err := authorize(client, permission); err != nil {
			writeError(w, http.StatusForbidden, err.Error())
			return
		}
		if !a.limiter.allow(client.Key) {
			writeError(w, http.StatusTooManyRequests, errRateLimited.Error())
			return
		}

		next.ServeHTTP(w, r.WithContext(withClient(r.Context(), client)))
	})
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack is needed by the agenda websocket upgrade.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
