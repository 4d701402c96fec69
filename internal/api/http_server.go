package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"tablebook/internal/config"
	"tablebook/internal/domain"
	"tablebook/internal/metrics"
	"tablebook/internal/models"
	"tablebook/internal/service"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

const internalErrorMessage = "Internal Server Error"

// CalendarSource builds a calendar handle from a caller's OAuth access token.
type CalendarSource func(accessToken string) (domain.Calendar, error)

// Deps is what the HTTP and gRPC surfaces share.
type Deps struct {
	Service   domain.BookingService
	Auth      *Authenticator
	Calendars CalendarSource
	// BookingLimiter caps commits per holder.
	BookingLimiter domain.RateLimiter
	BookingLimit   int
	BookingWindow  time.Duration
	Hub            *Hub
}

// HTTPServer exposes the booking API over JSON.
type HTTPServer struct {
	cfg     config.APIConfig
	deps    Deps
	limiter *rateLimiter
	server  *http.Server
	now     func() time.Time
	log     zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, deps Deps, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		cfg:     cfg,
		deps:    deps,
		limiter: newRateLimiter(cfg.RateLimit),
		now:     time.Now,
		log:     zerolog.Nop(),
	}
	if logger != nil {
		srv.log = logger.With().Str("component", "http").Logger()
	}

	router := httprouter.New()
	router.GET("/api/bookings", srv.instrument("bookings_view", srv.authenticate(srv.handleSharedView)))
	router.POST("/api/bookings", srv.instrument("bookings_create", srv.authenticate(srv.handleCreateBooking)))
	router.GET("/api/user_bookings", srv.instrument("user_bookings", srv.authenticate(srv.handleUserBookings)))
	router.GET("/healthz", srv.instrument("healthz", srv.handleHealth))
	router.GET("/readyz", srv.instrument("readyz", srv.handleReady))
	if deps.Hub != nil {
		router.GET("/api/bookings/ws", deps.Hub.HandleWS)
	}

	origins := cfg.HTTP.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler(router)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.loggingMiddleware(srv.rateLimitMiddleware(corsHandler)),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return srv
}

// Handler returns the full middleware chain.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
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
	if s.deps.Hub != nil {
		s.deps.Hub.Close()
	}
	return s.server.Shutdown(ctx)
}

type bookingBody struct {
	Data bookingPayload `json:"data"`
}

func (s *HTTPServer) handleSharedView(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	user, _ := UserFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"data": s.deps.Service.SharedView(r.Context(), user.Email)})
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := r.Context()
	user, _ := UserFromContext(ctx)

	var body bookingBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"errors": ValidationErrors{{Field: "data", Msg: "invalid JSON body"}},
		})
		return
	}

	req, verrs := ValidateBooking(body.Data, s.now())
	if len(verrs) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"errors": verrs})
		return
	}

	if !allowBooking(ctx, s.deps, user.Email, &s.log) {
		writeMessage(w, http.StatusTooManyRequests, "Too many booking attempts, try again later")
		return
	}

	view, err := s.deps.Service.CreateBooking(ctx, req, user.Email, calendarFor(s.deps, user, &s.log))
	if err != nil {
		var conflict *service.ConflictError
		if errors.As(err, &conflict) {
			writeJSON(w, http.StatusConflict, map[string]any{
				"msg":  service.ConflictMessage,
				"data": conflict.View,
			})
			return
		}
		s.log.Error().Err(err).Str("holder", user.Email).Msg("Booking failed")
		writeMessage(w, http.StatusInternalServerError, internalErrorMessage)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": view})
}

func (s *HTTPServer) handleUserBookings(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	user, _ := UserFromContext(r.Context())
	itinerary := s.deps.Service.Itinerary(r.Context(), user.Email)
	if itinerary == nil {
		itinerary = []models.BookingEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"userBookingsArray": itinerary})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if err := s.deps.Service.Ready(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// allowBooking applies the per-holder commit limit. Limiter errors let the
// request through.
func allowBooking(ctx context.Context, deps Deps, holder string, log *zerolog.Logger) bool {
	if deps.BookingLimiter == nil || deps.BookingLimit <= 0 {
		return true
	}
	ok, err := deps.BookingLimiter.CheckRateLimit(ctx, "booking:"+holder, deps.BookingLimit, deps.BookingWindow)
	if err != nil {
		log.Warn().Err(err).Str("holder", holder).Msg("Booking rate limit check failed")
		return true
	}
	return ok
}

func calendarFor(deps Deps, user *User, log *zerolog.Logger) domain.Calendar {
	if deps.Calendars == nil || user.AccessToken == "" {
		return nil
	}
	cal, err := deps.Calendars(user.AccessToken)
	if err != nil {
		log.Warn().Err(err).Str("holder", user.Email).Msg("Calendar unavailable for request")
		return nil
	}
	return cal
}

func (s *HTTPServer) authenticate(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		user, err := s.deps.Auth.Parse(r.Header.Get("Authorization"))
		if err != nil {
			writeMessage(w, http.StatusUnauthorized, err.Error())
			return
		}
		next(w, r.WithContext(withUser(r.Context(), user)), ps)
	}
}

func (s *HTTPServer) instrument(endpoint string, next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		metrics.IncHTTP(endpoint)
		next(w, r, ps)
	}
}

func (s *HTTPServer) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(clientKey(r)) {
			writeMessage(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeMessage(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"msg": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets WebSocket upgrades pass through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}
