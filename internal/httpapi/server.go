// Package httpapi exposes the signing orchestrator over HTTP.
package httpapi

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/StudioVBG/TALOK-sub014/internal/idempotency"
	"github.com/StudioVBG/TALOK-sub014/internal/ratelimit"
	"github.com/StudioVBG/TALOK-sub014/internal/signing"
	"github.com/StudioVBG/TALOK-sub014/pkg/httpx"
	"github.com/StudioVBG/TALOK-sub014/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Config struct {
	// AdminToken guards the invitation endpoint. Empty disables it.
	AdminToken         string
	// TrustProxy takes the client address from X-Forwarded-For.
	TrustProxy         bool
	MaxBodyBytes       int64
	OTPPerIPPerMinute  int
	OTPPerTokenPerHour int
	SignPerIPPerMinute int
}

type Server struct {
	svc        *signing.Service
	idem       idempotency.Store
	cfg        Config
	log        *slog.Logger
	otpByIP    *ratelimit.FixedWindow
	otpByToken *ratelimit.FixedWindow
	signByIP   *ratelimit.FixedWindow
	now        func() time.Time
}

func New(svc *signing.Service, idem idempotency.Store, cfg Config, log *slog.Logger) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 4 << 20
	}
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		svc:        svc,
		idem:       idem,
		cfg:        cfg,
		log:        log,
		otpByIP:    ratelimit.NewFixedWindow(cfg.OTPPerIPPerMinute, time.Minute),
		otpByToken: ratelimit.NewFixedWindow(cfg.OTPPerTokenPerHour, time.Hour),
		signByIP:   ratelimit.NewFixedWindow(cfg.SignPerIPPerMinute, time.Minute),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	r.Route("/invite/{token}", func(inv chi.Router) {
		inv.Get("/", s.handlePreview)
		inv.Post("/otp", s.handleRequestOTP)
		inv.Post("/sign", s.handleSign)
	})
	r.Post("/documents/{document_id}/invitations", s.handleInvite)
	return r
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if id == "" || len(id) > 128 {
			id = httpx.NewRequestID()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		// The route pattern keeps invitation tokens out of the log.
		route := chi.RouteContext(r.Context()).RoutePattern()
		logger.From(r.Context(), s.log).Info("http request",
			"method", r.Method,
			"route", route,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if s.cfg.AdminToken == "" {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "not found", nil)
		return false
	}
	tok, ok := parseBearer(r.Header.Get("Authorization"))
	if !ok || subtle.ConstantTimeCompare([]byte(tok), []byte(s.cfg.AdminToken)) != 1 {
		httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "admin bearer token required", nil)
		return false
	}
	return true
}

func parseBearer(authorization string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(strings.TrimSpace(authorization), prefix) {
		return "", false
	}
	tok := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(authorization), prefix))
	if tok == "" {
		return "", false
	}
	return tok, true
}

func (s *Server) enforceRateLimit(w http.ResponseWriter, r *http.Request, l *ratelimit.FixedWindow, key string) bool {
	if l.Allow(strings.TrimSpace(key), s.now()) {
		return true
	}
	httpx.WriteError(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded", nil)
	return false
}
