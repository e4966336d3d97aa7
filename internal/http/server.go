package http

import (
	"context"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"retire/internal/cache"
	"retire/internal/diagnostics"
	"retire/internal/log"
	"retire/internal/middleware/trace"
	"retire/internal/services"
	appweb "retire/web"
)

// Options tune the server. Zero values pick the defaults noted per field.
type Options struct {
	Logger *slog.Logger

	// Per client limits on POST requests. Default 60 per minute, burst 10.
	RateLimitPerMinute int
	RateLimitBurst     int

	// EventsCacheTTL bounds how stale GET /api/events may be. Default 30s.
	EventsCacheTTL time.Duration

	// TrustedProxies may set X-Forwarded-For. Default: loopback and private ranges.
	TrustedProxies []string

	// HealthCheck, when set, is part of /readyz.
	HealthCheck func(context.Context) error

	// Templates overrides the embedded templates.
	Templates fs.FS
}

// appMetrics are counters exposed on /metrics.
type appMetrics struct {
	uptime              time.Time
	calculationsSuccess int64
	calculationsFailure int64
	cacheHits           int64
	cacheMisses         int64
}

type Server struct {
	http.Server
	svc         *services.EstimateService
	templates   *template.Template
	validate    *validator.Validate
	logger      *log.Logger
	healthCheck func(context.Context) error

	rateLimiter     *rateLimiter
	secMetrics      *securityMetrics
	traceMiddleware *trace.Middleware
	clientIP        func(*http.Request) string

	eventsCache  *cache.LRUCache[int, []diagnostics.Event]
	cacheManager *cache.Manager
	appMetrics   *appMetrics

	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(addr string, svc *services.EstimateService, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RateLimitPerMinute < 1 {
		opts.RateLimitPerMinute = 60
	}
	if opts.RateLimitBurst < 1 {
		opts.RateLimitBurst = 10
	}
	if opts.EventsCacheTTL == 0 {
		opts.EventsCacheTTL = 30 * time.Second
	}

	logger := log.FromSlog(opts.Logger, log.ComponentHTTP)

	trusted, err := parseTrustedProxies(opts.TrustedProxies)
	if err != nil {
		logger.Warn("Invalid trusted proxies, using defaults", log.FieldError, err)
		trusted, _ = parseTrustedProxies(nil)
	}
	clientIP := clientIPExtractor(trusted)

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		svc:             svc,
		validate:        newValidator(),
		logger:          logger,
		healthCheck:     opts.HealthCheck,
		rateLimiter:     newRateLimiter(opts.RateLimitPerMinute, opts.RateLimitBurst),
		secMetrics:      &securityMetrics{},
		traceMiddleware: trace.NewMiddleware(clientIP, opts.Logger.With(log.FieldComponent, log.ComponentTrace)),
		clientIP:        clientIP,
		eventsCache:     cache.NewLRUCache[int, []diagnostics.Event](16, opts.EventsCacheTTL),
		cacheManager:    cache.NewManager(opts.Logger.With(log.FieldComponent, log.ComponentCache)),
		appMetrics:      &appMetrics{uptime: time.Now()},
	}
	s.cacheManager.Register(s.eventsCache)
	s.cacheManager.StartCleanup(5 * time.Minute)

	templatesFS := opts.Templates
	if templatesFS == nil {
		templatesFS = appweb.TemplatesFS
	}
	t, err := template.New("").Funcs(templateFuncs).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		logger.Warn("Failed parsing templates", log.FieldError, err, log.FieldComponent, log.ComponentTemplate)
	} else {
		s.templates = t
	}

	// Static assets (served from embedded FS)
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "public, max-age=3600")
			static.ServeHTTP(w, r)
		}))
	} else {
		logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("/", s.withSecurity(s.handleIndex))
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/estimate", s.withSecurity(s.handleEstimate))
	mux.HandleFunc("/api/estimate", s.withSecurity(s.handleAPIEstimate))
	mux.HandleFunc("/api/events", s.withSecurity(s.handleEvents))

	// trace assigns the request id the logger middleware picks up.
	var handler http.Handler = mux
	handler = log.RequestIDMiddleware(func(r *http.Request) string {
		return trace.GetRequestID(r.Context())
	})(handler)
	handler = log.Middleware(logger)(handler)
	handler = s.traceMiddleware.Middleware(handler)
	s.Handler = handler

	return s
}

// withSecurity adds security headers, suspicious request detection and
// per-client rate limiting of POST requests.
func (s *Server) withSecurity(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		clientIP := s.clientIP(r)

		if detectSuspiciousRequest(r, s.secMetrics) {
			log.FromContext(ctx).WarnContext(ctx, "Suspicious request detected",
				log.FieldClientIP, clientIP,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldUserAgent, r.Header.Get("User-Agent"),
				log.FieldComponent, log.ComponentSecurity)
		}

		setSecurityHeaders(w)

		if r.Method == http.MethodPost && !s.rateLimiter.allow(clientIP, s.secMetrics) {
			log.FromContext(ctx).WarnContext(ctx, "Rate limit exceeded",
				log.FieldClientIP, clientIP,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldComponent, log.ComponentRateLimit)
			retryAfter := strconv.Itoa(s.rateLimiter.retryAfter())
			if r.Header.Get("HX-Request") == "true" {
				TooManyRequestsError(retryAfter).Write(w)
				return
			}
			w.Header().Set("Retry-After", retryAfter)
			http.Error(w, rateLimitMessage, http.StatusTooManyRequests)
			return
		}

		next(w, r)
	}
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
