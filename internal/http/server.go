// Package http serves the ledger JSON API.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"ledger/internal/core"
	"ledger/internal/ledger"
	applog "ledger/internal/log"
	"ledger/internal/middleware/ratelimit"
	"ledger/internal/middleware/security"
	"ledger/internal/middleware/trace"
	"ledger/internal/services"
)

// Options tunes the server. Zero values pick the defaults.
type Options struct {
	RateLimitPerMinute int
	Scheduler          services.SchedulerConfig

	// Location decides which day "today" is for scheduler runs without an
	// explicit date (default: UTC).
	Location *time.Location

	TrustedProxies []string
	Logger         *applog.Logger
}

type Server struct {
	http.Server
	provider  ledger.Provider
	publisher services.PostingPublisher
	opts      Options
	limiter   *ratelimit.Limiter
	detector  *security.Detector
	tracer    *trace.Middleware
	now       func() time.Time

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware. publisher may be nil.
func NewServer(addr string, provider ledger.Provider, publisher services.PostingPublisher, opts Options) (*Server, error) {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.Config{Handler: slog.Default().Handler(), Component: applog.ComponentHTTP})
	}

	detector, err := security.NewDetector(opts.TrustedProxies...)
	if err != nil {
		return nil, err
	}

	limitCfg := ratelimit.DefaultConfig()
	if opts.RateLimitPerMinute > 0 {
		limitCfg.RequestsPerMinute = opts.RateLimitPerMinute
	}

	s := &Server{
		provider:  provider,
		publisher: publisher,
		opts:      opts,
		limiter:   ratelimit.NewLimiter(limitCfg),
		detector:  detector,
		tracer:    trace.NewMiddleware(detector.ExtractClientIP, opts.Logger.Logger),
		now:       time.Now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/v1/sources", s.handleListSources)
	mux.HandleFunc("POST /api/v1/sources", s.handleCreateSource)
	mux.HandleFunc("GET /api/v1/sources/{id}", s.handleGetSource)
	mux.HandleFunc("PUT /api/v1/sources/{id}", s.handleUpdateSource)
	mux.HandleFunc("DELETE /api/v1/sources/{id}", s.handleDeleteSource)
	mux.HandleFunc("GET /api/v1/sources/{id}/occurrences", s.handleSourceOccurrences)

	mux.HandleFunc("GET /api/v1/incomes", s.handleListIncomes)
	mux.HandleFunc("POST /api/v1/incomes", s.handleCreateIncome)
	mux.HandleFunc("DELETE /api/v1/incomes/{id}", s.handleDeleteIncome)

	mux.HandleFunc("GET /api/v1/expenses", s.handleListExpenses)
	mux.HandleFunc("POST /api/v1/expenses", s.handleCreateExpense)
	mux.HandleFunc("DELETE /api/v1/expenses/{id}", s.handleDeleteExpense)

	mux.HandleFunc("POST /api/v1/scheduler/run", s.handleRunScheduler)

	mux.HandleFunc("GET /api/v1/stats/totals", s.handleTotals)
	mux.HandleFunc("GET /api/v1/stats/month", s.handleMonthTotals)
	mux.HandleFunc("GET /api/v1/stats/projection", s.handleProjection)

	mux.HandleFunc("GET /api/v1/balance", s.handleBalance)
	mux.HandleFunc("PUT /api/v1/balance", s.handleCorrectBalance)
	mux.HandleFunc("PUT /api/v1/balance/starting", s.handleSetStartingBalance)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.chain(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

// chain applies middleware outermost first: tracing, request logger,
// security headers, scanner screening, then rate limiting.
func (s *Server) chain(h http.Handler) http.Handler {
	h = s.limiter.Middleware(s.rateLimitKey, writeTooManyRequests)(h)
	h = s.detector.Middleware(s.detector.ExtractClientIP, s.opts.Logger.WithComponent(applog.ComponentSecurity).Logger)(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = applog.RequestIDMiddleware(trace.RequestID)(h)
	h = applog.Middleware(s.opts.Logger.WithComponent(applog.ComponentAPI))(h)
	return s.tracer.Middleware(h)
}

// rateLimitKey buckets by user when the header is present, else by address.
func (s *Server) rateLimitKey(r *http.Request) string {
	if id, err := userID(r); err == nil {
		return "user:" + id
	}
	return "ip:" + s.detector.ExtractClientIP(r)
}

// service builds the per-request façade for the caller's ledger.
func (s *Server) service(r *http.Request) (*services.LedgerService, error) {
	id, err := userID(r)
	if err != nil {
		return nil, err
	}
	return services.NewLedgerService(s.provider.Ledger(id), s.publisher, id, s.opts.Scheduler), nil
}

func (s *Server) today() core.Date {
	return core.DateOf(s.now().In(s.opts.Location))
}

// Shutdown stops background helpers and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady checks that storage answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if _, err := s.provider.Users(ctx); err != nil {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
