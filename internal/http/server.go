package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"gastos/internal/cache"
	"gastos/internal/log"
	"gastos/internal/middleware/ratelimit"
	"gastos/internal/middleware/security"
	"gastos/internal/middleware/trace"
	"gastos/internal/ports"
	"gastos/internal/services"
)

const (
	maxJSONBody           = 1 << 20
	defaultMaxUploadBytes = 20 << 20
	blobCacheSeconds      = 3600
	readyTimeout          = 5 * time.Second
)

// Config wires the server to its services. Store is used for readiness and for
// recording users.
type Config struct {
	Addr           string
	Store          ports.Store
	Expenses       *services.ExpenseService
	Files          *services.FileService
	Dashboard      *services.DashboardService
	Logger         *log.Logger
	RateLimit      int
	MaxUploadBytes int64
}

type Server struct {
	http.Server

	store     ports.Store
	expenses  *services.ExpenseService
	files     *services.FileService
	dashboard *services.DashboardService

	identity *HeaderIdentity
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	logger   *log.Logger

	loc            *time.Location
	maxUploadBytes int64
	started        time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Discard()
	}
	s := &Server{
		store:          cfg.Store,
		expenses:       cfg.Expenses,
		files:          cfg.Files,
		dashboard:      cfg.Dashboard,
		identity:       NewHeaderIdentity(cfg.Store, logger),
		limiter:        ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimit}),
		detector:       security.NewDetector(logger),
		logger:         logger.WithComponent(log.ComponentHTTP),
		loc:            cfg.Dashboard.Location(),
		maxUploadBytes: cfg.MaxUploadBytes,
		started:        time.Now(),
	}
	if s.maxUploadBytes <= 0 {
		s.maxUploadBytes = defaultMaxUploadBytes
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP, logger)

	mux := http.NewServeMux()
	s.routes(mux)

	var h http.Handler = mux
	h = s.detector.Middleware(h)
	h = log.RequestIDMiddleware(trace.RequestID)(h)
	h = log.Middleware(s.logger)(h)
	h = s.tracer.Middleware(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	limit := s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimit)
	read := func(h http.HandlerFunc) http.Handler {
		return security.NoStore(s.identity.Require(h))
	}
	write := func(h http.HandlerFunc) http.Handler {
		return security.NoStore(limit(s.identity.Require(h)))
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /api/me", read(s.handleMe))

	mux.Handle("GET /api/expenses", read(s.handleListExpenses))
	mux.Handle("POST /api/expenses", write(s.handleCreateExpense))
	mux.Handle("GET /api/expenses/{id}", read(s.handleGetExpense))
	mux.Handle("PUT /api/expenses/{id}", write(s.handleUpdateExpense))
	mux.Handle("DELETE /api/expenses/{id}", write(s.handleDeleteExpense))
	mux.Handle("POST /api/expenses/{id}/paid", write(s.handleSetPaid))
	mux.Handle("POST /api/expenses/{id}/duplicate", write(s.handleDuplicateExpense))

	mux.Handle("POST /api/recurrences", write(s.handleCreateRecurrences))
	mux.Handle("POST /api/recurrences/preview", read(s.handlePreviewRecurrences))

	mux.Handle("GET /api/categories", read(s.handleCategories))
	mux.Handle("GET /api/years", read(s.handleYears))
	mux.Handle("GET /api/dashboard/categories", read(s.handleDashboardCategories))
	mux.Handle("GET /api/dashboard/categories/{category}", read(s.handleCategoryDetail))

	mux.Handle("POST /api/files/upload-url", write(s.handleUploadURL))
	mux.Handle("POST /api/expenses/{id}/files", write(s.handleRegisterFile))
	mux.Handle("GET /api/expenses/{id}/files", read(s.handleListFiles))
	mux.Handle("GET /api/files/{id}/url", read(s.handleFileURL))
	mux.Handle("DELETE /api/files/{id}", write(s.handleDeleteFile))

	// Blob routes are capability URLs: the token or UUID is the credential.
	mux.Handle("PUT /blobs/upload/{token}", security.NoStore(limit(http.HandlerFunc(s.handleUploadBlob))))
	mux.Handle("GET /blobs/{ref}", security.PrivateCache(blobCacheSeconds)(http.HandlerFunc(s.handleDownloadBlob)))
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	NewJSONResponse().
		Status(http.StatusTooManyRequests).
		Fail("rate_limited", "too many requests, try again shortly").
		Write(w)
}

// RegisterCaches hands the server's own caches to m.
func (s *Server) RegisterCaches(m *cache.Manager) {
	m.Register(s.identity.Cache())
}

// decode bounds the body before decoding it strictly into dst.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	return decodeJSON(r, dst)
}

// Shutdown stops the background cleanups and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
