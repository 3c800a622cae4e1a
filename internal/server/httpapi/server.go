// Package httpapi is the HTTP edge of tokenkeeper: gin routes under
// /api/v1/auth, middleware, envelopes, and the single mapping from service
// error kinds to HTTP status codes.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/ratelimit"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/services"
	"github.com/gin-gonic/gin"
)

// Rate-limited operations.
const (
	OpLogin    = "login"
	OpRegister = "register"
)

// AuthService is what the edge needs from the service layer.
type AuthService interface {
	Register(ctx context.Context, in services.RegisterInput, ip, userAgent string) (*services.AuthResult, error)
	Login(ctx context.Context, email, password, ip, userAgent string) (*services.AuthResult, error)
	Refresh(ctx context.Context, raw, ip, userAgent string) (string, error)
	Logout(ctx context.Context, raw, ip, userAgent string) error
	Authenticate(ctx context.Context, accessToken string) (*models.User, error)
	Profile(ctx context.Context, userID string) (*models.User, error)
	UpdatePassword(ctx context.Context, userID, password, confirm string) error
}

type RateLimiter interface {
	Allow(ctx context.Context, operation, key string) (ratelimit.Decision, error)
}

// Pinger reports database readiness; *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Options struct {
	Addr            string
	Development     bool
	RefreshTTL      time.Duration
	TrustedProxies  []string
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
	RequestTimeout  time.Duration
}

type HTTPServer struct {
	opts    Options
	logger  logging.Logger
	users   AuthService
	limiter RateLimiter
	db      Pinger
	metrics *metrics.Metrics
	engine  *gin.Engine
}

// NewHTTPServer builds the router. limiter, db and m may be nil.
func NewHTTPServer(opts Options, l logging.Logger, users AuthService, limiter RateLimiter, db Pinger, m *metrics.Metrics) (*HTTPServer, error) {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 10 << 20
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if !opts.Development && gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &HTTPServer{
		opts:    opts,
		logger:  l.With("module", "http_server"),
		users:   users,
		limiter: limiter,
		db:      db,
		metrics: m,
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, err
	}
	s.engine = engine
	s.routes()

	return s, nil
}

func (s *HTTPServer) routes() {
	e := s.engine
	e.Use(s.recovery(), s.requestID(), s.accessLog(), noStore(),
		s.bodyLimit(s.opts.MaxBodyBytes), s.requestTimeout(s.opts.RequestTimeout))

	e.GET("/healthz", s.healthz)
	e.GET("/readyz", s.readyz)
	e.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	rg := e.Group("/api/v1/auth")
	rg.POST("", s.rateLimit(OpLogin), s.Login)
	rg.POST("/", s.rateLimit(OpLogin), s.Login)
	rg.POST("/register", s.rateLimit(OpRegister), s.Register)
	rg.POST("/refresh", s.Refresh)
	rg.POST("/logout", s.Logout)

	protected := rg.Group("")
	protected.Use(s.authenticate())
	protected.GET("/profile", s.Profile)
	protected.POST("/update-password", s.UpdatePassword)
	protected.GET("/admin", s.requireRole(common.RoleAdmin), s.Admin)
}

// Handler exposes the router, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is done and then shuts down gracefully.
func (s *HTTPServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.opts.RequestTimeout,
	}

	stopped := make(chan error, 1)
	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		stopped <- srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return <-stopped
}
