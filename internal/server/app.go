// Package server wires tokenkeeper together: it opens the database, runs
// migrations, builds the services and runs the HTTP edge and the expired
// token sweeper until a signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/config"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/ratelimit"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/services"
	"github.com/redis/go-redis/v9"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	redis       *redis.Client
	metrics     *metrics.Metrics
	userService *services.UserService
	sweeper     *services.Sweeper
	limiter     httpapi.RateLimiter
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.New(os.Stdout, c.LogLevel).With("app_env", c.Environment)

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	m := metrics.New()
	us := services.NewUserService(db, rm, c, services.WithLogger(logger), services.WithMetrics(m))
	sw := services.NewSweeper(rm.RefreshTokens(db), c.SweepInterval, nil, logger, m)

	app := &App{config: c, logger: logger, db: db, metrics: m, userService: us, sweeper: sw}

	if c.RedisAddr != "" {
		app.redis = redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		l := ratelimit.New(app.redis, map[string]ratelimit.Rule{
			httpapi.OpLogin:    {Limit: c.LoginRateLimit, Window: c.LoginRateWindow},
			httpapi.OpRegister: {Limit: c.RegisterRateLimit, Window: c.RegisterRateWindow},
		})
		if err := l.Ping(ctx); err != nil {
			logger.Warn(ctx, "redis unreachable, rate limiting fails open", "addr", c.RedisAddr, "error", err)
		}
		app.limiter = l
	} else {
		logger.Warn(ctx, "REDIS_ADDR not set, rate limiting disabled")
	}

	return app, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s, err := httpapi.NewHTTPServer(httpapi.Options{
		Addr:            app.config.HTTPAddr,
		Development:     app.config.IsDevelopment(),
		RefreshTTL:      app.config.RefreshTokenValidityDuration,
		TrustedProxies:  app.config.TrustedProxies,
		ShutdownTimeout: app.config.ShutdownTimeout,
		MaxBodyBytes:    app.config.MaxBodyBytes,
		RequestTimeout:  app.config.RequestTimeout,
	}, app.logger, app.userService, app.limiter, app.db, app.metrics)

	if err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
		return
	}

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run blocks until a signal arrives or the HTTP server fails, then releases
// the database and Redis connections.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.sweeper.Run(ctx)
	}()

	wg.Wait()

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Warn(ctx, "redis close failed", "error", err)
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close failed", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
