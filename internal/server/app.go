// Package server initializes and runs the folioguard server: the HTTP
// adapter, the gRPC health endpoint and the maintenance scheduler, all
// sharing one Core, with graceful shutdown on SIGINT/SIGTERM.
package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/folioguard/internal/logging"
	"github.com/dmitrijs2005/folioguard/internal/server/config"
	"github.com/dmitrijs2005/folioguard/internal/server/csrf"
	"github.com/dmitrijs2005/folioguard/internal/server/httpapi"
	"github.com/dmitrijs2005/folioguard/internal/server/ratelimit"
	"github.com/dmitrijs2005/folioguard/internal/server/scheduler"

	gs "github.com/dmitrijs2005/folioguard/internal/server/grpc"
)

const shutdownGrace = 30 * time.Second

type App struct {
	config *config.Config
	logger logging.Logger
	core   *Core
	grpc   *gs.GRPCServer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger, err := logging.New(c.LogBackend, os.Stdout)
	if err != nil {
		return nil, err
	}

	core, err := NewCore(ctx, c, logger)
	if err != nil {
		return nil, err
	}
	if err := core.Migrate(ctx); err != nil {
		_ = core.Close()
		return nil, err
	}

	grpcServer := gs.NewGRPCServer(c.GRPCAddr, logger)
	core.Monitoring.AddHealthObserver(grpcServer)

	return &App{config: c, logger: logger, core: core, grpc: grpcServer}, nil
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

func (app *App) newHTTPServer() *http.Server {
	h := httpapi.NewHandler(httpapi.Deps{
		Auth:          app.core.Auth,
		Sessions:      app.core.Sessions,
		Tokens:        app.core.TokenFlows,
		Monitor:       app.core.Monitoring,
		Lockout:       app.core.Lockout,
		CSRF:          csrf.NewManager(app.config.CSRFSecret, app.config.CSRFTokenTTL),
		Events:        app.core.Events,
		Log:           app.logger,
		Metrics:       app.core.Metrics,
		SecureCookies: app.config.SecureCookies,
	})
	return &http.Server{
		Addr:              app.config.HTTPAddr,
		Handler:           httpapi.NewRouter(h),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	srv := app.newHTTPServer()

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, "http shutdown", "error", err)
		}
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", app.config.HTTPAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.grpc.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startScheduler(ctx context.Context, cancelFunc context.CancelFunc) {
	s := scheduler.New(app.core.Monitoring, app.config.MaintenanceSchedule, app.logger)
	if err := s.Run(ctx, shutdownGrace); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	run := func(f func(context.Context, context.CancelFunc)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f(ctx, cancelFunc)
		}()
	}

	run(app.startGRPCServer)
	run(app.startHTTPServer)
	run(app.startScheduler)

	if ml, ok := app.core.Limiter.(*ratelimit.MemoryLimiter); ok {
		run(func(ctx context.Context, _ context.CancelFunc) { ml.Run(ctx, time.Minute) })
	}

	wg.Wait()

	if err := app.core.Close(); err != nil {
		app.logger.Error(context.Background(), "close", "error", err)
	}
	app.logger.Info(context.Background(), "App stopped")
}
