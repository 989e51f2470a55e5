package app

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xenking/order-intake/internal/domain/inventory"
	"github.com/xenking/order-intake/internal/domain/order"
	"github.com/xenking/order-intake/internal/domain/promotion"
	"github.com/xenking/order-intake/internal/handler"
	"github.com/xenking/order-intake/internal/repository"
	"github.com/xenking/order-intake/pkg/health"
	"github.com/xenking/order-intake/pkg/httpmiddleware"
)

const serviceName = "intake-api"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	h, healthSvc, err := newServer(ctx, lg, cfg, pool, m)
	if err != nil {
		return err
	}
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           h,
		// Requests keep the process logger but must outlive the shutdown signal.
		BaseContext: func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()

		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newServer builds repositories, services and the routed HTTP handler on top
// of pool. The returned health checks are not started.
func newServer(
	ctx context.Context,
	lg *zap.Logger,
	cfg *Config,
	pool *pgxpool.Pool,
	t httpmiddleware.TelemetryProvider,
) (http.Handler, *health.Health, error) {
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second,
		health.LatencyCheck(time.Second, health.PingCheck(pool)))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	productRepo := repository.NewProductRepository(pool)
	promotionRepo := repository.NewPromotionRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)

	orderService, err := order.NewService(productRepo, promotion.NewResolver(promotionRepo), orderRepo,
		order.WithTracerProvider(t.TracerProvider()),
		order.WithMeterProvider(t.MeterProvider()),
	)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create order service")
	}
	stockService := inventory.NewService(productRepo)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	handler.NewHandler(productRepo, orderService, orderRepo, stockService).
		Register(mux, handler.RequireAccessToken(cfg.AccessToken))

	return newHTTPHandler(ctx, lg, cfg, mux, t), healthSvc, nil
}

// newHTTPHandler wraps mux with the middleware chain, outermost first.
func newHTTPHandler(
	ctx context.Context,
	lg *zap.Logger,
	cfg *Config,
	mux *http.ServeMux,
	t httpmiddleware.TelemetryProvider,
) http.Handler {
	routeFinder := httpmiddleware.MakeRouteFinder(mux)
	return httpmiddleware.Wrap(mux,
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", handler.AccessTokenHeader, httpmiddleware.RequestIDHeader},
			ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		}),
		httpmiddleware.Instrument(serviceName, routeFinder, t),
		httpmiddleware.LogRequests(routeFinder),
		httpmiddleware.Labeler(routeFinder),
	)
}
