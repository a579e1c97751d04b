package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"golang.org/x/sync/errgroup"

	"github.com/enrferaba/Grabadora-Intento4/internal/config"
	apierrors "github.com/enrferaba/Grabadora-Intento4/internal/errors"
	"github.com/enrferaba/Grabadora-Intento4/internal/infrastructure"
	"github.com/enrferaba/Grabadora-Intento4/internal/license"
	customMiddleware "github.com/enrferaba/Grabadora-Intento4/internal/middleware"
	"github.com/enrferaba/Grabadora-Intento4/internal/security"
	handlers "github.com/enrferaba/Grabadora-Intento4/internal/transport/http"
)

// Build metadata, overridden with -ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// Application holds the wired components.
type Application struct {
	Config        *config.Config
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Licenses      *license.Manager
	Fingerprints  *security.FingerprintManager
	Gate          *license.Gate
	Router        *chi.Mux
	Server        *http.Server
}

// NewApplication loads configuration and initializes logging before wiring.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return New(cfg, logger)
}

// New wires the application from an already loaded configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if cfg.Telemetry.ServiceVersion == "" || cfg.Telemetry.ServiceVersion == "dev" {
		cfg.Telemetry.ServiceVersion = Version
	}

	providers, err := infrastructure.InitializeOTel(cfg.Telemetry, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	metrics, err := license.InitializeLicenseMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize license metrics: %w", err)
	}

	fingerprints := NewFingerprinter(metrics, logger)
	licenses, err := NewLicenseManager(cfg, fingerprints, metrics, logger)
	if err != nil {
		return nil, err
	}

	a := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: providers,
		Licenses:      licenses,
		Fingerprints:  fingerprints,
		Gate:          license.NewGate(),
	}
	a.setupRouter()
	a.Server = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      a.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return a, nil
}

func (a *Application) setupRouter() {
	errorHandler := apierrors.NewErrorHandler(a.Logger, a.Config.Security.DevMode)
	validation := customMiddleware.NewValidationMiddleware(a.Logger, errorHandler)
	validation.SetMaxBodySize(a.Config.Server.MaxBodyBytes)

	r := chi.NewRouter()
	r.NotFound(errorHandler.NotFound)
	r.MethodNotAllowed(errorHandler.MethodNotAllowed)

	// Order: RequestID, RealIP, OTel, logging, recovery.
	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)
	if otelMiddleware, err := customMiddleware.NewOTelMiddleware(a.OTelProviders); err != nil {
		a.Logger.Error("failed to create OpenTelemetry middleware", slog.String("error", err.Error()))
	} else {
		r.Use(otelMiddleware.Handler)
	}
	r.Use(apierrors.NewErrorMiddleware(errorHandler, a.Logger).Handler)
	r.Use(customMiddleware.SecurityHeaders)

	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", handlers.NewMetricsHandler(a.OTelProviders.PrometheusHTTP))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(customMiddleware.CORS(customMiddleware.CORSConfig{
			AllowedOrigins: a.Config.Security.AllowedOrigins,
			Logger:         a.Logger,
		}))
		if rl := a.Config.Security.RateLimit; rl.Enabled {
			r.Use(customMiddleware.NewRateLimiter(rl.RPS, rl.Burst, a.Logger).Handler)
		}
		r.Use(customMiddleware.Timeout(a.Config.Server.RequestTimeout, a.Logger))
		r.Use(customMiddleware.ContentTypeValidator(errorHandler, "application/json"))

		health := handlers.NewHealthHandler(a.Licenses.Provider(), Version, nil, a.Logger)
		r.Get("/health", health.HealthCheck)

		gate := handlers.NewGateHandler(a.Licenses.Provider(), a.Gate, validation, errorHandler, a.Logger)
		r.Mount("/license/gate", gate.Routes())

		licenseHandler := handlers.NewLicenseHandler(a.Licenses, a.Fingerprints, a.Gate, validation, errorHandler, a.Logger)
		if a.Config.Security.DevMode {
			licenseHandler.EnableDiagnostics()
		}
		r.Mount("/license", licenseHandler.Routes())
	})

	a.Router = r
}

// Run serves until ctx is cancelled or the server fails, then shuts down.
func (a *Application) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.Server.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *Application) Serve(ctx context.Context, ln net.Listener) error {
	d := a.Licenses.Status(ctx)
	a.Logger.InfoContext(ctx, "application starting",
		slog.String("version", Version),
		slog.String("build_time", BuildTime),
		slog.String("address", ln.Addr().String()),
		slog.String("license_file", a.Licenses.Path()),
		slog.Bool("license_active", d.Active),
		slog.String("license_reason", d.Reason),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return a.Stop(context.WithoutCancel(ctx))
	})
	return g.Wait()
}

// Stop shuts the server and telemetry down within the configured timeout.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}
	if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	a.Logger.InfoContext(ctx, "application shutdown complete")
	return infrastructure.CloseLogFile()
}

// RunUntilSignal runs until SIGINT or SIGTERM.
func (a *Application) RunUntilSignal() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.Run(ctx)
}
