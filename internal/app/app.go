package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"glabassets/internal/catalog"
	"glabassets/internal/config"
	"glabassets/internal/device"
	"glabassets/internal/download"
	apperrors "glabassets/internal/errors"
	"glabassets/internal/imaging"
	"glabassets/internal/infrastructure"
	"glabassets/internal/license"
	"glabassets/internal/notify"
	"glabassets/internal/security"
	"glabassets/internal/services"
	"glabassets/internal/session"
	"glabassets/internal/storage/blob"
	"glabassets/internal/storage/postgres"
	handlers "glabassets/internal/transport/http"
	"glabassets/internal/updater"
	"glabassets/internal/validation"
	ws "glabassets/internal/websocket"
	"glabassets/pkg/contracts"
)

// defaultLogFile is the relative log path Load falls back to; New moves it
// under the platform logs directory.
const defaultLogFile = "logs/app.log"

// Application represents the main application container
type Application struct {
	Config  *config.Config
	Paths   *config.Paths
	Logger  *slog.Logger
	OTel    *infrastructure.OTelProviders
	Metrics *infrastructure.AppMetrics
	DB      *postgres.DB

	Hub       *ws.Hub
	Downloads *download.Pipeline
	Sessions  *session.Store
	License   *services.LicenseService
	Health    *services.HealthService
	Catalog   *catalog.Service
	Updater   *updater.Updater // nil when updates are disabled
	Notifier  *postgres.ChangeNotifier

	Router chi.Router
	Server *http.Server

	disposers []notify.Dispose

	// transfers ends in-flight downloads once the server has shut down
	transfers     context.Context
	stopTransfers context.CancelFunc

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New builds the application from cfg. Nothing is started until Run.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	paths, err := config.GetPaths(cfg.Paths)
	if err != nil {
		return nil, fmt.Errorf("failed to get paths: %w", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}

	if cfg.Logging.FilePath == defaultLogFile {
		cfg.Logging.FilePath = paths.GetLogPath("app.log")
	}
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("Application starting",
		slog.String("name", contracts.AppName),
		slog.String("version", contracts.Version),
		slog.Bool("development", cfg.Logging.Development))
	paths.LogPathResolution(logger)

	otelProviders, err := infrastructure.InitializeOTel(
		infrastructure.DefaultOTelConfig(contracts.Version, cfg.Logging.Development), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	metrics, err := infrastructure.NewAppMetrics(otelProviders.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	a := &Application{
		Config:  cfg,
		Paths:   paths,
		Logger:  logger,
		OTel:    otelProviders,
		Metrics: metrics,
	}
	a.transfers, a.stopTransfers = context.WithCancel(context.Background())

	if err := a.initializeServices(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	a.setupRouter()
	a.createServer()

	return a, nil
}

// initializeServices connects the hosted stores and builds every service.
func (a *Application) initializeServices(ctx context.Context) error {
	cfg := a.Config

	db, err := postgres.New(cfg.Database)
	if err != nil {
		return err
	}
	a.DB = db

	if cfg.Database.Migrate {
		migrator, err := postgres.NewMigrator(db, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to load migrations: %w", err)
		}
		if err := migrator.Up(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	blobs, err := blob.New(ctx, cfg.Storage, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create blob store: %w", err)
	}

	a.Hub = ws.NewHub(cfg.WebSocket, a.Logger,
		ws.WithMetrics(a.Metrics),
		ws.WithAllowedOrigins(cfg.Security.AllowedOrigins))

	a.Downloads = download.NewPipeline(a.Paths.TemplatesDir, a.Logger, download.WithMetrics(a.Metrics))
	a.Sessions = session.NewStore(a.Paths.SessionFile, cfg.License.AdminPasscode, a.Logger)

	cache := license.NewActivationCache(a.Paths.ActivationFile, security.NewSealer(security.DefaultSealConfig()))
	limiter := rate.NewLimiter(rate.Limit(cfg.License.AttemptsPerMin/60), max(1, int(cfg.License.AttemptsPerMin)))
	activator := license.NewActivator(postgres.NewLicenseRepository(db), cache, a.Logger,
		license.WithRateLimit(limiter),
		license.WithMetrics(a.Metrics))
	a.License = services.NewLicenseService(device.NewIdentifier(cfg.License.AppID, a.Logger), activator, a.Sessions, a.Logger)

	compressor := imaging.NewCompressor(imaging.Options{
		MaxBytes:      cfg.Imaging.MaxBytes,
		MaxWidth:      cfg.Imaging.MaxWidth,
		MaxHeight:     cfg.Imaging.MaxHeight,
		MaxIterations: imaging.DefaultMaxIterations,
	}, a.Metrics, a.Logger)

	a.Catalog = catalog.NewService(
		postgres.NewAssetRepository(db),
		blobs,
		compressor,
		a.Downloads,
		validation.New(),
		a.Metrics,
		a.Logger,
	)

	a.Notifier = postgres.NewChangeNotifier(postgres.NewListener(cfg.Database, a.Logger), cfg.Database.NotifyChannel, a.Logger)

	if cfg.Updater.Enabled {
		u, err := updater.NewUpdater(contracts.Version, cfg.Updater.RepoURL, a.Paths.UpdatesDir, a.Logger,
			updater.WithMetrics(a.Metrics),
			updater.WithRestart(a.restart))
		if err != nil {
			return fmt.Errorf("failed to create updater: %w", err)
		}
		a.Updater = u
	}

	a.Health = services.NewHealthService(db, a.Hub, a.Logger)

	sources := EventSources{
		Downloads: a.Downloads,
		Catalog:   a.Notifier,
		Sessions:  a.Sessions,
	}
	if a.Updater != nil {
		sources.Updates = a.Updater
	}
	a.disposers = RelayEvents(a.Hub, sources)

	return nil
}

// setupRouter configures the HTTP router
func (a *Application) setupRouter() {
	deps := handlers.RouterDeps{
		Config:       a.Config,
		Logger:       a.Logger,
		ErrorHandler: apperrors.NewErrorHandler(a.Logger, a.Config.Logging.Development),
		Validator:    validation.New(),
		Health:       a.Health,
		License:      a.License,
		Sessions:     a.Sessions,
		Catalog:      a.Catalog,
		Downloads:    a.Downloads,
		Events:       a.Hub,
		Metrics:      a.OTel.PrometheusHTTP,
		Shutdown:     a.transfers,
	}
	if a.Updater != nil {
		deps.Updates = a.Updater
	}
	a.Router = handlers.NewRouter(deps)
}

// createServer creates the loopback HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           net.JoinHostPort(a.Config.Server.Host, strconv.Itoa(a.Config.Server.Port)),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Run serves until ctx is cancelled, a component fails or an installed
// update restarts the process.
func (a *Application) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.Hub.Run(gctx)
	})

	g.Go(func() error {
		if err := a.Notifier.Run(gctx); err != nil {
			// the catalog still works without push refreshes
			a.Logger.WarnContext(gctx, "Catalog change listener stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	g.Go(func() error {
		status, err := a.License.Recheck(gctx)
		if err != nil {
			a.Logger.WarnContext(gctx, "Startup license re-check failed", slog.String("error", err.Error()))
			return nil
		}
		a.Logger.InfoContext(gctx, "Startup license re-check complete", slog.Bool("activated", status.Activated))
		return nil
	})

	if a.Updater != nil && !a.Config.Logging.Development {
		g.Go(func() error {
			return a.Updater.RunPeriodic(gctx, a.Config.Updater.CheckInterval)
		})
	}

	g.Go(func() error {
		a.Logger.Info("HTTP server listening", slog.String("addr", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.Logger.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()
		err := a.Server.Shutdown(shutdownCtx)
		if a.stopTransfers != nil {
			a.stopTransfers()
		}
		if err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// Stop ends a running Run.
func (a *Application) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
	}
}

// restart launches the freshly installed executable with the same
// arguments and stops this process's Run.
func (a *Application) restart() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start new version: %w", err)
	}

	a.Logger.Info("Started new version, stopping", slog.Int("pid", cmd.Process.Pid))
	// let the install response reach the UI before the listener closes
	time.AfterFunc(500*time.Millisecond, a.Stop)
	return nil
}

// Close releases subscriptions, the database and telemetry. Safe on a
// partially built Application.
func (a *Application) Close() error {
	for _, dispose := range a.disposers {
		dispose()
	}
	a.disposers = nil

	var errs []error
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}
	if a.OTel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.OTel.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down telemetry: %w", err))
		}
	}
	if a.Logger != nil {
		a.Logger.Info("Application stopped")
	}
	if err := infrastructure.CloseLogFile(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
