package di

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/ignitionstack/ember/internal/repository"
	"github.com/ignitionstack/ember/pkg/engine"
	"github.com/ignitionstack/ember/pkg/engine/config"
	"github.com/ignitionstack/ember/pkg/engine/logging"
	"github.com/ignitionstack/ember/pkg/engine/metrics"
	"github.com/ignitionstack/ember/pkg/store"
)

// Overrides are command line values that win over the config file.
type Overrides struct {
	SocketPath string
	HTTPAddr   string
	PluginDir  string
	StateDir   string
	LogLevel   string
	LogFile    string
}

// AppConfig is what the serve command hands to the container.
type AppConfig struct {
	ConfigPath  string
	HostVersion string
	Overrides   Overrides
}

// NewAppConfig creates the container input
func NewAppConfig(configPath, hostVersion string, overrides Overrides) AppConfig {
	return AppConfig{
		ConfigPath:  configPath,
		HostVersion: hostVersion,
		Overrides:   overrides,
	}
}

// Module wires the host: config, logger, plugin storage, state database,
// metrics, engine, handlers and both servers. Lifecycle hooks run discovery
// and open the listeners on start, and tear down in reverse on stop.
var Module = fx.Options(
	fx.Provide(
		provideConfig,
		provideZapLogger,
		provideLogger,
		provideStorage,
		provideStateRepo,
		metrics.New,
		provideEngine,
		engine.NewHandlers,
		provideServer,
	),
	fx.WithLogger(func(z *logging.ZapLogger) fxevent.Logger {
		return &fxevent.ZapLogger{Logger: z.Named("fx").Zap()}
	}),
	fx.Invoke(syncLogger, watchServer),
)

func provideConfig(app AppConfig) (*config.Config, error) {
	cfg, err := config.LoadConfig(app.ConfigPath)
	if err != nil {
		return nil, err
	}

	o := app.Overrides
	if o.SocketPath != "" {
		cfg.Server.SocketPath = config.ExpandHome(o.SocketPath)
	}
	if o.HTTPAddr != "" {
		cfg.Server.HTTPAddr = o.HTTPAddr
	}
	if o.PluginDir != "" {
		cfg.Engine.PluginDir = config.ExpandHome(o.PluginDir)
	}
	if o.StateDir != "" {
		cfg.Server.StateDir = config.ExpandHome(o.StateDir)
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	if o.LogFile != "" {
		cfg.Log.File = config.ExpandHome(o.LogFile)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func provideZapLogger(cfg *config.Config) (*logging.ZapLogger, error) {
	return logging.New(logging.Options{
		Level:       cfg.Log.Level,
		File:        cfg.Log.File,
		Development: cfg.Log.Development,
	})
}

// syncLogger flushes buffered log entries once everything else has stopped.
func syncLogger(lc fx.Lifecycle, logger *logging.ZapLogger) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			_ = logger.Sync()
			return nil
		},
	})
}

func provideLogger(z *logging.ZapLogger) logging.Logger {
	return z
}

func provideStorage(cfg *config.Config) store.Storage {
	return store.NewLocalStorage(cfg.Engine.PluginDir)
}

// provideStateRepo opens the state database. The engine owns it from here
// on and closes it in Engine.Close.
func provideStateRepo(cfg *config.Config) (repository.DBRepository, error) {
	if cfg.Server.StateDir == "" {
		return repository.OpenInMemory()
	}
	repo, err := repository.Open(cfg.Server.StateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	return repo, nil
}

func provideEngine(
	lc fx.Lifecycle,
	app AppConfig,
	cfg *config.Config,
	storage store.Storage,
	repo repository.DBRepository,
	m *metrics.Metrics,
	logger logging.Logger,
) (*engine.Engine, error) {
	e, err := engine.NewEngine(context.Background(), storage, engine.Options{
		HostVersion: app.HostVersion,
		Engine:      cfg.Engine,
		Logger:      logger,
		StateRepo:   repo,
		Metrics:     m,
	})
	if err != nil {
		_ = repo.Close()
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			_, err := e.Start(ctx)
			return err
		},
		OnStop: func(ctx context.Context) error {
			return e.Close(ctx)
		},
	})
	return e, nil
}

func provideServer(lc fx.Lifecycle, cfg *config.Config, handlers *engine.Handlers, logger logging.Logger) *engine.Server {
	srv := engine.NewServer(cfg.Server.SocketPath, cfg.Server.HTTPAddr, handlers, logger)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return srv.Start()
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
	return srv
}

// watchServer stops the app when a background listener fails.
func watchServer(lc fx.Lifecycle, srv *engine.Server, shutdowner fx.Shutdowner, logger logging.Logger) {
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				select {
				case err := <-srv.Errors():
					logger.Errorf("Server failed: %v", err)
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				case <-done:
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			close(done)
			return nil
		},
	})
}
