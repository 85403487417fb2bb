package daemon

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"

	"github.com/relayhub/relay/internal/bus"
	"github.com/relayhub/relay/internal/config"
	"github.com/relayhub/relay/internal/delivery"
	"github.com/relayhub/relay/internal/gql"
	"github.com/relayhub/relay/internal/home"
	"github.com/relayhub/relay/internal/httpapi"
	"github.com/relayhub/relay/internal/lock"
	"github.com/relayhub/relay/internal/logging"
	"github.com/relayhub/relay/internal/presence"
	"github.com/relayhub/relay/internal/registry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the bootstrap options passed to the fx module. Empty fields
// fall back to the config file and then to built-in defaults.
type Params struct {
	ConfigPath string
	Listen     string // optional override for the config listen address
	DataFile   string // optional override for the snapshot path
}

// Module returns the fx module for the relay daemon, composing all providers
// and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("relayd",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideLock,
			provideBus,
			provideRegistry,
			provideDeliveryClient,
			providePoller,
			provideAPI,
			provideResolver,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	path := p.ConfigPath
	if path == "" {
		path = home.ConfigPath()
	}

	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = config.Default()
	} else if err != nil {
		return nil, err
	}

	if p.Listen != "" {
		cfg.Listen = p.Listen
	}
	if p.DataFile != "" {
		cfg.DataFile = p.DataFile
	}
	if cfg.DataFile == "" {
		cfg.DataFile = home.DataPath()
	}
	return cfg, nil
}

func provideLogger() (*zap.Logger, error) {
	if err := home.EnsureDir(); err != nil {
		return nil, err
	}
	return logging.New(home.LogPath())
}

func provideLock(cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	dataDir := filepath.Dir(cfg.DataFile)
	logger.Info("acquiring data lock", zap.String("dir", dataDir))
	l, err := lock.Acquire(dataDir)
	if err != nil {
		return nil, err
	}
	logger.Info("data lock acquired")
	return l, nil
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideRegistry(cfg *config.Config, logger *zap.Logger) (*registry.Registry, error) {
	return registry.Load(cfg.DataFile, logger)
}

func provideDeliveryClient(cfg *config.Config, logger *zap.Logger) *delivery.Client {
	return delivery.NewClient(cfg.ProbeTimeout.Duration, logger)
}

func providePoller(reg *registry.Registry, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *presence.Poller {
	return presence.NewPoller(reg, b, logger, cfg.PollInterval.Duration, cfg.ProbeTimeout.Duration)
}

func provideAPI(reg *registry.Registry, d *delivery.Client, b *bus.Bus, logger *zap.Logger) *httpapi.Handler {
	return httpapi.New(reg, d, b, logger)
}

func provideResolver(reg *registry.Registry, d *delivery.Client, b *bus.Bus, logger *zap.Logger) *gql.Resolver {
	return gql.NewResolver(reg, d, b, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, poller *presence.Poller, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Serve HTTP in the background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()

			// Presence polling runs until shutdown.
			poller.Start(context.Background())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			poller.Stop()
			srv.Stop(ctx)
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("relayd stopped")
			return nil
		},
	})
}
