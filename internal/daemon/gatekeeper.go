package daemon

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eliteGoblin/focusd/web_mon/internal/infra"
)

// HTTPServer is the extension-facing API server.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// Booter restores session state and installs the default block.
type Booter interface {
	Boot(ctx context.Context, resume bool) error
}

// Registrar advertises the running daemon.
type Registrar interface {
	Acquire(info infra.DaemonInfo) error
	Release(pid int) error
}

// GatekeeperConfig holds gatekeeper daemon configuration.
type GatekeeperConfig struct {
	Listen          string
	AppVersion      string
	ResumeOnRestart bool
	ShutdownTimeout time.Duration
}

// DefaultGatekeeperConfig returns default gatekeeper configuration.
func DefaultGatekeeperConfig() GatekeeperConfig {
	return GatekeeperConfig{
		Listen:          "127.0.0.1:8787",
		ShutdownTimeout: 5 * time.Second,
	}
}

// Gatekeeper runs the API server and the expiry sweeper side by side.
type Gatekeeper struct {
	config    GatekeeperConfig
	sessions  Booter
	sweeper   *Sweeper
	server    HTTPServer
	registrar Registrar
	logger    *zap.Logger
}

// NewGatekeeper creates the gatekeeper daemon.
func NewGatekeeper(
	config GatekeeperConfig,
	sessions Booter,
	sweeper *Sweeper,
	server HTTPServer,
	registrar Registrar,
	logger *zap.Logger,
) *Gatekeeper {
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultGatekeeperConfig().ShutdownTimeout
	}
	return &Gatekeeper{
		config:    config,
		sessions:  sessions,
		sweeper:   sweeper,
		server:    server,
		registrar: registrar,
		logger:    logger,
	}
}

// Run registers the daemon, boots session state and serves until ctx is
// canceled or a component fails.
func (g *Gatekeeper) Run(ctx context.Context) error {
	pid := os.Getpid()
	if g.registrar != nil {
		if err := g.registrar.Acquire(infra.DaemonInfo{
			PID:        pid,
			Listen:     g.config.Listen,
			AppVersion: g.config.AppVersion,
		}); err != nil {
			g.logger.Error("failed to register gatekeeper", zap.Error(err))
			return err
		}
		defer func() {
			if err := g.registrar.Release(pid); err != nil {
				g.logger.Warn("failed to release pid file", zap.Error(err))
			}
		}()
	}

	if err := g.sessions.Boot(ctx, g.config.ResumeOnRestart); err != nil {
		g.logger.Error("failed to boot session state", zap.Error(err))
		return err
	}

	g.logger.Info("gatekeeper daemon started",
		zap.Int("pid", pid),
		zap.String("listen", g.config.Listen))

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := g.sweeper.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), g.config.ShutdownTimeout)
		defer cancel()
		return g.server.Shutdown(shutdownCtx)
	})

	err := group.Wait()
	g.logger.Info("gatekeeper daemon stopping")
	return err
}
