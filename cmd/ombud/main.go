// Command ombud runs the caching TCP proxy: the supervisor process forks N
// worker processes sharing a listening port, and each worker process runs
// its own reactor event loop.
package main

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/avtobiff/ombud/cfg"
	"github.com/avtobiff/ombud/common"
	"github.com/avtobiff/ombud/internal/cache"
	"github.com/avtobiff/ombud/internal/cli"
	"github.com/avtobiff/ombud/internal/logger"
	"github.com/avtobiff/ombud/internal/metrics"
	"github.com/avtobiff/ombud/internal/netutil"
	"github.com/avtobiff/ombud/internal/reactor"
	"github.com/avtobiff/ombud/internal/supervisor"
)

func main() {
	cmd := cli.NewCommand(run)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cfg.Config) error {
	if err := logger.Init(logger.Config{
		Format:   c.Logging.Format,
		Severity: c.Logging.Severity,
		FilePath: c.Logging.FilePath,
	}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	ctx := context.Background()

	if c.WorkerIndex < 0 {
		defer logger.Close()
		return supervisor.Run(ctx, c)
	}
	return runWorker(ctx, c)
}

// runWorker is the body of a single re-exec'd worker process: it binds the
// shared SO_REUSEPORT listener, opens the cache, and drives the reactor
// until killed. Its three independent resources (the metrics server, the
// listening socket, and the log file) are torn down together through one
// composed shutdown function rather than three separate defers.
func runWorker(ctx context.Context, c *cfg.Config) error {
	logger.Infof("worker %d: starting on port %d, cache-dir %s", c.WorkerIndex, c.Port, c.CacheDir)

	store, err := cache.Open(c.CacheDir)
	if err != nil {
		return fmt.Errorf("worker %d: open cache: %w", c.WorkerIndex, err)
	}

	listenFd, err := netutil.SetupListener(c.Port)
	if err != nil {
		return fmt.Errorf("worker %d: listen: %w", c.WorkerIndex, err)
	}
	closeListener := func(context.Context) error { return unix.Close(listenFd) }

	metricsHandle, shutdownMetrics := startMetrics(c)

	shutdown := common.JoinShutdownFunc(shutdownMetrics, closeListener, func(context.Context) error { return logger.Close() })
	defer shutdown(ctx)

	r, err := reactor.New(listenFd, store, metricsHandle, c.WorkerIndex)
	if err != nil {
		return fmt.Errorf("worker %d: new reactor: %w", c.WorkerIndex, err)
	}

	return r.Run(ctx)
}

// startMetrics returns a real metrics handle bound to a per-worker port
// (offset by worker index, since each worker is its own process with its
// own Prometheus registry) when --metrics-port is set, else a noop handle.
func startMetrics(c *cfg.Config) (metrics.Handle, common.ShutdownFn) {
	if c.Metrics.Port == 0 {
		return metrics.NewNoop(), func(context.Context) error { return nil }
	}

	handle, err := metrics.New()
	if err != nil {
		logger.Errorf("worker %d: metrics init failed, falling back to noop: %v", c.WorkerIndex, err)
		return metrics.NewNoop(), func(context.Context) error { return nil }
	}

	addr := fmt.Sprintf(":%d", c.Metrics.Port+c.WorkerIndex)
	srv, err := metrics.StartServer(addr)
	if err != nil {
		logger.Errorf("worker %d: metrics server failed to start on %s: %v", c.WorkerIndex, addr, err)
		return handle, func(context.Context) error { return nil }
	}

	logger.Infof("worker %d: metrics listening on %s", c.WorkerIndex, addr)
	return handle, srv.Shutdown
}
