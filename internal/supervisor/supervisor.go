// Package supervisor forks ombud's N worker processes, each sharing the
// listening port via SO_REUSEPORT, and tears every one of them down on
// SIGINT. It's the Go analogue of the teacher's daemonizing re-exec,
// generalized from one child to an N-way fan-out.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strconv"
	"sync"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/avtobiff/ombud/cfg"
	"github.com/avtobiff/ombud/internal/logger"
)

// ResolvePort returns port if it's a valid TCP port, else cfg.DefaultPort.
// Invalid positional arguments fall back silently, matching the original
// CLI's behavior.
func ResolvePort(port int) int {
	if port < 1 || port > 65535 {
		return cfg.DefaultPort
	}
	return port
}

// ResolveWorkers returns workers if it's positive and under the process's
// RLIMIT_NPROC, else runtime.NumCPU(). Invalid values fall back silently.
func ResolveWorkers(workers int) int {
	if workers <= 0 {
		return runtime.NumCPU()
	}

	var rlimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NPROC, &rlimit); err == nil {
		if uint64(workers) >= rlimit.Cur {
			return runtime.NumCPU()
		}
	}
	return workers
}

// Run resolves port/workers, launches one re-exec'd worker process per
// slot, and blocks until every worker exits or a SIGINT tears them all
// down.
func Run(ctx context.Context, c *cfg.Config) error {
	port := ResolvePort(c.Port)
	workers := ResolveWorkers(c.Workers)

	logger.Infof("supervisor: starting %d workers on port %d", workers, port)

	var mu sync.Mutex
	pids := make([]int, 0, workers)

	group, gctx := errgroup.WithContext(ctx)
	cmds := make([]*exec.Cmd, workers)

	for i := 0; i < workers; i++ {
		i := i
		cmd := buildWorkerCmd(i, port, c)
		cmds[i] = cmd

		if err := cmd.Start(); err != nil {
			return fmt.Errorf("supervisor: start worker %d: %w", i, err)
		}
		workerLog := logger.With("worker", i, "pid", cmd.Process.Pid)
		workerLog.Info("worker started")

		mu.Lock()
		pids = append(pids, cmd.Process.Pid)
		mu.Unlock()

		group.Go(func() error {
			err := cmd.Wait()
			if err != nil {
				workerLog.Warn("worker exited", "err", err)
			} else {
				workerLog.Info("worker exited")
			}
			return err
		})
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			logger.Infof("supervisor: SIGINT received, killing %d workers", len(pids))
			mu.Lock()
			for _, pid := range pids {
				logger.With("pid", pid).Warn("killing worker")
				_ = syscall.Kill(pid, syscall.SIGKILL)
			}
			mu.Unlock()
		case <-gctx.Done():
		}
	}()

	return group.Wait()
}

// buildWorkerCmd constructs the re-exec command for worker index i,
// forwarding every ambient-stack flag so the worker's cobra/viper parse is
// identical to the supervisor's own, just with --worker-index set.
func buildWorkerCmd(index, port int, c *cfg.Config) *exec.Cmd {
	args := []string{
		strconv.Itoa(port),
		"--worker-index", strconv.Itoa(index),
		"--cache-dir", c.CacheDir,
		"--log-format", c.Logging.Format,
		"--log-severity", c.Logging.Severity,
		"--metrics-port", strconv.Itoa(c.Metrics.Port),
	}
	if c.Logging.FilePath != "" {
		args = append(args, "--log-file", c.Logging.FilePath)
	}

	cmd := exec.Command(os.Args[0], args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	return cmd
}
