package bridge

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
)

// worker owns the spawned compatibility-runtime child process and its
// captured output. Killing it is the only way to abort an in-flight
// protocol call; there is no cancellation token on the wire.
type worker struct {
	cmd    *exec.Cmd
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

// spawnWorker launches cfg.Runtime (e.g. "wine") against cfg.WorkerPath,
// with WINEPREFIX set from cfg.Prefix when non-empty, capturing standard
// output and error for diagnostics.
func spawnWorker(cfg RuntimeConfig, logger *log.Logger) (*worker, error) {
	var cmd = exec.Command(cfg.Runtime, cfg.WorkerPath)

	if cfg.Prefix != "" {
		cmd.Env = append(cmd.Environ(), "WINEPREFIX="+cfg.Prefix)
	}

	var w = &worker{
		cmd:    cmd,
		stdout: &bytes.Buffer{},
		stderr: &bytes.Buffer{},
	}
	cmd.Stdout = w.stdout
	cmd.Stderr = w.stderr

	logger.Debug("spawning worker", "runtime", cfg.Runtime, "path", cfg.WorkerPath, "prefix", cfg.Prefix)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: spawn %s %s: %v", ErrSetup, cfg.Runtime, cfg.WorkerPath, err)
	}

	return w, nil
}

// kill terminates the worker process and reaps it, ignoring errors: by
// the time teardown calls this, the process may already be gone.
func (w *worker) kill() {
	if w == nil || w.cmd.Process == nil {
		return
	}

	_ = w.cmd.Process.Kill()
	_ = w.cmd.Wait()
}

// connect probes the reserved port range in order and returns the first
// successful connection. If no port accepts a connection before ctx is
// done, it returns a setup error.
func connect(ctx context.Context, cfg RuntimeConfig, logger *log.Logger) (net.Conn, error) {
	var dialer = net.Dialer{}

	for port := cfg.PortRangeStart; port <= cfg.PortRangeEnd; port++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: port probe cancelled: %v", ErrSetup, ctx.Err())
		default:
		}

		var addr = net.JoinHostPort("127.0.0.1", strconv.Itoa(port))

		var conn, err = dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			logger.Debug("connected to worker", "port", port)
			return conn, nil
		}
	}

	return nil, fmt.Errorf("%w: no worker listening in %d-%d", ErrSetup, cfg.PortRangeStart, cfg.PortRangeEnd)
}

// connectWithWarmUp sleeps for cfg.WarmUp to let the worker open its
// listening socket, then probes the port range once. There is no retry
// loop. Load applies withDefaults first, so a zero WarmUp becomes the
// 2-second default and the sleep always runs.
func connectWithWarmUp(ctx context.Context, cfg RuntimeConfig, logger *log.Logger) (net.Conn, error) {
	var timer = time.NewTimer(cfg.WarmUp)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: warm-up cancelled: %v", ErrSetup, ctx.Err())
	case <-timer.C:
	}

	return connect(ctx, cfg, logger)
}
