package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Status is the state of the supervised process.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"
	StatusBackoff Status = "backoff"
	StatusFailed  Status = "failed"
)

// Default timings.
const (
	defaultRestartDelay    = 2 * time.Second
	defaultMaxRestartDelay = time.Minute
	defaultStableAfter     = 30 * time.Second
	defaultGracefulTimeout = 10 * time.Second
)

// ErrAlreadyRunning is returned by Start on a running supervisor.
var ErrAlreadyRunning = errors.New("process already supervised")

// Config describes the supervised process.
type Config struct {
	// Name identifies the process in logs.
	Name string

	Binary string
	Args   []string

	// Env is appended to the parent environment.
	Env []string

	// RestartDelay is the first backoff delay; it doubles per consecutive
	// failure up to MaxRestartDelay.
	RestartDelay    time.Duration
	MaxRestartDelay time.Duration

	// MaxRestarts limits consecutive restarts. 0 means unlimited.
	MaxRestarts int

	// StableAfter is how long a run must last to reset the backoff.
	StableAfter time.Duration

	// GracefulTimeout is the wait between SIGTERM and SIGKILL.
	GracefulTimeout time.Duration
}

// Logger is the subset of logging.Logger the supervisor needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Stats is a point-in-time view of the supervisor.
type Stats struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	PID       int           `json:"pid,omitempty"`
	Uptime    time.Duration `json:"uptime,omitempty"`
	Restarts  int           `json:"restarts"`
	LastError string        `json:"last_error,omitempty"`
}

// Supervisor runs one child process and keeps it alive.
type Supervisor struct {
	cfg    Config
	logger Logger

	mu       sync.RWMutex
	status   Status
	pid      int
	started  time.Time
	restarts int
	lastErr  error
	cancel   context.CancelFunc
	done     chan struct{}
}

// New returns a stopped supervisor. Zero timings take defaults.
func New(cfg Config) *Supervisor {
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = defaultRestartDelay
	}
	if cfg.MaxRestartDelay < cfg.RestartDelay {
		cfg.MaxRestartDelay = max(defaultMaxRestartDelay, cfg.RestartDelay)
	}
	if cfg.StableAfter <= 0 {
		cfg.StableAfter = defaultStableAfter
	}
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = defaultGracefulTimeout
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Binary
	}
	return &Supervisor{cfg: cfg, logger: noopLogger{}, status: StatusStopped}
}

// SetLogger sets the logger. Call before Start.
func (s *Supervisor) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// Start launches the process and returns once it is running. A launch
// failure is returned directly and nothing is supervised.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, s.cfg.Name)
	}
	s.restarts = 0
	s.lastErr = nil
	s.mu.Unlock()

	cmd, err := s.launch()
	if err != nil {
		s.setExited(StatusFailed, err)
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go s.supervise(runCtx, cmd, done)
	return nil
}

// Stop terminates the process and ends supervision. Stop on a stopped
// supervisor is a no-op.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	<-done

	s.mu.Lock()
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()
	return nil
}

// HealthCheck reports an error unless the process is running.
func (s *Supervisor) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s health check: %w", s.cfg.Name, err)
	}
	st := s.Stats()
	if st.Status != StatusRunning {
		if st.LastError != "" {
			return fmt.Errorf("%s %s: %s", s.cfg.Name, st.Status, st.LastError)
		}
		return fmt.Errorf("%s %s", s.cfg.Name, st.Status)
	}
	return nil
}

// Status returns the current status.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Stats returns the current statistics.
func (s *Supervisor) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{
		Name:     s.cfg.Name,
		Status:   s.status,
		PID:      s.pid,
		Restarts: s.restarts,
	}
	if s.status == StatusRunning {
		st.Uptime = time.Since(s.started)
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// launch starts one instance of the process in its own process group.
func (s *Supervisor) launch() (*exec.Cmd, error) {
	cmd := exec.Command(s.cfg.Binary, s.cfg.Args...) //nolint:gosec // binary comes from operator config
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if len(s.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), s.cfg.Env...)
	}
	cmd.Stdout = &lineLogger{logger: s.logger, name: s.cfg.Name, stream: "stdout"}
	cmd.Stderr = &lineLogger{logger: s.logger, name: s.cfg.Name, stream: "stderr"}
	// Grandchildren holding the pipes must not block Wait forever.
	cmd.WaitDelay = s.cfg.GracefulTimeout

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", s.cfg.Name, err)
	}

	s.mu.Lock()
	s.status = StatusRunning
	s.pid = cmd.Process.Pid
	s.started = time.Now()
	s.mu.Unlock()

	s.logger.Info("process started", "name", s.cfg.Name, "pid", cmd.Process.Pid)
	return cmd, nil
}

func (s *Supervisor) supervise(ctx context.Context, cmd *exec.Cmd, done chan<- struct{}) {
	defer close(done)

	delay := s.cfg.RestartDelay
	failures := 0
	for {
		started := time.Now()
		exited := make(chan error, 1)
		go func() { exited <- cmd.Wait() }()

		var err error
		select {
		case err = <-exited:
		case <-ctx.Done():
			s.terminate(cmd, exited)
			s.setExited(StatusStopped, nil)
			s.logger.Info("process stopped", "name", s.cfg.Name)
			return
		}

		if err == nil {
			err = errors.New("exited with status 0")
		}
		if time.Since(started) >= s.cfg.StableAfter {
			delay = s.cfg.RestartDelay
			failures = 0
		}
		failures++

		if s.cfg.MaxRestarts > 0 && failures > s.cfg.MaxRestarts {
			s.setExited(StatusFailed, err)
			s.logger.Error("process failed, giving up", "name", s.cfg.Name, "error", err, "restarts", failures-1)
			return
		}

		s.setExited(StatusBackoff, err)
		s.logger.Warn("process exited, restarting", "name", s.cfg.Name, "error", err, "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.setExited(StatusStopped, err)
			return
		case <-timer.C:
		}
		delay = min(delay*2, s.cfg.MaxRestartDelay)

		s.mu.Lock()
		s.restarts++
		s.mu.Unlock()

		next, lerr := s.launch()
		for lerr != nil {
			s.setExited(StatusBackoff, lerr)
			s.logger.Error("process restart failed", "name", s.cfg.Name, "error", lerr)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				s.setExited(StatusStopped, lerr)
				return
			case <-timer.C:
			}
			next, lerr = s.launch()
		}
		cmd = next
	}
}

// terminate signals the process group and waits for the exit reported on
// exited, escalating to SIGKILL after the grace period.
func (s *Supervisor) terminate(cmd *exec.Cmd, exited <-chan error) {
	pid := cmd.Process.Pid
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		s.logger.Warn("SIGTERM failed", "name", s.cfg.Name, "pid", pid, "error", err)
	}

	timer := time.NewTimer(s.cfg.GracefulTimeout)
	defer timer.Stop()
	select {
	case <-exited:
		return
	case <-timer.C:
	}

	s.logger.Warn("graceful stop timed out, sending SIGKILL", "name", s.cfg.Name, "pid", pid)
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		s.logger.Error("SIGKILL failed", "name", s.cfg.Name, "pid", pid, "error", err)
	}
	<-exited
}

func (s *Supervisor) setExited(status Status, err error) {
	s.mu.Lock()
	s.status = status
	s.pid = 0
	if err != nil {
		s.lastErr = err
	}
	s.mu.Unlock()
}

// lineLogger logs each complete line written to it.
type lineLogger struct {
	logger Logger
	name   string
	stream string
	buf    []byte
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.buf = append(l.buf, p...)
	for {
		i := bytes.IndexByte(l.buf, '\n')
		if i < 0 {
			break
		}
		if line := bytes.TrimRight(l.buf[:i], "\r"); len(line) > 0 {
			l.logger.Debug("process output", "name", l.name, "stream", l.stream, "line", string(line))
		}
		l.buf = l.buf[i+1:]
	}
	return len(p), nil
}
