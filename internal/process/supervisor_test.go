package process

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

// record keeps the value of every "line" attribute.
func (l *recordingLogger) record(args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := 0; i+1 < len(args); i += 2 {
		if args[i] == "line" {
			l.lines = append(l.lines, args[i+1].(string))
		}
	}
}

func (l *recordingLogger) Debug(_ string, args ...any) { l.record(args) }
func (l *recordingLogger) Info(_ string, args ...any)  { l.record(args) }
func (l *recordingLogger) Warn(_ string, args ...any)  { l.record(args) }
func (l *recordingLogger) Error(_ string, args ...any) { l.record(args) }

func (l *recordingLogger) output() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

func shell(script string) Config {
	return Config{Name: "test", Binary: "/bin/sh", Args: []string{"-c", script}}
}

func TestNew_Defaults(t *testing.T) {
	s := New(Config{Binary: "/usr/bin/hwrd"})

	assert.Equal(t, "/usr/bin/hwrd", s.cfg.Name)
	assert.Equal(t, defaultRestartDelay, s.cfg.RestartDelay)
	assert.Equal(t, defaultMaxRestartDelay, s.cfg.MaxRestartDelay)
	assert.Equal(t, defaultStableAfter, s.cfg.StableAfter)
	assert.Equal(t, defaultGracefulTimeout, s.cfg.GracefulTimeout)
	assert.Equal(t, StatusStopped, s.Status())
	assert.Error(t, s.HealthCheck(context.Background()))
}

func TestSupervisor_StartStop(t *testing.T) {
	s := New(shell("sleep 30"))
	require.NoError(t, s.Start(context.Background()))

	st := s.Stats()
	assert.Equal(t, StatusRunning, st.Status)
	assert.Positive(t, st.PID)
	assert.NoError(t, s.HealthCheck(context.Background()))

	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyRunning)

	require.NoError(t, s.Stop())
	assert.Equal(t, StatusStopped, s.Status())
	assert.Zero(t, s.Stats().PID)
	assert.Error(t, s.HealthCheck(context.Background()))

	// Stop is idempotent
	require.NoError(t, s.Stop())
}

func TestSupervisor_MissingBinary(t *testing.T) {
	s := New(Config{Name: "missing", Binary: "/nonexistent/hwrd"})

	require.Error(t, s.Start(context.Background()))
	assert.Equal(t, StatusFailed, s.Status())
	assert.NotEmpty(t, s.Stats().LastError)
	require.NoError(t, s.Stop())
}

func TestSupervisor_RestartsThenGivesUp(t *testing.T) {
	cfg := shell("exit 3")
	cfg.RestartDelay = 10 * time.Millisecond
	cfg.MaxRestarts = 2
	s := New(cfg)

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return s.Status() == StatusFailed }, 5*time.Second, 10*time.Millisecond)

	st := s.Stats()
	assert.Equal(t, 2, st.Restarts)
	assert.Contains(t, st.LastError, "exit status 3")
	require.NoError(t, s.Stop())
}

func TestSupervisor_StopEscalatesToKill(t *testing.T) {
	cfg := shell(`trap "" TERM; sleep 30`)
	cfg.GracefulTimeout = 100 * time.Millisecond
	s := New(cfg)
	require.NoError(t, s.Start(context.Background()))

	stopped := make(chan struct{})
	go func() {
		s.Stop() //nolint:errcheck // checked via status
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after SIGKILL")
	}
	assert.Equal(t, StatusStopped, s.Status())
}

func TestSupervisor_ContextCancelStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(shell("sleep 30"))
	require.NoError(t, s.Start(ctx))

	cancel()
	require.Eventually(t, func() bool { return s.Status() == StatusStopped }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, s.Stop())
}

func TestSupervisor_LogsOutputLines(t *testing.T) {
	logger := &recordingLogger{}
	s := New(shell(`echo ready; echo "axis homed" >&2; sleep 30`))
	s.SetLogger(logger)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop() //nolint:errcheck // Test cleanup

	require.Eventually(t, func() bool { return len(logger.output()) == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, []string{"ready", "axis homed"}, logger.output())
}

func TestLineLogger_SplitsPartialWrites(t *testing.T) {
	logger := &recordingLogger{}
	w := &lineLogger{logger: logger, name: "x", stream: "stdout"}

	for _, chunk := range []string{"mo", "tor ok\r\npa", "rtial", "\n\n"} {
		n, err := w.Write([]byte(chunk))
		require.NoError(t, err)
		assert.Equal(t, len(chunk), n)
	}
	assert.Equal(t, []string{"motor ok", "partial"}, logger.output())
}
