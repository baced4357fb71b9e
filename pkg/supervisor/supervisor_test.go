package supervisor

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waycrest/waycrest/pkg/telemetry"
)

// writeFixture writes a descriptor whose config process is the given
// command, with the control socket confined to the test's temp dir.
func writeFixture(t *testing.T, command string) string {
	t.Helper()
	dir := t.TempDir()
	content := "command: [\"" + command + "\", \"60\"]\nsocket_dir: " + dir + "\n"
	path := filepath.Join(dir, "metaconfig.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func startSupervisor(t *testing.T, descPath string) *Supervisor {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	s := New(descPath, telemetry.Nop(), nil)
	require.NoError(t, s.Start(ctx))
	t.Cleanup(func() {
		cancel()
		s.Stop()
	})
	return s
}

func TestStartBindsSocketAndSpawns(t *testing.T) {
	s := startSupervisor(t, writeFixture(t, "/bin/sleep"))

	require.NotEmpty(t, s.SocketPath())
	_, err := os.Stat(s.SocketPath())
	require.NoError(t, err, "control socket must exist after Start")
	assert.NotEmpty(t, s.Generation())
}

func TestAcceptedConnectionBecomesEvent(t *testing.T) {
	s := startSupervisor(t, writeFixture(t, "/bin/sleep"))

	conn, err := net.Dial("unix", s.SocketPath())
	require.NoError(t, err)
	defer conn.Close()

	select {
	case ev := <-s.Events():
		require.Equal(t, EventSessionConnected, ev.Type)
		require.NotNil(t, ev.Conn)
		ev.Conn.Close()
	case <-time.After(2 * time.Second):
		t.Fatal("no SessionConnected event for an accepted connection")
	}
}

func TestCrashTriggersRespawn(t *testing.T) {
	// /bin/false exits immediately with a failure status.
	dir := t.TempDir()
	content := "command: [\"/bin/false\"]\nsocket_dir: " + dir + "\n"
	descPath := filepath.Join(dir, "metaconfig.yaml")
	require.NoError(t, os.WriteFile(descPath, []byte(content), 0o644))

	s := startSupervisor(t, descPath)
	first := s.Generation()

	select {
	case ev := <-s.Events():
		require.Equal(t, EventProcessExited, ev.Type)
		assert.Equal(t, first, ev.Generation)
		assert.Error(t, ev.Err, "crash must carry the exit error")
	case <-time.After(2 * time.Second):
		t.Fatal("no ProcessExited event after a crash")
	}

	// A fresh generation appears once the respawn delay elapses.
	require.Eventually(t, func() bool {
		gen := s.Generation()
		return gen != "" && gen != first
	}, 3*time.Second, 50*time.Millisecond, "config process was not respawned")
}

func TestStopDuringRespawnWindow(t *testing.T) {
	// /bin/false crashes instantly, so Stop lands inside the respawn
	// delay. Stop must return promptly and no relaunch may follow it.
	dir := t.TempDir()
	content := "command: [\"/bin/false\"]\nsocket_dir: " + dir + "\n"
	descPath := filepath.Join(dir, "metaconfig.yaml")
	require.NoError(t, os.WriteFile(descPath, []byte(content), 0o644))

	s := startSupervisor(t, descPath)

	select {
	case ev := <-s.Events():
		require.Equal(t, EventProcessExited, ev.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no ProcessExited event after a crash")
	}

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop blocked on a respawn scheduled after shutdown began")
	}

	// The event channel closes once every monitor goroutine is gone.
	for range s.Events() {
	}
}

func TestReloadReplacesGeneration(t *testing.T) {
	s := startSupervisor(t, writeFixture(t, "/bin/sleep"))
	first := s.Generation()

	require.NoError(t, s.Reload(context.Background()))
	assert.NotEqual(t, first, s.Generation())

	// The old process's exit during reload must not surface as a crash.
	select {
	case ev := <-s.Events():
		if ev.Type == EventProcessExited {
			t.Errorf("reload produced a ProcessExited event for generation %s", ev.Generation)
		}
	case <-time.After(respawnDelay * 2):
	}
}

func TestReloadRejectsBrokenDescriptor(t *testing.T) {
	descPath := writeFixture(t, "/bin/sleep")
	s := startSupervisor(t, descPath)
	first := s.Generation()

	require.NoError(t, os.WriteFile(descPath, []byte("command: []\n"), 0o644))
	require.Error(t, s.Reload(context.Background()), "invalid descriptor must abort the reload")
	assert.Equal(t, first, s.Generation(), "failed reload must keep the running process")
}

func TestDescriptorEditEmitsEvent(t *testing.T) {
	descPath := writeFixture(t, "/bin/sleep")
	s := startSupervisor(t, descPath)

	// Give fsnotify a moment to arm before editing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(descPath, []byte("command: [\"/bin/sleep\", \"30\"]\n"), 0o644))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-s.Events():
			if ev.Type == EventDescriptorChanged {
				return
			}
		case <-deadline:
			t.Fatal("no DescriptorChanged event after editing the descriptor")
		}
	}
}
