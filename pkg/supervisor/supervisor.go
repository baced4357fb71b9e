// Package supervisor owns the config process lifecycle: it creates the
// control socket, spawns the config process described by the metaconfig
// descriptor, respawns it when it crashes, and hands accepted control
// connections to the compositor loop. Compositor entity state is never
// touched from here; a config crash must not disturb windows or tags.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/waycrest/waycrest/pkg/metaconfig"
	"github.com/waycrest/waycrest/pkg/telemetry"
)

// SocketName is the control socket's file name inside the descriptor's
// socket directory.
const SocketName = "waycrest.sock"

// respawnDelay spaces out relaunches after a crash so a config process
// that dies instantly cannot spin the supervisor.
const respawnDelay = 500 * time.Millisecond

// EventType discriminates supervisor events.
type EventType uint8

const (
	// EventSessionConnected carries a freshly accepted control connection.
	EventSessionConnected EventType = iota
	// EventProcessExited reports a config process exit, crash or not.
	EventProcessExited
	// EventDescriptorChanged reports a metaconfig descriptor edit on disk.
	EventDescriptorChanged
)

// Event is delivered on the supervisor's event channel and consumed by
// the compositor loop.
type Event struct {
	Type       EventType
	Generation string
	Conn       net.Conn
	Err        error
}

// Supervisor runs the config process and the control listener.
type Supervisor struct {
	descPath string
	logger   *telemetry.Logger
	metrics  *telemetry.Metrics

	events chan Event

	mu         sync.Mutex
	desc       *metaconfig.Descriptor
	listener   net.Listener
	cmd        *exec.Cmd
	generation string
	stopping   bool
	crashes    int

	watcher  *fsnotify.Watcher
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a supervisor for the descriptor at descPath. Nothing runs
// until Start.
func New(descPath string, logger *telemetry.Logger, metrics *telemetry.Metrics) *Supervisor {
	return &Supervisor{
		descPath: descPath,
		logger:   logger.NewComponentLogger("supervisor"),
		metrics:  metrics,
		events:   make(chan Event, 16),
	}
}

// Events returns the channel the compositor loop consumes.
func (s *Supervisor) Events() <-chan Event { return s.events }

// SocketPath returns the control socket path. Valid after Start.
func (s *Supervisor) SocketPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.desc == nil {
		return ""
	}
	return filepath.Join(s.desc.SocketDir, SocketName)
}

// Generation returns the current config process generation id.
func (s *Supervisor) Generation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Start loads the descriptor, binds the control socket, begins watching
// the descriptor file, and launches the config process.
func (s *Supervisor) Start(ctx context.Context) error {
	desc, err := metaconfig.Load(s.descPath)
	if err != nil {
		return err
	}

	socketPath := filepath.Join(desc.SocketDir, SocketName)
	if err := os.MkdirAll(desc.SocketDir, 0o700); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}
	// A stale socket from a dead compositor blocks the bind.
	if err := os.Remove(socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("failed to bind control socket: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		listener.Close()
		return fmt.Errorf("failed to create descriptor watcher: %w", err)
	}
	// Watch the directory: editors replace files rather than write in
	// place, which would drop a watch on the file itself.
	if err := watcher.Add(filepath.Dir(s.descPath)); err != nil {
		watcher.Close()
		listener.Close()
		return fmt.Errorf("failed to watch descriptor: %w", err)
	}

	s.mu.Lock()
	s.desc = desc
	s.listener = listener
	s.watcher = watcher
	s.mu.Unlock()

	s.wg.Add(2)
	go s.acceptLoop()
	go s.watchLoop()

	return s.launch(ctx)
}

// launch spawns a new config process under a fresh generation id. A
// no-op once Stop has begun: waitFor calls launch after the respawn
// delay, and a relaunch at that point would orphan the process and
// leave Stop waiting on its monitor forever.
func (s *Supervisor) launch(ctx context.Context) error {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return nil
	}
	desc := s.desc
	socketPath := filepath.Join(desc.SocketDir, SocketName)
	gen := uuid.NewString()
	s.generation = gen

	cmd := exec.CommandContext(ctx, desc.Command[0], desc.Command[1:]...)
	cmd.Dir = desc.Dir
	cmd.Env = desc.Environ(socketPath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	s.cmd = cmd
	s.mu.Unlock()

	log := s.logger.WithGeneration(gen)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to launch config process: %w", err)
	}
	log.Infof("config process launched: pid=%d command=%v", cmd.Process.Pid, desc.Command)
	if s.metrics != nil {
		s.metrics.RecordConfigLaunch()
	}

	s.wg.Add(1)
	go s.waitFor(ctx, cmd, gen)
	return nil
}

// waitFor monitors one config process until it exits, then respawns it
// unless the supervisor is shutting down or reloading.
func (s *Supervisor) waitFor(ctx context.Context, cmd *exec.Cmd, gen string) {
	defer s.wg.Done()

	err := cmd.Wait()
	log := s.logger.WithGeneration(gen)

	s.mu.Lock()
	stale := s.generation != gen
	stopping := s.stopping
	if !stale && !stopping {
		s.crashes++
	}
	crashes := s.crashes
	s.mu.Unlock()

	if stale || stopping {
		log.Debug("config process exited during shutdown or reload")
		return
	}

	if err != nil {
		log.WithError(err).Warnf("config process crashed (crash #%d), respawning", crashes)
	} else {
		log.Warnf("config process exited cleanly (exit #%d), respawning", crashes)
	}
	if s.metrics != nil {
		s.metrics.RecordConfigCrash()
	}
	s.events <- Event{Type: EventProcessExited, Generation: gen, Err: err}

	select {
	case <-ctx.Done():
		return
	case <-time.After(respawnDelay):
	}

	if err := s.launch(ctx); err != nil {
		log.WithError(err).Error("respawn failed")
	}
}

// Reload re-reads the descriptor and replaces the config process. Entity
// state and the control socket survive; only the process and its rules
// generation change.
func (s *Supervisor) Reload(ctx context.Context) error {
	desc, err := metaconfig.Load(s.descPath)
	if err != nil {
		return fmt.Errorf("reload aborted, descriptor invalid: %w", err)
	}

	s.mu.Lock()
	old := s.cmd
	oldGen := s.generation
	s.desc.Command = desc.Command
	s.desc.Dir = desc.Dir
	s.desc.Envs = desc.Envs
	// SocketDir changes require a restart; the listener is already bound.
	s.generation = "" // marks the old process stale before the kill
	s.mu.Unlock()

	if old != nil && old.Process != nil {
		s.logger.WithGeneration(oldGen).Info("terminating config process for reload")
		if err := old.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			s.logger.WithError(err).Warn("failed to kill old config process")
		}
	}

	if s.metrics != nil {
		s.metrics.RecordConfigReload()
	}
	return s.launch(ctx)
}

// acceptLoop hands every accepted control connection to the compositor.
func (s *Supervisor) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			// Listener closed during shutdown.
			return
		}
		s.events <- Event{Type: EventSessionConnected, Generation: s.Generation(), Conn: conn}
	}
}

// watchLoop forwards descriptor edits as DescriptorChanged events.
func (s *Supervisor) watchLoop() {
	defer s.wg.Done()
	name := filepath.Base(s.descPath)
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			s.logger.Debugf("descriptor changed on disk: %s", ev.Op)
			s.events <- Event{Type: EventDescriptorChanged}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.WithError(err).Warn("descriptor watcher error")
		}
	}
}

// Stop terminates the config process and tears down the listener and
// watcher. The event channel closes once all goroutines drain. Safe to
// call more than once.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(s.stop)
}

func (s *Supervisor) stop() {
	s.mu.Lock()
	s.stopping = true
	cmd := s.cmd
	listener := s.listener
	watcher := s.watcher
	s.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			s.logger.WithError(err).Debug("killing config process")
		}
	}
	if listener != nil {
		listener.Close()
	}
	if watcher != nil {
		watcher.Close()
	}

	s.wg.Wait()
	close(s.events)
}
