// Package session manages one control connection from the config process.
// The session decodes frames fed to it by the compositor loop, dispatches
// them to a handler, and guarantees that every request's response is
// written before any later frame from the same stream is processed.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/waycrest/waycrest/pkg/protocol"
	"github.com/waycrest/waycrest/pkg/telemetry"
)

// Handler is implemented by the compositor's dispatcher.
type Handler interface {
	// HandleRequest processes one request and returns the response to
	// write. It must always return a response for a live session; protocol
	// level failures are signaled by wrapping protocol.ErrProtocol.
	HandleRequest(ctx context.Context, env *protocol.Envelope) (*protocol.Envelope, error)

	// HandleMessage processes one one-way message.
	HandleMessage(ctx context.Context, env *protocol.Envelope) error
}

// State is the session lifecycle state.
type State uint8

const (
	StateConnected State = iota
	StateClosed
)

// Session is a single control connection. All methods are called from the
// compositor loop; the mutex only guards Close against the supervisor's
// teardown path.
type Session struct {
	id      string
	conn    io.WriteCloser
	handler Handler
	logger  *telemetry.Logger
	metrics *telemetry.Metrics

	buf   protocol.FrameBuffer
	state State
	mu    sync.Mutex
}

// New creates a session over an accepted connection.
func New(conn io.WriteCloser, handler Handler, logger *telemetry.Logger, metrics *telemetry.Metrics) *Session {
	id := uuid.NewString()
	s := &Session{
		id:      id,
		conn:    conn,
		handler: handler,
		logger:  logger.NewComponentLogger("session").WithSession(id),
		metrics: metrics,
	}
	if metrics != nil {
		metrics.RecordSessionOpened()
	}
	s.logger.Info("control session opened")
	return s
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Feed consumes bytes read from the connection. Complete frames are
// dispatched in arrival order; a request's response is written before the
// next frame is examined. Partial frames stay buffered.
//
// Any framing or decode failure is session-fatal: the session closes and
// the error is returned so the supervisor can respawn the config process.
func (s *Session) Feed(ctx context.Context, data []byte) error {
	if s.State() == StateClosed {
		return fmt.Errorf("session %s is closed", s.id)
	}

	s.buf.Feed(data)
	for {
		env, err := s.buf.Next()
		if err != nil {
			if s.metrics != nil {
				s.metrics.RecordDecodeFailure()
			}
			s.Close("protocol error")
			return fmt.Errorf("session %s: %w", s.id, err)
		}
		if env == nil {
			return nil
		}
		if err := s.dispatch(ctx, env); err != nil {
			s.Close("dispatch error")
			return err
		}
	}
}

func (s *Session) dispatch(ctx context.Context, env *protocol.Envelope) error {
	if s.metrics != nil {
		s.metrics.RecordMessage(string(env.Kind), env.Type)
	}

	switch env.Kind {
	case protocol.KindRequest:
		resp, err := s.handler.HandleRequest(ctx, env)
		if err != nil {
			return fmt.Errorf("session %s: request %s: %w", s.id, env.Type, err)
		}
		if err := s.write(resp); err != nil {
			return err
		}
		if s.metrics != nil {
			s.metrics.RecordResponse()
		}
		return nil

	case protocol.KindMessage:
		if err := s.handler.HandleMessage(ctx, env); err != nil {
			return fmt.Errorf("session %s: message %s: %w", s.id, env.Type, err)
		}
		return nil

	default:
		// The config process must never send response or event frames.
		return fmt.Errorf("session %s: %w: unexpected %s frame from peer", s.id, protocol.ErrProtocol, env.Kind)
	}
}

// SendEvent writes a compositor-originated event to the config process.
func (s *Session) SendEvent(eventType string, body any) error {
	if s.State() == StateClosed {
		return fmt.Errorf("session %s is closed", s.id)
	}
	env, err := protocol.NewEvent(eventType, body)
	if err != nil {
		return err
	}
	if err := s.write(env); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordEvent(eventType)
	}
	return nil
}

func (s *Session) write(env *protocol.Envelope) error {
	frame, err := protocol.EncodeFrame(env)
	if err != nil {
		return fmt.Errorf("session %s: encoding %s: %w", s.id, env.Type, err)
	}
	if _, err := s.conn.Write(frame); err != nil {
		return fmt.Errorf("session %s: write: %w", s.id, err)
	}
	return nil
}

// Close shuts the session down. Safe to call more than once; only the
// first call takes effect.
func (s *Session) Close(reason string) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.mu.Unlock()

	if err := s.conn.Close(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		s.logger.WithError(err).Debug("closing control connection")
	}
	if s.metrics != nil {
		s.metrics.RecordSessionClosed(reason)
	}
	s.logger.Infof("control session closed: %s", reason)
}
