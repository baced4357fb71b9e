// Package client implements the config-process side of the control
// protocol: a connection to the compositor's unix socket with blocking
// requests, fire-and-forget messages, and an event channel.
package client

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/waycrest/waycrest/pkg/protocol"
	"github.com/waycrest/waycrest/pkg/telemetry"
)

// SocketEnv is the environment variable the compositor exports to the
// config process with the control socket path.
const SocketEnv = "WAYCREST_SOCKET"

// Client is a control connection from the config process's point of
// view. One request may be in flight at a time; the compositor answers
// requests strictly in order, so a single pending slot is all there is.
type Client struct {
	conn   net.Conn
	logger *telemetry.Logger

	writeMu sync.Mutex

	responses chan *protocol.Envelope
	events    chan *protocol.Envelope
	readErr   error
	readDone  chan struct{}

	// Responses carry no correlation id on the wire; strict ordering is
	// the pairing. These counters keep that pairing intact when a request
	// is abandoned via its context: the abandoned response is consumed or
	// dropped instead of answering the next request.
	seqMu      sync.Mutex
	reqSeq     uint64
	respSeq    uint64
	discardSeq uint64

	closeOnce sync.Once
}

// Dial connects to the compositor's control socket.
func Dial(socketPath string, logger *telemetry.Logger) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to compositor: %w", err)
	}
	return newClient(conn, logger), nil
}

// DialEnv connects using the socket path the compositor exported.
func DialEnv(logger *telemetry.Logger) (*Client, error) {
	path := os.Getenv(SocketEnv)
	if path == "" {
		return nil, fmt.Errorf("%s is not set; not launched by the compositor?", SocketEnv)
	}
	return Dial(path, logger)
}

// New wraps an existing connection. Tests use this with net.Pipe.
func New(conn net.Conn, logger *telemetry.Logger) *Client {
	return newClient(conn, logger)
}

func newClient(conn net.Conn, logger *telemetry.Logger) *Client {
	c := &Client{
		conn:      conn,
		logger:    logger.NewComponentLogger("client"),
		responses: make(chan *protocol.Envelope, 1),
		events:    make(chan *protocol.Envelope, 32),
		readDone:  make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// readLoop decodes inbound frames and routes responses and events to
// their channels until the connection dies.
func (c *Client) readLoop() {
	defer close(c.readDone)
	defer close(c.events)

	var fb protocol.FrameBuffer
	buf := make([]byte, 4096)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			fb.Feed(buf[:n])
			for {
				env, derr := fb.Next()
				if derr != nil {
					c.readErr = derr
					return
				}
				if env == nil {
					break
				}
				switch env.Kind {
				case protocol.KindResponse:
					c.seqMu.Lock()
					c.respSeq++
					drop := c.respSeq <= c.discardSeq
					c.seqMu.Unlock()
					if drop {
						c.logger.Debugf("dropping response %s for an abandoned request", env.Type)
						continue
					}
					c.responses <- env
				case protocol.KindEvent:
					select {
					case c.events <- env:
					default:
						c.logger.Warnf("dropping event %s: event queue full", env.Type)
					}
				default:
					c.readErr = fmt.Errorf("%w: unexpected %s frame from compositor", protocol.ErrProtocol, env.Kind)
					return
				}
			}
		}
		if err != nil {
			c.readErr = err
			return
		}
	}
}

// Request sends a request and decodes the matching response body into
// out. Pass nil to discard the body. An unsupported response is reported
// as an error carrying the compositor's answer.
func (c *Client) Request(ctx context.Context, reqType string, body, out any) error {
	env, err := protocol.NewRequest(reqType, body)
	if err != nil {
		return err
	}

	if err := c.write(env); err != nil {
		return err
	}

	// A seq is taken only for requests the compositor actually received,
	// so every response pairs with exactly one seq.
	c.seqMu.Lock()
	c.reqSeq++
	seq := c.reqSeq
	c.seqMu.Unlock()

	select {
	case <-ctx.Done():
		c.seqMu.Lock()
		if c.respSeq >= seq {
			// The response was already routed to the pending slot; take
			// it so the next request does not read a stale answer.
			c.seqMu.Unlock()
			<-c.responses
		} else {
			c.discardSeq = seq
			c.seqMu.Unlock()
		}
		return ctx.Err()
	case <-c.readDone:
		return fmt.Errorf("connection lost awaiting %s response: %w", reqType, c.readErr)
	case resp := <-c.responses:
		if resp.Type == protocol.TypeUnsupported {
			return fmt.Errorf("compositor does not support request %q", reqType)
		}
		if out == nil {
			return nil
		}
		return protocol.Unmarshal(resp.Body, out)
	}
}

// Send delivers a one-way message. No acknowledgement exists or is
// expected.
func (c *Client) Send(msgType string, body any) error {
	env, err := protocol.NewMessage(msgType, body)
	if err != nil {
		return err
	}
	return c.write(env)
}

// Events returns the inbound event channel. Closed when the connection
// dies.
func (c *Client) Events() <-chan *protocol.Envelope {
	return c.events
}

func (c *Client) write(env *protocol.Envelope) error {
	frame, err := protocol.EncodeFrame(env)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.conn.Write(frame); err != nil {
		return fmt.Errorf("write to compositor failed: %w", err)
	}
	return nil
}

// Close shuts the connection down.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

// Convenience wrappers for the common operations.

// GetWindows returns all window ids.
func (c *Client) GetWindows(ctx context.Context) ([]uint32, error) {
	var resp protocol.WindowsResponse
	if err := c.Request(ctx, protocol.TypeGetWindows, nil, &resp); err != nil {
		return nil, err
	}
	return resp.WindowIDs, nil
}

// GetWindowProps returns one window's properties. All fields unset means
// the window no longer exists.
func (c *Client) GetWindowProps(ctx context.Context, id uint32) (protocol.WindowPropsResponse, error) {
	var resp protocol.WindowPropsResponse
	err := c.Request(ctx, protocol.TypeGetWindowProps, protocol.GetWindowPropsRequest{WindowID: id}, &resp)
	return resp, err
}

// GetOutputs returns all output ids.
func (c *Client) GetOutputs(ctx context.Context) ([]uint32, error) {
	var resp protocol.OutputsResponse
	if err := c.Request(ctx, protocol.TypeGetOutputs, nil, &resp); err != nil {
		return nil, err
	}
	return resp.OutputIDs, nil
}

// GetTags returns all tag ids.
func (c *Client) GetTags(ctx context.Context) ([]uint32, error) {
	var resp protocol.TagsResponse
	if err := c.Request(ctx, protocol.TypeGetTags, nil, &resp); err != nil {
		return nil, err
	}
	return resp.TagIDs, nil
}

// GetTagProps returns one tag's properties.
func (c *Client) GetTagProps(ctx context.Context, id uint32) (protocol.TagPropsResponse, error) {
	var resp protocol.TagPropsResponse
	err := c.Request(ctx, protocol.TypeGetTagProps, protocol.GetTagPropsRequest{TagID: id}, &resp)
	return resp, err
}

// AddTags creates tags on an output by name.
func (c *Client) AddTags(outputName string, tagNames ...string) error {
	return c.Send(protocol.TypeAddTags, protocol.AddTagsMsg{OutputName: outputName, TagNames: tagNames})
}

// AddWindowRule declares a window rule.
func (c *Client) AddWindowRule(rule protocol.AddWindowRuleMsg) error {
	return c.Send(protocol.TypeAddWindowRule, rule)
}
