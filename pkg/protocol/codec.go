package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

const (
	// lengthPrefixSize is the fixed width of the frame length prefix.
	lengthPrefixSize = 4

	// MaxFrameSize bounds a single frame's payload. The control protocol
	// carries small state queries and mutations; anything larger is a
	// corrupt or hostile stream.
	MaxFrameSize = 1 << 20
)

// ErrProtocol is the sentinel for session-fatal framing and decoding
// errors. Any error satisfying errors.Is(err, ErrProtocol) must tear down
// the control session; the stream is never partially trusted afterwards.
var ErrProtocol = errors.New("fatal protocol error")

// encMode is the CBOR encoder configured with Core Deterministic Encoding
// (RFC 8949 §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical message always produces identical
// bytes, which keeps frames testable byte-for-byte.
var encMode cbor.EncMode

// decMode is the CBOR decoder configured to accept standard CBOR. Unknown
// fields are ignored for forward compatibility across protocol revisions.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("protocol: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// The envelope body decodes into typed structs, but diagnostic
		// paths decode into any; CBOR's default map type for any-targets
		// is map[interface{}]interface{}, which nothing downstream wants.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("protocol: CBOR decoder initialization failed: " + err.Error())
	}
}

// RawMessage is a raw encoded CBOR value, used to delay body decoding
// until the envelope type is known.
type RawMessage = cbor.RawMessage

// Marshal encodes v to deterministic CBOR. Encoding is total for every
// protocol message variant: all body types are plain data structs, so an
// error return here indicates a programming bug, not a runtime condition.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v. Failures wrap ErrProtocol.
func Unmarshal(data []byte, v any) error {
	if err := decMode.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: undecodable body: %v", ErrProtocol, err)
	}
	return nil
}

// EncodeFrame serializes an envelope into a complete wire frame: length
// prefix plus CBOR payload.
func EncodeFrame(env *Envelope) ([]byte, error) {
	if err := env.Kind.Validate(); err != nil {
		return nil, err
	}

	payload, err := encMode.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	if len(payload) > MaxFrameSize {
		return nil, fmt.Errorf("envelope exceeds max frame size: %d bytes", len(payload))
	}

	frame := make([]byte, lengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[lengthPrefixSize:], payload)
	return frame, nil
}

// FrameBuffer accumulates raw bytes from a non-blocking stream and yields
// complete envelopes. Partial frames stay buffered until the remaining
// bytes arrive; the compositor loop is never blocked waiting for them.
type FrameBuffer struct {
	buf []byte
}

// Feed appends newly read bytes to the buffer.
func (b *FrameBuffer) Feed(p []byte) {
	b.buf = append(b.buf, p...)
}

// Pending returns the number of buffered, not yet consumed bytes.
func (b *FrameBuffer) Pending() int {
	return len(b.buf)
}

// Next decodes and returns the next complete envelope, or (nil, nil) when
// the buffer does not yet hold a full frame. Any framing or decoding
// failure wraps ErrProtocol and poisons the stream: callers must close the
// session and discard the buffer.
func (b *FrameBuffer) Next() (*Envelope, error) {
	if len(b.buf) < lengthPrefixSize {
		return nil, nil
	}

	length := binary.BigEndian.Uint32(b.buf)
	if length == 0 {
		return nil, fmt.Errorf("%w: zero-length frame", ErrProtocol)
	}
	if length > MaxFrameSize {
		return nil, fmt.Errorf("%w: frame length %d exceeds limit %d", ErrProtocol, length, MaxFrameSize)
	}

	total := lengthPrefixSize + int(length)
	if len(b.buf) < total {
		return nil, nil
	}

	payload := b.buf[lengthPrefixSize:total]

	var env Envelope
	if err := decMode.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: undecodable envelope: %v", ErrProtocol, err)
	}
	if err := env.Kind.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}

	// Consume only after the whole frame decoded.
	b.buf = b.buf[total:]
	return &env, nil
}

// NewRequest builds a request envelope with the given body.
func NewRequest(reqType string, body any) (*Envelope, error) {
	return newEnvelope(KindRequest, reqType, body)
}

// NewResponse builds a response envelope with the given body.
func NewResponse(respType string, body any) (*Envelope, error) {
	return newEnvelope(KindResponse, respType, body)
}

// NewMessage builds a one-way message envelope with the given body.
func NewMessage(msgType string, body any) (*Envelope, error) {
	return newEnvelope(KindMessage, msgType, body)
}

// NewEvent builds an event envelope with the given body.
func NewEvent(eventType string, body any) (*Envelope, error) {
	return newEnvelope(KindEvent, eventType, body)
}

func newEnvelope(kind Kind, msgType string, body any) (*Envelope, error) {
	env := &Envelope{Kind: kind, Type: msgType}
	if body != nil {
		raw, err := encMode.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s body: %w", msgType, err)
		}
		env.Body = raw
	}
	return env, nil
}
