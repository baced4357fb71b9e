// Package protocol defines the framed binary control protocol spoken
// between the compositor and the external configuration process.
//
// Every frame is a 4-byte big-endian length prefix followed by exactly that
// many bytes of CBOR payload. The payload is an Envelope carrying one of
// four kinds: a Request (expects exactly one Response, in order), a one-way
// Message (mutates state, no reply), a Response, or a compositor-originated
// Event. Decoding fails closed: a malformed frame is session-fatal and
// reported as an error satisfying errors.Is(err, ErrProtocol).
package protocol
