// Package transport provides the duplex byte I/O that the record layer
// runs over: sockets, datagram sockets, in-memory buffer pairs, RTOS
// communication endpoints and a virtual test network.
package transport

import "time"

// Transport moves raw bytes for one session.
//
// Send returns the number of bytes accepted, which may be less than
// len(p) for stream transports. Receive returns the number of bytes
// read. A zero count is always accompanied by an error wrapping one of
// the result codes in this package.
type Transport interface {
	Send(p []byte) (int, error)
	Receive(p []byte) (int, error)
}

// DatagramTransport is implemented by transports that preserve message
// boundaries: one Send is one Receive on the peer.
type DatagramTransport interface {
	Transport
	Datagram() bool
}

// IsDatagram reports whether t preserves message boundaries.
func IsDatagram(t Transport) bool {
	d, ok := t.(DatagramTransport)
	return ok && d.Datagram()
}

// DefaultPollTimeout is the deadline used to emulate non-blocking I/O
// on blocking connections.
const DefaultPollTimeout = time.Millisecond

// MaxDatagramSize is the largest datagram read in one Receive.
const MaxDatagramSize = 65535
