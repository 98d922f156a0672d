package transport

import (
	"sync"

	"github.com/pion/logging"
)

// memoryQueue is one direction of a Memory pair.
type memoryQueue struct {
	mu       sync.Mutex
	stream   []byte
	packets  [][]byte
	closed   bool
	datagram bool
}

func (q *memoryQueue) push(p []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrConnClosed
	}
	if len(p) == 0 {
		return nil
	}
	if q.datagram {
		q.packets = append(q.packets, append([]byte(nil), p...))
	} else {
		q.stream = append(q.stream, p...)
	}
	return nil
}

func (q *memoryQueue) pop(p []byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.datagram {
		if len(q.packets) == 0 {
			return 0, q.emptyErr()
		}
		n := copy(p, q.packets[0])
		q.packets[0] = nil
		q.packets = q.packets[1:]
		return n, nil
	}
	if len(q.stream) == 0 {
		return 0, q.emptyErr()
	}
	n := copy(p, q.stream)
	q.stream = q.stream[n:]
	return n, nil
}

func (q *memoryQueue) emptyErr() error {
	if q.closed {
		return ErrConnClosed
	}
	return ErrWantRead
}

func (q *memoryQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.datagram {
		n := 0
		for _, p := range q.packets {
			n += len(p)
		}
		return n
	}
	return len(q.stream)
}

func (q *memoryQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

// Memory is one end of an in-memory buffer pair. Receive never blocks:
// an empty queue yields ErrWantRead, which lets both ends of a session
// be driven from a single goroutine.
type Memory struct {
	in  *memoryQueue
	out *memoryQueue
	log logging.LeveledLogger

	mu     sync.Mutex
	faults []func([]byte) []byte
}

// MemoryConfig configures a Memory pair.
type MemoryConfig struct {
	// Datagram preserves write boundaries: each Send is delivered by
	// exactly one Receive.
	Datagram bool

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// NewMemoryPair returns two connected in-memory transports.
func NewMemoryPair(config MemoryConfig) (*Memory, *Memory) {
	a2b := &memoryQueue{datagram: config.Datagram}
	b2a := &memoryQueue{datagram: config.Datagram}
	a := &Memory{in: b2a, out: a2b}
	b := &Memory{in: a2b, out: b2a}
	if config.LoggerFactory != nil {
		a.log = config.LoggerFactory.NewLogger("transport-memory")
		b.log = config.LoggerFactory.NewLogger("transport-memory")
	}
	return a, b
}

// Datagram reports whether the pair preserves write boundaries.
func (m *Memory) Datagram() bool { return m.out.datagram }

// Send appends p to the peer's receive queue.
func (m *Memory) Send(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := m.out.push(m.applyFault(p)); err != nil {
		return 0, err
	}
	if m.log != nil {
		m.log.Tracef("sent %d bytes", len(p))
	}
	return len(p), nil
}

// Receive copies queued bytes into p.
func (m *Memory) Receive(p []byte) (int, error) {
	n, err := m.in.pop(p)
	if err != nil {
		return 0, err
	}
	if m.log != nil {
		m.log.Tracef("received %d bytes", n)
	}
	return n, nil
}

// Buffered returns the number of bytes waiting to be received.
func (m *Memory) Buffered() int {
	return m.in.len()
}

// Close shuts down both directions. The peer drains what was already
// queued and then sees ErrConnClosed.
func (m *Memory) Close() error {
	m.out.close()
	m.in.close()
	return nil
}

// InjectFault registers a one-shot rewrite applied to the next Send.
// Tests use it to corrupt or replace records on the wire. A rewrite that
// returns nil drops the write.
func (m *Memory) InjectFault(f func([]byte) []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults = append(m.faults, f)
}

func (m *Memory) applyFault(p []byte) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.faults) == 0 {
		return p
	}
	f := m.faults[0]
	m.faults = m.faults[1:]
	return f(append([]byte(nil), p...))
}
