package transport

import (
	"net"
	"time"

	"github.com/pion/logging"
)

// Socket is a stream Transport over a net.Conn.
//
// In non-blocking mode each call arms a short deadline and reports its
// expiry as ErrWantRead or ErrWantWrite instead of waiting.
type Socket struct {
	conn        net.Conn
	nonBlocking bool
	pollTimeout time.Duration
	log         logging.LeveledLogger
}

// SocketConfig configures a Socket.
type SocketConfig struct {
	// Conn is the connected stream. Required.
	Conn net.Conn

	// NonBlocking makes Send and Receive return ErrWantWrite/ErrWantRead
	// instead of blocking.
	NonBlocking bool

	// PollTimeout is the deadline used in non-blocking mode.
	// Default: DefaultPollTimeout
	PollTimeout time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// NewSocket wraps a connected stream.
func NewSocket(config SocketConfig) (*Socket, error) {
	if config.Conn == nil {
		return nil, ErrNoConn
	}
	s := &Socket{
		conn:        config.Conn,
		nonBlocking: config.NonBlocking,
		pollTimeout: config.PollTimeout,
	}
	if s.pollTimeout <= 0 {
		s.pollTimeout = DefaultPollTimeout
	}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("transport-socket")
	}
	return s, nil
}

// DialSocket connects to addr over TCP and wraps the connection.
func DialSocket(addr string, config SocketConfig) (*Socket, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, Classify(err, true)
	}
	config.Conn = conn
	return NewSocket(config)
}

// Send writes p to the connection.
func (s *Socket) Send(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if s.nonBlocking {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.pollTimeout))
	}
	n, err := s.conn.Write(p)
	if s.log != nil {
		s.log.Tracef("sent %d bytes", n)
	}
	if n > 0 {
		return n, nil
	}
	return 0, s.classify(err, true)
}

// Receive reads available bytes into p.
func (s *Socket) Receive(p []byte) (int, error) {
	if s.nonBlocking {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.pollTimeout))
	}
	n, err := s.conn.Read(p)
	if n > 0 {
		if s.log != nil {
			s.log.Tracef("received %d bytes", n)
		}
		return n, nil
	}
	if err == nil {
		return 0, ErrWantRead
	}
	err = s.classify(err, false)
	if s.log != nil {
		s.log.Debugf("receive: %v", err)
	}
	return 0, err
}

func (s *Socket) classify(err error, write bool) error {
	if s.nonBlocking && Code(Classify(err, write)) == ErrTimeout {
		return wrap(wantFor(write), err)
	}
	return Classify(err, write)
}

// Conn returns the wrapped connection.
func (s *Socket) Conn() net.Conn {
	return s.conn
}

// RemoteAddr returns the peer address.
func (s *Socket) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// Close closes the connection.
func (s *Socket) Close() error {
	return s.conn.Close()
}
