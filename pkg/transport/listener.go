package transport

import (
	"net"
	"sync"
	"time"

	"github.com/pion/logging"
)

// ConnHandler serves one accepted connection. The Socket is closed when
// the handler returns.
type ConnHandler func(*Socket)

// Listener accepts TCP connections and hands each one, wrapped in a
// Socket, to a ConnHandler running in its own goroutine.
type Listener struct {
	listener      net.Listener
	handler       ConnHandler
	nonBlocking   bool
	pollTimeout   time.Duration
	loggerFactory logging.LoggerFactory
	closeCh       chan struct{}
	wg            sync.WaitGroup
	log           logging.LeveledLogger

	connsMu sync.Mutex
	conns   map[string]net.Conn // Key: remote address string

	mu      sync.Mutex
	started bool
	closed  bool
}

// ListenerConfig configures a Listener.
type ListenerConfig struct {
	// Listener is an optional pre-existing listener to use.
	// If nil, a new listener will be created using ListenAddr.
	Listener net.Listener

	// ListenAddr is the address to listen on (e.g., ":11111").
	// Ignored if Listener is provided.
	ListenAddr string

	// Handler is called for each accepted connection. Required.
	Handler ConnHandler

	// NonBlocking and PollTimeout are applied to every accepted Socket.
	NonBlocking bool
	PollTimeout time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// NewListener creates a listener with the given configuration.
func NewListener(config ListenerConfig) (*Listener, error) {
	if config.Handler == nil {
		return nil, ErrNoHandler
	}

	l := &Listener{
		listener:      config.Listener,
		handler:       config.Handler,
		nonBlocking:   config.NonBlocking,
		pollTimeout:   config.PollTimeout,
		loggerFactory: config.LoggerFactory,
		closeCh:       make(chan struct{}),
		conns:         make(map[string]net.Conn),
	}

	if config.LoggerFactory != nil {
		l.log = config.LoggerFactory.NewLogger("transport-listener")
	}

	if l.listener == nil {
		addr := config.ListenAddr
		if addr == "" {
			addr = ":0"
		}
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, err
		}
		l.listener = listener
	}

	return l, nil
}

// Start begins accepting connections.
func (l *Listener) Start() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrConnClosed
	}
	if l.started {
		l.mu.Unlock()
		return ErrAlreadyStarted
	}
	l.started = true
	l.mu.Unlock()

	if l.log != nil {
		l.log.Infof("listening on %s", l.listener.Addr())
	}

	l.wg.Add(1)
	go l.acceptLoop()

	return nil
}

// Stop closes the listener and all open connections, then waits for
// running handlers to return.
func (l *Listener) Stop() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrConnClosed
	}
	l.closed = true
	l.mu.Unlock()

	if l.log != nil {
		l.log.Info("stopping listener")
	}

	close(l.closeCh)
	l.listener.Close()

	l.connsMu.Lock()
	for _, c := range l.conns {
		c.Close()
	}
	l.conns = make(map[string]net.Conn)
	l.connsMu.Unlock()

	l.wg.Wait()
	return nil
}

// Addr returns the address the listener is bound to.
func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

func (l *Listener) acceptLoop() {
	defer l.wg.Done()

	for {
		conn, err := l.listener.Accept()
		if err != nil {
			select {
			case <-l.closeCh:
				return
			default:
				if l.log != nil {
					l.log.Warnf("accept: %v", err)
				}
				continue
			}
		}

		l.wg.Add(1)
		go l.handleConn(conn)
	}
}

func (l *Listener) handleConn(conn net.Conn) {
	defer l.wg.Done()

	remoteAddr := conn.RemoteAddr().String()
	l.connsMu.Lock()
	l.conns[remoteAddr] = conn
	l.connsMu.Unlock()

	defer func() {
		conn.Close()
		l.connsMu.Lock()
		delete(l.conns, remoteAddr)
		l.connsMu.Unlock()
	}()

	if l.log != nil {
		l.log.Debugf("accepted connection from %s", remoteAddr)
	}

	sock, err := NewSocket(SocketConfig{
		Conn:          conn,
		NonBlocking:   l.nonBlocking,
		PollTimeout:   l.pollTimeout,
		LoggerFactory: l.loggerFactory,
	})
	if err != nil {
		return
	}
	l.handler(sock)
}
