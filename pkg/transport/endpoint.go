package transport

import (
	"net"
	"sync"
	"time"

	"github.com/pion/logging"
)

// Forever is the EndpointIO timeout meaning "wait without limit".
const Forever time.Duration = -1

// EndpointIO is the RTOS TCP/IP stack's communication endpoint API:
// blocking transfers addressed by endpoint id.
type EndpointIO interface {
	SendData(id int, p []byte, timeout time.Duration) (int, error)
	ReceiveData(id int, p []byte, timeout time.Duration) (int, error)
}

// Endpoint is a stream Transport over an RTOS communication endpoint.
// Any transfer that does not complete in full is reported as ErrGeneral,
// and so is a receive of zero bytes.
type Endpoint struct {
	io      EndpointIO
	id      int
	timeout time.Duration
	log     logging.LeveledLogger
}

// EndpointConfig configures an Endpoint.
type EndpointConfig struct {
	// IO is the endpoint API. Required.
	IO EndpointIO

	// ID selects the communication endpoint.
	ID int

	// Timeout is passed to every transfer.
	// Default: Forever
	Timeout time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// NewEndpoint creates an endpoint transport.
func NewEndpoint(config EndpointConfig) (*Endpoint, error) {
	if config.IO == nil {
		return nil, ErrNoEndpoint
	}
	e := &Endpoint{
		io:      config.IO,
		id:      config.ID,
		timeout: config.Timeout,
	}
	if e.timeout == 0 {
		e.timeout = Forever
	}
	if config.LoggerFactory != nil {
		e.log = config.LoggerFactory.NewLogger("transport-endpoint")
	}
	return e, nil
}

// Send transfers all of p or fails.
func (e *Endpoint) Send(p []byte) (int, error) {
	n, err := e.io.SendData(e.id, p, e.timeout)
	if err != nil || n != len(p) {
		if e.log != nil {
			e.log.Debugf("endpoint %d: short send %d/%d: %v", e.id, n, len(p), err)
		}
		return 0, wrap(ErrGeneral, err)
	}
	if e.log != nil {
		e.log.Tracef("endpoint %d: sent %d bytes", e.id, n)
	}
	return n, nil
}

// Receive reads up to len(p) bytes.
func (e *Endpoint) Receive(p []byte) (int, error) {
	n, err := e.io.ReceiveData(e.id, p, e.timeout)
	if err != nil || n <= 0 {
		if e.log != nil {
			e.log.Debugf("endpoint %d: receive failed: %v", e.id, err)
		}
		return 0, wrap(ErrGeneral, err)
	}
	if e.log != nil {
		e.log.Tracef("endpoint %d: received %d bytes", e.id, n)
	}
	return n, nil
}

// ID returns the endpoint id.
func (e *Endpoint) ID() int {
	return e.id
}

// ConnEndpoints implements EndpointIO over registered net.Conn values,
// so the endpoint transport can run on a host TCP stack.
type ConnEndpoints struct {
	mu    sync.RWMutex
	conns map[int]net.Conn
}

// NewConnEndpoints returns an empty endpoint table.
func NewConnEndpoints() *ConnEndpoints {
	return &ConnEndpoints{conns: make(map[int]net.Conn)}
}

// Register binds conn to endpoint id.
func (c *ConnEndpoints) Register(id int, conn net.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns[id] = conn
}

func (c *ConnEndpoints) conn(id int) (net.Conn, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	conn, ok := c.conns[id]
	if !ok {
		return nil, ErrNoEndpoint
	}
	return conn, nil
}

// SendData writes all of p to endpoint id.
func (c *ConnEndpoints) SendData(id int, p []byte, timeout time.Duration) (int, error) {
	conn, err := c.conn(id)
	if err != nil {
		return 0, err
	}
	if timeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	return conn.Write(p)
}

// ReceiveData reads up to len(p) bytes from endpoint id.
func (c *ConnEndpoints) ReceiveData(id int, p []byte, timeout time.Duration) (int, error) {
	conn, err := c.conn(id)
	if err != nil {
		return 0, err
	}
	if timeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(timeout))
	}
	return conn.Read(p)
}
