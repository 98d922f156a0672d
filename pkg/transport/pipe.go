package transport

import (
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/pion/transport/v3/test"
)

// NetworkCondition configures network behavior simulation.
type NetworkCondition struct {
	// DropRate is the probability of dropping a packet (0.0 - 1.0).
	DropRate float64

	// DelayMin is the minimum delay to add to each packet.
	DelayMin time.Duration

	// DelayMax is the maximum delay to add to each packet.
	// Actual delay is uniformly distributed between DelayMin and DelayMax.
	DelayMax time.Duration

	// DuplicateRate is the probability of duplicating a packet (0.0 - 1.0).
	DuplicateRate float64
}

// PipeConfig configures a Pipe.
type PipeConfig struct {
	// AutoProcess enables automatic packet delivery in a background goroutine.
	// Default: true
	AutoProcess bool

	// ProcessInterval is how often the auto-processor delivers packets.
	// Default: 1ms
	ProcessInterval time.Duration

	// Seed fixes the random source used for network conditions.
	// Zero seeds from the clock.
	Seed int64
}

// DefaultPipeConfig returns the default pipe configuration.
func DefaultPipeConfig() PipeConfig {
	return PipeConfig{
		AutoProcess:     true,
		ProcessInterval: 1 * time.Millisecond,
	}
}

// Pipe is a virtual datagram network between two endpoints, built on
// pion's test.Bridge, with drop, delay and duplication simulation.
// It exists for tests and demos; nothing in the session core depends on it.
type Pipe struct {
	bridge *test.Bridge

	mu              sync.RWMutex
	condition       NetworkCondition
	closed          bool
	rng             *rand.Rand
	autoProcess     bool
	processInterval time.Duration
	stopCh          chan struct{}
	wg              sync.WaitGroup
}

// NewPipe creates a pipe with auto-processing enabled.
func NewPipe() *Pipe {
	return NewPipeWithConfig(DefaultPipeConfig())
}

// NewPipeWithConfig creates a pipe with the given configuration.
func NewPipeWithConfig(config PipeConfig) *Pipe {
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	p := &Pipe{
		bridge:          test.NewBridge(),
		rng:             rand.New(rand.NewSource(seed)),
		autoProcess:     config.AutoProcess,
		processInterval: config.ProcessInterval,
		stopCh:          make(chan struct{}),
	}
	if p.processInterval == 0 {
		p.processInterval = 1 * time.Millisecond
	}
	if p.autoProcess {
		p.startAutoProcess()
	}
	return p
}

func (p *Pipe) startAutoProcess() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.processInterval)
		defer ticker.Stop()

		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.bridge.Tick()
			}
		}
	}()
}

// SetCondition configures network condition simulation for both directions.
func (p *Pipe) SetCondition(cond NetworkCondition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.condition = cond
}

// Condition returns the current network condition configuration.
func (p *Pipe) Condition() NetworkCondition {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.condition
}

// Tick delivers one packet in each direction (if available) and returns
// the number delivered. Only needed when AutoProcess is off.
func (p *Pipe) Tick() int {
	return p.bridge.Tick()
}

// Process delivers all queued packets.
func (p *Pipe) Process() int {
	count := 0
	for {
		n := p.Tick()
		if n == 0 {
			return count
		}
		count += n
	}
}

// PacketConn returns endpoint id (0 or 1) as a net.PacketConn whose
// writes pass through the configured network conditions.
func (p *Pipe) PacketConn(id int) *PipePacketConn {
	conn, peer := p.bridge.GetConn0(), 1
	if id != 0 {
		conn, peer = p.bridge.GetConn1(), 0
	}
	return &PipePacketConn{
		conn:     conn,
		localID:  id,
		peerAddr: PipeAddr{ID: peer},
		pipe:     p,
	}
}

// DatagramPair returns Datagram transports for both pipe endpoints. The
// config is applied to both; Conn and Peer are set per endpoint.
func (p *Pipe) DatagramPair(config DatagramConfig) (*Datagram, *Datagram, error) {
	var out [2]*Datagram
	for id := range out {
		c := config
		c.Conn = p.PacketConn(id)
		c.Peer = PipeAddr{ID: 1 - id}
		d, err := NewDatagram(c)
		if err != nil {
			return nil, nil, err
		}
		out[id] = d
	}
	return out[0], out[1], nil
}

// Close closes both endpoints and stops auto-processing.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.autoProcess {
		close(p.stopCh)
	}
	p.mu.Unlock()

	p.wg.Wait()

	err0 := p.bridge.GetConn0().Close()
	err1 := p.bridge.GetConn1().Close()
	if err0 != nil {
		return err0
	}
	return err1
}

// deliver decides the fate of one outgoing packet: the number of copies
// to send (0, 1 or 2) and the delay before sending.
func (p *Pipe) deliver() (int, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cond := p.condition

	if cond.DropRate > 0 && p.rng.Float64() < cond.DropRate {
		return 0, 0
	}
	delay := cond.DelayMin
	if cond.DelayMax > cond.DelayMin {
		delay += time.Duration(p.rng.Int63n(int64(cond.DelayMax - cond.DelayMin)))
	}
	if cond.DuplicateRate > 0 && p.rng.Float64() < cond.DuplicateRate {
		return 2, delay
	}
	return 1, delay
}

// PipeAddr implements net.Addr for pipe endpoints.
type PipeAddr struct {
	ID int // Endpoint ID (0 or 1)
}

// Network returns "pipe".
func (a PipeAddr) Network() string { return "pipe" }

// String returns a string representation of the address.
func (a PipeAddr) String() string { return fmt.Sprintf("pipe:%d", a.ID) }

// PipePacketConn is one pipe endpoint as a net.PacketConn.
type PipePacketConn struct {
	conn     net.Conn
	localID  int
	peerAddr net.Addr
	pipe     *Pipe
}

// ReadFrom reads a packet; the address is always the other endpoint.
func (c *PipePacketConn) ReadFrom(b []byte) (int, net.Addr, error) {
	n, err := c.conn.Read(b)
	return n, c.peerAddr, err
}

// WriteTo writes a packet to the other endpoint; addr is ignored.
func (c *PipePacketConn) WriteTo(b []byte, _ net.Addr) (int, error) {
	copies, delay := c.pipe.deliver()
	if delay > 0 {
		time.Sleep(delay)
	}
	for i := 0; i < copies; i++ {
		if _, err := c.conn.Write(b); err != nil {
			return 0, err
		}
	}
	return len(b), nil
}

// Close closes the endpoint.
func (c *PipePacketConn) Close() error {
	return c.conn.Close()
}

// LocalAddr returns the local address.
func (c *PipePacketConn) LocalAddr() net.Addr {
	return PipeAddr{ID: c.localID}
}

// SetDeadline sets the read and write deadlines.
func (c *PipePacketConn) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

// SetReadDeadline sets the read deadline.
func (c *PipePacketConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// SetWriteDeadline sets the write deadline.
func (c *PipePacketConn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

var _ net.PacketConn = (*PipePacketConn)(nil)
