package demo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/backkem/tinytls/pkg/tinytls"
	"github.com/backkem/tinytls/pkg/transport"
	"github.com/pion/logging"
)

// ErrServerStopped is returned by Start after Stop.
var ErrServerStopped = errors.New("demo: server stopped")

// Server is the echo server. Every session reads messages, prints them
// as "Received Data: ..." and writes them back until the peer closes.
type Server struct {
	opts Options
	tctx *tinytls.Context
	lf   logging.LoggerFactory
	log  logging.LeveledLogger

	listener *transport.Listener
	dgram    *transport.Datagram

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	outMu sync.Mutex
	out   io.Writer
}

// NewServer builds the server context from opts. Configuration errors
// are reported here.
func NewServer(opts Options, out io.Writer, lf logging.LoggerFactory) (*Server, error) {
	cfg, err := opts.Config(lf)
	if err != nil {
		return nil, err
	}
	tctx, err := tinytls.NewContext(cfg)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{opts: opts, tctx: tctx, lf: lf, out: out, ctx: ctx, cancel: cancel}
	if lf != nil {
		s.log = lf.NewLogger("demo-server")
	}
	return s, nil
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	if s.ctx.Err() != nil {
		return ErrServerStopped
	}
	if s.tctx.Config().Protocol == tinytls.ProtocolDTLS {
		d, err := transport.NewDatagram(transport.DatagramConfig{
			ListenAddr:    s.opts.Address,
			ReadTimeout:   s.opts.ReadTimeout,
			LoggerFactory: s.lf,
		})
		if err != nil {
			return err
		}
		s.dgram = d
		s.wg.Add(1)
		go s.serveDatagram()
		return nil
	}

	l, err := transport.NewListener(transport.ListenerConfig{
		ListenAddr:    s.opts.Address,
		Handler:       func(sock *transport.Socket) { s.serve(sock) },
		NonBlocking:   true,
		LoggerFactory: s.lf,
	})
	if err != nil {
		return err
	}
	s.listener = l
	return l.Start()
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	switch {
	case s.listener != nil:
		return s.listener.Addr()
	case s.dgram != nil:
		return s.dgram.LocalAddr()
	default:
		return nil
	}
}

// Stop ends all sessions and releases the socket.
func (s *Server) Stop() error {
	s.cancel()
	var err error
	if s.listener != nil {
		err = s.listener.Stop()
	}
	if s.dgram != nil {
		err = s.dgram.Close()
	}
	s.wg.Wait()
	s.tctx.Close()
	return err
}

// serveDatagram serves DTLS clients one after another. The socket adopts
// the address of each new client.
func (s *Server) serveDatagram() {
	defer s.wg.Done()
	for s.ctx.Err() == nil {
		s.dgram.SetPeer(nil)
		if err := s.serve(s.dgram); transport.Code(err) != nil {
			if s.ctx.Err() == nil && s.log != nil {
				s.log.Warnf("datagram socket: %v", err)
			}
			return
		}
	}
}

func (s *Server) serve(tr transport.Transport) error {
	sess, err := s.tctx.NewSession(tinytls.RoleServer)
	if err != nil {
		return err
	}
	defer sess.Close()
	sess.SetTransport(tr)

	if err := RetryLoop(s.ctx, sess, s.opts.RetryDelay, sess.Accept); err != nil {
		if s.log != nil {
			s.log.Warnf("session %s: accept: %v", sess.ID(), err)
		}
		return err
	}
	if s.log != nil {
		s.log.Infof("session %s: established with %s", sess.ID(), sess.CipherSuite())
	}

	buf := make([]byte, 1024)
	for {
		var n int
		err := RetryLoop(s.ctx, sess, s.opts.RetryDelay, func() error {
			var err error
			n, err = sess.Read(buf)
			return err
		})
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if s.log != nil {
				s.log.Warnf("session %s: read: %v", sess.ID(), err)
			}
			return err
		}
		s.printf("Received Data: %s\n", buf[:n])

		if err := RetryLoop(s.ctx, sess, s.opts.RetryDelay, func() error {
			_, err := sess.Write(buf[:n])
			return err
		}); err != nil {
			return err
		}
	}
}

func (s *Server) printf(format string, args ...any) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}

// Client is a connected echo client.
type Client struct {
	opts Options
	sess *tinytls.Session
	tctx *tinytls.Context
	conn io.Closer
}

// Dial connects to opts.Address and completes the handshake.
func Dial(ctx context.Context, opts Options, lf logging.LoggerFactory) (*Client, error) {
	cfg, err := opts.Config(lf)
	if err != nil {
		return nil, err
	}
	tctx, err := tinytls.NewContext(cfg)
	if err != nil {
		return nil, err
	}

	var tr transport.Transport
	var conn io.Closer
	if cfg.Protocol == tinytls.ProtocolDTLS {
		d, err := transport.DialDatagram(opts.Address, transport.DatagramConfig{
			ReadTimeout:   opts.ReadTimeout,
			LoggerFactory: lf,
		})
		if err != nil {
			return nil, err
		}
		tr, conn = d, d
	} else {
		sock, err := transport.DialSocket(opts.Address, transport.SocketConfig{
			NonBlocking:   true,
			LoggerFactory: lf,
		})
		if err != nil {
			return nil, err
		}
		tr, conn = sock, sock
	}

	sess, err := tctx.NewSession(tinytls.RoleClient)
	if err != nil {
		conn.Close()
		return nil, err
	}
	sess.SetTransport(tr)
	c := &Client{opts: opts, sess: sess, tctx: tctx, conn: conn}
	if err := RetryLoop(ctx, sess, opts.RetryDelay, sess.Connect); err != nil {
		c.Close()
		return nil, fmt.Errorf("demo: connect: %w", err)
	}
	return c, nil
}

// Session returns the underlying session.
func (c *Client) Session() *tinytls.Session { return c.sess }

// Exchange sends msg and waits for the full echo.
func (c *Client) Exchange(ctx context.Context, msg []byte) ([]byte, error) {
	if err := RetryLoop(ctx, c.sess, c.opts.RetryDelay, func() error {
		_, err := c.sess.Write(msg)
		return err
	}); err != nil {
		return nil, err
	}

	reply := make([]byte, 0, len(msg))
	buf := make([]byte, 1024)
	for len(reply) < len(msg) {
		var n int
		err := RetryLoop(ctx, c.sess, c.opts.RetryDelay, func() error {
			var err error
			n, err = c.sess.Read(buf)
			return err
		})
		if err != nil {
			return reply, err
		}
		reply = append(reply, buf[:n]...)
	}
	return reply, nil
}

// Close sends close_notify and releases the session and socket.
func (c *Client) Close() error {
	_ = c.sess.Shutdown()
	c.sess.Close()
	c.tctx.Close()
	return c.conn.Close()
}
