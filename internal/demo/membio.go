package demo

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/backkem/tinytls/pkg/tinytls"
	"github.com/backkem/tinytls/pkg/transport"
	"golang.org/x/sync/errgroup"
)

// MemoryMessage is the message the memory demo client sends.
const MemoryMessage = "hello memory tinytls!"

// MemoryResult reports what the memory demo server saw.
type MemoryResult struct {
	Version     uint16
	CipherSuite tinytls.CipherSuite
	Message     string
}

// RunMemoryBIO runs a DTLS client and server in two goroutines over a
// pair of in-memory datagram buffers. Every session call holds one
// shared lock, so the two sides take turns on the buffers. The server
// prints the negotiated parameters and the client's message to out.
func RunMemoryBIO(ctx context.Context, client, server tinytls.Config, out io.Writer) (*MemoryResult, error) {
	client.Protocol, server.Protocol = tinytls.ProtocolDTLS, tinytls.ProtocolDTLS
	cctx, err := tinytls.NewContext(client)
	if err != nil {
		return nil, fmt.Errorf("demo: client context: %w", err)
	}
	defer cctx.Close()
	sctx, err := tinytls.NewContext(server)
	if err != nil {
		return nil, fmt.Errorf("demo: server context: %w", err)
	}
	defer sctx.Close()

	ct, st := transport.NewMemoryPair(transport.MemoryConfig{Datagram: true, LoggerFactory: client.LoggerFactory})
	defer ct.Close()
	defer st.Close()

	csess, err := cctx.NewSession(tinytls.RoleClient)
	if err != nil {
		return nil, err
	}
	defer csess.Close()
	ssess, err := sctx.NewSession(tinytls.RoleServer)
	if err != nil {
		return nil, err
	}
	defer ssess.Close()
	csess.SetTransport(ct)
	ssess.SetTransport(st)

	out = &syncWriter{w: out}
	var mu sync.Mutex
	locked := func(op func() error) func() error {
		return func() error {
			mu.Lock()
			defer mu.Unlock()
			return op()
		}
	}
	const delay = 100 * time.Microsecond

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := RetryLoop(gctx, csess, delay, locked(csess.Connect)); err != nil {
			return fmt.Errorf("client connect: %w", err)
		}
		fmt.Fprintln(out, "tinytls client success!")
		return RetryLoop(gctx, csess, delay, locked(func() error {
			_, err := csess.Write([]byte(MemoryMessage))
			return err
		}))
	})

	res := &MemoryResult{}
	g.Go(func() error {
		if err := RetryLoop(gctx, ssess, delay, locked(ssess.Accept)); err != nil {
			return fmt.Errorf("server accept: %w", err)
		}
		res.Version = ssess.Version()
		res.CipherSuite = ssess.CipherSuite()
		fmt.Fprintln(out, "tinytls accept success!")
		fmt.Fprintf(out, "Version: %#04x\n", res.Version)
		fmt.Fprintf(out, "Cipher Suite: %s\n", res.CipherSuite)
		fmt.Fprintf(out, "Curve: %s\n", ssess.Group())

		buf := make([]byte, 80)
		var n int
		if err := RetryLoop(gctx, ssess, delay, locked(func() error {
			var err error
			n, err = ssess.Read(buf)
			return err
		})); err != nil {
			return fmt.Errorf("server read: %w", err)
		}
		res.Message = string(buf[:n])
		fmt.Fprintf(out, "client msg = %s\n", res.Message)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
