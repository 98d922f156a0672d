package transport

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"
)

func TestNewSocket(t *testing.T) {
	if _, err := NewSocket(SocketConfig{}); !errors.Is(err, ErrNoConn) {
		t.Fatalf("NewSocket() without conn = %v, want ErrNoConn", err)
	}
}

func TestSocketNonBlocking(t *testing.T) {
	c0, c1 := net.Pipe()
	defer c1.Close()

	s, err := NewSocket(SocketConfig{Conn: c0, NonBlocking: true})
	if err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 8)
	_, err = s.Receive(buf)
	if !errors.Is(err, ErrWantRead) {
		t.Fatalf("Receive() with no data = %v, want ErrWantRead", err)
	}
	if errors.Is(err, ErrTimeout) {
		t.Fatal("non-blocking receive reported both WantRead and Timeout")
	}

	// net.Pipe is unbuffered, so a write with no reader would block.
	if _, err := s.Send([]byte("x")); !errors.Is(err, ErrWantWrite) {
		t.Fatalf("Send() with no reader = %v, want ErrWantWrite", err)
	}

	c0.Close()
	if _, err := s.Receive(buf); !errors.Is(err, ErrConnClosed) {
		t.Fatalf("Receive() after close = %v, want ErrConnClosed", err)
	}
}

func TestSocketBlockingRoundTrip(t *testing.T) {
	c0, c1 := net.Pipe()
	s0, _ := NewSocket(SocketConfig{Conn: c0})
	s1, _ := NewSocket(SocketConfig{Conn: c1})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s0.Send([]byte("Hello Server\n"))
	}()

	buf := make([]byte, 64)
	n, err := s1.Receive(buf)
	if err != nil || string(buf[:n]) != "Hello Server\n" {
		t.Fatalf("Receive() = %q, %v", buf[:n], err)
	}
	wg.Wait()

	s0.Close()
	if _, err := s1.Receive(buf); !errors.Is(err, ErrConnClosed) {
		t.Fatalf("Receive() after peer close = %v, want ErrConnClosed", err)
	}
}

func TestListener(t *testing.T) {
	if _, err := NewListener(ListenerConfig{}); !errors.Is(err, ErrNoHandler) {
		t.Fatalf("NewListener() without handler = %v", err)
	}

	l, err := NewListener(ListenerConfig{
		ListenAddr: "127.0.0.1:0",
		Handler: func(s *Socket) {
			buf := make([]byte, 64)
			n, err := s.Receive(buf)
			if err != nil {
				return
			}
			s.Send(buf[:n])
		},
	})
	if err != nil {
		t.Fatalf("NewListener() = %v", err)
	}
	if err := l.Start(); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if err := l.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() = %v", err)
	}

	c, err := DialSocket(l.Addr().String(), SocketConfig{})
	if err != nil {
		t.Fatalf("DialSocket() = %v", err)
	}
	defer c.Close()
	c.Conn().SetDeadline(time.Now().Add(2 * time.Second))

	if _, err := c.Send([]byte("echo")); err != nil {
		t.Fatalf("Send() = %v", err)
	}
	buf := make([]byte, 64)
	n, err := c.Receive(buf)
	if err != nil || string(buf[:n]) != "echo" {
		t.Fatalf("Receive() = %q, %v", buf[:n], err)
	}

	if err := l.Stop(); err != nil {
		t.Fatalf("Stop() = %v", err)
	}
	if err := l.Stop(); !errors.Is(err, ErrConnClosed) {
		t.Errorf("second Stop() = %v", err)
	}
}
