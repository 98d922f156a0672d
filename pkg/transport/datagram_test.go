package transport

import (
	"errors"
	"net"
	"testing"
	"time"
)

func TestDatagramLearnsPeer(t *testing.T) {
	server, err := NewDatagram(DatagramConfig{ListenAddr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("NewDatagram() = %v", err)
	}
	defer server.Close()

	if !IsDatagram(server) {
		t.Fatal("Datagram transport does not report datagram")
	}
	if _, err := server.Send([]byte("x")); !errors.Is(err, ErrGeneral) || !errors.Is(err, ErrNoPeer) {
		t.Fatalf("Send() without peer = %v", err)
	}

	client, err := DialDatagram(server.LocalAddr().String(), DatagramConfig{
		ListenAddr:  "127.0.0.1:0",
		ReadTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("DialDatagram() = %v", err)
	}
	defer client.Close()

	if _, err := client.Send([]byte("first")); err != nil {
		t.Fatalf("Send() = %v", err)
	}

	buf := make([]byte, 64)
	n, err := server.Receive(buf)
	if err != nil || string(buf[:n]) != "first" {
		t.Fatalf("Receive() = %q, %v", buf[:n], err)
	}
	if server.Peer() == nil || server.Peer().String() != client.LocalAddr().String() {
		t.Fatalf("server peer = %v, want %v", server.Peer(), client.LocalAddr())
	}

	server.Send([]byte("reply"))
	n, err = client.Receive(buf)
	if err != nil || string(buf[:n]) != "reply" {
		t.Fatalf("client Receive() = %q, %v", buf[:n], err)
	}
}

func TestDatagramDropsForeignSource(t *testing.T) {
	server, _ := NewDatagram(DatagramConfig{ListenAddr: "127.0.0.1:0", NonBlocking: true, PollTimeout: 50 * time.Millisecond})
	defer server.Close()

	stranger, _ := net.ListenPacket("udp", "127.0.0.1:0")
	defer stranger.Close()
	known, _ := net.ListenPacket("udp", "127.0.0.1:0")
	defer known.Close()

	server.SetPeer(known.LocalAddr())
	stranger.WriteTo([]byte("spoof"), server.LocalAddr())

	buf := make([]byte, 64)
	if _, err := server.Receive(buf); !errors.Is(err, ErrWantRead) {
		t.Fatalf("Receive() of foreign datagram = %v, want ErrWantRead", err)
	}
}

func TestDatagramTimeouts(t *testing.T) {
	nb, _ := NewDatagram(DatagramConfig{ListenAddr: "127.0.0.1:0", NonBlocking: true})
	defer nb.Close()
	buf := make([]byte, 8)
	if _, err := nb.Receive(buf); !errors.Is(err, ErrWantRead) || errors.Is(err, ErrTimeout) {
		t.Errorf("non-blocking Receive() = %v, want ErrWantRead only", err)
	}

	b, _ := NewDatagram(DatagramConfig{ListenAddr: "127.0.0.1:0", ReadTimeout: 10 * time.Millisecond})
	defer b.Close()
	if _, err := b.Receive(buf); !errors.Is(err, ErrTimeout) {
		t.Errorf("blocking Receive() past deadline = %v, want ErrTimeout", err)
	}
}
