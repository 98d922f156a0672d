package record

import (
	"bytes"
	"errors"
	"testing"

	"github.com/backkem/tinytls/pkg/crypto"
	"github.com/backkem/tinytls/pkg/transport"
)

func newLayerPair(t *testing.T, mode Mode, maxFragment int) (*Layer, *Layer, *transport.Memory, *transport.Memory) {
	t.Helper()
	ta, tb := transport.NewMemoryPair(transport.MemoryConfig{Datagram: mode == ModeDatagram})
	a, err := NewLayer(Config{Transport: ta, Mode: mode, MaxFragment: maxFragment})
	if err != nil {
		t.Fatalf("NewLayer() error: %v", err)
	}
	b, err := NewLayer(Config{Transport: tb, Mode: mode, MaxFragment: maxFragment})
	if err != nil {
		t.Fatalf("NewLayer() error: %v", err)
	}
	return a, b, ta, tb
}

func newProtection(t *testing.T, suite crypto.AEAD, fill byte) *Protection {
	t.Helper()
	p, err := NewProtection(suite, bytes.Repeat([]byte{fill}, suite.KeySize()), bytes.Repeat([]byte{fill + 1}, crypto.IVSize))
	if err != nil {
		t.Fatalf("NewProtection() error: %v", err)
	}
	return p
}

// installKeys gives a and b matching, direction-specific keys.
func installKeys(t *testing.T, a, b *Layer, suite crypto.AEAD) {
	t.Helper()
	a.InstallKeys(newProtection(t, suite, 0x10), newProtection(t, suite, 0x20))
	b.InstallKeys(newProtection(t, suite, 0x20), newProtection(t, suite, 0x10))
}

func send(t *testing.T, l *Layer, ct ContentType, payload []byte) {
	t.Helper()
	if err := l.Queue(ct, payload); err != nil {
		t.Fatalf("Queue() error: %v", err)
	}
	if err := l.Flush(); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}
}

func TestNewLayerConfig(t *testing.T) {
	if _, err := NewLayer(Config{}); !errors.Is(err, ErrNoTransport) {
		t.Errorf("NewLayer() without transport = %v", err)
	}
	ta, _ := transport.NewMemoryPair(transport.MemoryConfig{})
	for _, frag := range []int{MinFragment - 1, MaxPlaintext + 1} {
		if _, err := NewLayer(Config{Transport: ta, MaxFragment: frag}); !errors.Is(err, ErrInvalidFragment) {
			t.Errorf("NewLayer(MaxFragment=%d) = %v", frag, err)
		}
	}
	l, _ := NewLayer(Config{Transport: ta, Mode: ModeDatagram})
	if l.MaxFragment() != DefaultDatagramFragment {
		t.Errorf("datagram MaxFragment() = %d", l.MaxFragment())
	}
}

func TestLayerPlaintextRoundTrip(t *testing.T) {
	for _, mode := range []Mode{ModeStream, ModeDatagram} {
		t.Run(mode.String(), func(t *testing.T) {
			a, b, _, _ := newLayerPair(t, mode, 0)

			if _, err := b.ReadRecord(); !errors.Is(err, transport.ErrWantRead) {
				t.Fatalf("ReadRecord() on empty transport = %v, want ErrWantRead", err)
			}

			send(t, a, ContentHandshake, []byte("client hello"))
			rec, err := b.ReadRecord()
			if err != nil {
				t.Fatalf("ReadRecord() error: %v", err)
			}
			if rec.Type != ContentHandshake || string(rec.Payload) != "client hello" || rec.Epoch != EpochPlaintext {
				t.Errorf("ReadRecord() = %+v", rec)
			}
		})
	}
}

func TestLayerProtectedRoundTrip(t *testing.T) {
	suites := []crypto.AEAD{crypto.AEADAES128GCM, crypto.AEADAES256GCM, crypto.AEADChaCha20Poly1305, crypto.AEADAES128CCM}
	for _, mode := range []Mode{ModeStream, ModeDatagram} {
		for _, suite := range suites {
			t.Run(mode.String()+"/"+suite.String(), func(t *testing.T) {
				a, b, _, tb := newLayerPair(t, mode, 0)
				installKeys(t, a, b, suite)

				for _, size := range []int{1, a.MaxFragment()} {
					payload := bytes.Repeat([]byte{0xab}, size)
					if err := a.Queue(ContentApplicationData, payload); err != nil {
						t.Fatal(err)
					}
					a.Flush()

					// The wire shows only the outer type.
					if mode == ModeDatagram && tb.Buffered() != mode.HeaderSize()+size+1+16 {
						t.Errorf("wire size = %d", tb.Buffered())
					}

					rec, err := b.ReadRecord()
					if err != nil {
						t.Fatalf("ReadRecord() error: %v", err)
					}
					if rec.Type != ContentApplicationData || !bytes.Equal(rec.Payload, payload) {
						t.Fatalf("ReadRecord() type=%s len=%d", rec.Type, len(rec.Payload))
					}
				}

				// Alerts are protected too, and the reply direction works.
				send(t, b, ContentAlert, Alert{Level: AlertLevelWarning}.Marshal())
				rec, err := a.ReadRecord()
				if err != nil || rec.Type != ContentAlert {
					t.Fatalf("protected alert = %+v, %v", rec, err)
				}
			})
		}
	}
}

func TestLayerHidesContentType(t *testing.T) {
	a, b, _, tb := newLayerPair(t, ModeStream, 0)
	installKeys(t, a, b, crypto.AEADAES128GCM)

	a.Queue(ContentHandshake, []byte("x"))
	a.Flush()

	wire := make([]byte, 64)
	n, _ := tb.Receive(wire)
	if wire[0] != byte(ContentApplicationData) {
		t.Errorf("outer content type = %d, want %d", wire[0], ContentApplicationData)
	}
	if n != StreamHeaderSize+1+1+16 {
		t.Errorf("record size = %d", n)
	}
}

func TestLayerFragmentation(t *testing.T) {
	for _, mode := range []Mode{ModeStream, ModeDatagram} {
		t.Run(mode.String(), func(t *testing.T) {
			a, b, _, _ := newLayerPair(t, mode, MinFragment)
			installKeys(t, a, b, crypto.AEADAES128GCM)

			payload := make([]byte, 3*MinFragment+1)
			for i := range payload {
				payload[i] = byte(i)
			}
			if err := a.Queue(ContentApplicationData, payload); err != nil {
				t.Fatal(err)
			}
			if len(a.out) != 4 {
				t.Fatalf("queued %d records, want 4", len(a.out))
			}
			a.Flush()

			var got []byte
			for i := 0; i < 4; i++ {
				rec, err := b.ReadRecord()
				if err != nil {
					t.Fatalf("ReadRecord(%d) error: %v", i, err)
				}
				if len(rec.Payload) > MinFragment {
					t.Errorf("record %d carries %d bytes", i, len(rec.Payload))
				}
				got = append(got, rec.Payload...)
			}
			if !bytes.Equal(got, payload) {
				t.Error("reassembled payload differs")
			}
		})
	}
}

func TestLayerEmptyQueue(t *testing.T) {
	a, _, _, _ := newLayerPair(t, ModeStream, 0)
	if err := a.Queue(ContentApplicationData, nil); err != nil || a.Pending() {
		t.Errorf("empty Queue() queued a record: pending=%v err=%v", a.Pending(), err)
	}
}

// flakyTransport fails every other Send with ErrWantWrite and accepts at
// most chunk bytes per call.
type flakyTransport struct {
	transport.Transport
	chunk int
	calls int
}

func (f *flakyTransport) Send(p []byte) (int, error) {
	f.calls++
	if f.calls%2 == 1 {
		return 0, transport.ErrWantWrite
	}
	if len(p) > f.chunk {
		p = p[:f.chunk]
	}
	return f.Transport.Send(p)
}

func TestLayerFlushResumes(t *testing.T) {
	ta, tb := transport.NewMemoryPair(transport.MemoryConfig{})
	flaky := &flakyTransport{Transport: ta, chunk: 7}
	a, _ := NewLayer(Config{Transport: flaky})
	b, _ := NewLayer(Config{Transport: tb})

	a.Queue(ContentHandshake, []byte("first message"))
	a.Queue(ContentHandshake, []byte("second"))

	retries := 0
	for {
		err := a.Flush()
		if err == nil {
			break
		}
		if !transport.IsRetryable(err) {
			t.Fatalf("Flush() error: %v", err)
		}
		retries++
	}
	if retries == 0 {
		t.Fatal("flaky transport never failed")
	}
	if a.Pending() {
		t.Fatal("records still pending after successful Flush")
	}

	want := 2*StreamHeaderSize + len("first message") + len("second")
	if tb.Buffered() != want {
		t.Fatalf("peer received %d bytes, want %d (no duplicates)", tb.Buffered(), want)
	}
	for _, msg := range []string{"first message", "second"} {
		rec, err := b.ReadRecord()
		if err != nil || string(rec.Payload) != msg {
			t.Fatalf("ReadRecord() = %q, %v, want %q", rec.Payload, err, msg)
		}
	}
}

func TestLayerPartialStreamInput(t *testing.T) {
	a, b, _, _ := newLayerPair(t, ModeStream, 0)

	a.Queue(ContentHandshake, []byte("split record"))
	rec := a.out[0]
	a.DiscardPending()

	// Feed the record in two pieces through the peer's transport.
	peer, local := transport.NewMemoryPair(transport.MemoryConfig{})
	b.SetTransport(local)
	peer.Send(rec[:3])
	if _, err := b.ReadRecord(); !errors.Is(err, transport.ErrWantRead) {
		t.Fatalf("ReadRecord() on partial header = %v", err)
	}
	peer.Send(rec[3:10])
	if _, err := b.ReadRecord(); !errors.Is(err, transport.ErrWantRead) {
		t.Fatalf("ReadRecord() on partial body = %v", err)
	}
	peer.Send(rec[10:])
	got, err := b.ReadRecord()
	if err != nil || string(got.Payload) != "split record" {
		t.Fatalf("ReadRecord() = %q, %v", got.Payload, err)
	}
}

func flipLastByte(p []byte) []byte {
	p[len(p)-1] ^= 0x01
	return p
}

func TestLayerStreamCorruptionIsFatal(t *testing.T) {
	a, b, ta, _ := newLayerPair(t, ModeStream, 0)
	installKeys(t, a, b, crypto.AEADAES128GCM)

	ta.InjectFault(flipLastByte)
	send(t, a, ContentApplicationData, []byte("tampered"))

	_, err := b.ReadRecord()
	if !errors.Is(err, ErrBadRecordMAC) {
		t.Fatalf("ReadRecord() = %v, want ErrBadRecordMAC", err)
	}
	if AlertFor(err) != AlertBadRecordMAC {
		t.Errorf("AlertFor() = %s", AlertFor(err))
	}
}

func TestLayerDatagramCorruptionIsFatal(t *testing.T) {
	a, b, ta, _ := newLayerPair(t, ModeDatagram, 0)
	installKeys(t, a, b, crypto.AEADAES128GCM)

	ta.InjectFault(flipLastByte)
	send(t, a, ContentApplicationData, []byte("tampered"))

	_, err := b.ReadRecord()
	if !errors.Is(err, ErrBadRecordMAC) {
		t.Fatalf("ReadRecord() = %v, want ErrBadRecordMAC", err)
	}
	if errors.Is(err, ErrRecordDropped) {
		t.Errorf("ReadRecord() = %v, must not be a silent drop", err)
	}
	if b.Dropped() != 0 {
		t.Errorf("Dropped() = %d, want 0", b.Dropped())
	}
}

func TestLayerZeroByteReceiveIsClose(t *testing.T) {
	for _, mode := range []Mode{ModeStream, ModeDatagram} {
		t.Run(mode.String(), func(t *testing.T) {
			l, err := NewLayer(Config{Transport: closedTransport{}, Mode: mode})
			if err != nil {
				t.Fatalf("NewLayer() error: %v", err)
			}
			if _, err := l.ReadRecord(); !errors.Is(err, transport.ErrConnClosed) {
				t.Fatalf("ReadRecord() = %v, want ErrConnClosed", err)
			}
			if err := l.Queue(ContentAlert, []byte{1, 0}); err != nil {
				t.Fatalf("Queue() error: %v", err)
			}
			if err := l.Flush(); !errors.Is(err, transport.ErrConnClosed) {
				t.Fatalf("Flush() = %v, want ErrConnClosed", err)
			}
		})
	}
}

// closedTransport reports an orderly close on every call.
type closedTransport struct{}

func (closedTransport) Send([]byte) (int, error) { return 0, nil }
func (closedTransport) Receive([]byte) (int, error) { return 0, nil }

func TestLayerDatagramReplay(t *testing.T) {
	a, b, ta, _ := newLayerPair(t, ModeDatagram, 0)
	installKeys(t, a, b, crypto.AEADAES128GCM)

	var captured []byte
	ta.InjectFault(func(p []byte) []byte {
		captured = append([]byte(nil), p...)
		return p
	})
	send(t, a, ContentApplicationData, []byte("once"))
	if _, err := b.ReadRecord(); err != nil {
		t.Fatalf("ReadRecord() error: %v", err)
	}

	// Replay the captured datagram.
	ta.Send(captured)
	if _, err := b.ReadRecord(); !errors.Is(err, transport.ErrWantRead) {
		t.Fatalf("ReadRecord() of replay = %v, want it dropped", err)
	}
	if b.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", b.Dropped())
	}
}

func TestLayerDatagramUnknownEpoch(t *testing.T) {
	a, b, _, _ := newLayerPair(t, ModeDatagram, 0)
	a.InstallKeys(newProtection(t, crypto.AEADAES128GCM, 1), newProtection(t, crypto.AEADAES128GCM, 2))

	// b has no epoch 1 keys yet.
	send(t, a, ContentApplicationData, []byte("early"))
	if _, err := b.ReadRecord(); !errors.Is(err, transport.ErrWantRead) {
		t.Fatalf("ReadRecord() = %v, want record dropped", err)
	}
}

func TestLayerDatagramEpochZeroRetransmission(t *testing.T) {
	a, b, _, _ := newLayerPair(t, ModeDatagram, 0)
	installKeys(t, a, b, crypto.AEADAES128GCM)

	if err := a.QueueEpoch(EpochPlaintext, ContentHandshake, []byte("finished")); err != nil {
		t.Fatal(err)
	}
	a.Flush()
	rec, err := b.ReadRecord()
	if err != nil || rec.Epoch != EpochPlaintext || rec.Type != ContentHandshake {
		t.Fatalf("ReadRecord() = %+v, %v", rec, err)
	}

	// Plaintext alerts are no longer accepted in epoch 0.
	a.QueueEpoch(EpochPlaintext, ContentAlert, Alert{Level: AlertLevelFatal}.Marshal())
	a.Flush()
	if _, err := b.ReadRecord(); !errors.Is(err, transport.ErrWantRead) {
		t.Fatalf("plaintext alert after keys = %v, want dropped", err)
	}
}

func TestLayerStreamPlaintextAfterKeys(t *testing.T) {
	a, b, _, _ := newLayerPair(t, ModeStream, 0)
	b.InstallKeys(newProtection(t, crypto.AEADAES128GCM, 1), newProtection(t, crypto.AEADAES128GCM, 2))

	send(t, a, ContentAlert, Alert{Level: AlertLevelFatal, Description: AlertHandshakeFailure}.Marshal())
	if _, err := b.ReadRecord(); !errors.Is(err, ErrUnexpectedRecord) {
		t.Fatalf("ReadRecord() = %v, want ErrUnexpectedRecord", err)
	}
}

func TestLayerMalformedInput(t *testing.T) {
	tests := []struct {
		name string
		hdr  Header
		want error
	}{
		{"overflow", Header{Type: ContentHandshake, Version: VersionTLS, Length: MaxCiphertext + 1}, ErrRecordOverflow},
		{"bad version", Header{Type: ContentHandshake, Version: 0x0301, Length: 1}, ErrBadVersion},
		{"plaintext application data", Header{Type: ContentApplicationData, Version: VersionTLS, Length: 1}, ErrUnexpectedRecord},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			peer, local := transport.NewMemoryPair(transport.MemoryConfig{})
			l, _ := NewLayer(Config{Transport: local})
			peer.Send(append(tt.hdr.Marshal(ModeStream), 0x00))
			if _, err := l.ReadRecord(); !errors.Is(err, tt.want) {
				t.Fatalf("ReadRecord() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLayerSequenceExhaustion(t *testing.T) {
	a, _, _, _ := newLayerPair(t, ModeDatagram, 0)
	a.writes[EpochPlaintext].seq = NewSequenceCounterAt(MaxDatagramSequence-1, MaxDatagramSequence)

	if err := a.Queue(ContentHandshake, []byte("last")); err != nil {
		t.Fatalf("Queue() of last sequence number = %v", err)
	}
	if err := a.Queue(ContentHandshake, []byte("one too many")); !errors.Is(err, ErrSequenceExhausted) {
		t.Fatalf("Queue() past limit = %v, want ErrSequenceExhausted", err)
	}
}

func TestLayerZeroize(t *testing.T) {
	a, _, _, _ := newLayerPair(t, ModeStream, 0)
	read := newProtection(t, crypto.AEADAES128GCM, 1)
	write := newProtection(t, crypto.AEADAES128GCM, 2)
	a.InstallKeys(read, write)
	a.Queue(ContentApplicationData, []byte("pending"))

	a.Zeroize()
	if !read.Zeroized() || !write.Zeroized() {
		t.Error("protections not zeroized")
	}
	if !bytes.Equal(write.key, make([]byte, 16)) {
		t.Error("key bytes not cleared")
	}
	if a.Pending() {
		t.Error("queued records survived Zeroize")
	}
	if _, err := a.ReadRecord(); !errors.Is(err, ErrKeysZeroized) {
		t.Errorf("ReadRecord() after Zeroize = %v", err)
	}
	if err := a.Queue(ContentApplicationData, []byte("x")); !errors.Is(err, ErrKeysZeroized) {
		t.Errorf("Queue() after Zeroize = %v", err)
	}
	if _, err := write.Seal(nil, 0, nil, nil); !errors.Is(err, ErrKeysZeroized) {
		t.Errorf("Seal() after Zeroize = %v", err)
	}
}
