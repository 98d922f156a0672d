package handshake

import "fmt"

// maxReorder bounds how far ahead of the next expected message_seq a
// datagram fragment may be buffered.
const maxReorder = 16

// inbound is one complete received message.
type inbound struct {
	typ  MessageType
	seq  uint16
	body []byte
}

// raw returns the transcript form of the message.
func (in inbound) raw() []byte {
	return frame(in.typ, in.seq, in.body)
}

// streamInbox parses messages from the concatenated handshake records of
// stream mode. Messages may span records and a record may hold several
// messages.
type streamInbox struct {
	buf  []byte
	next uint16
}

func (s *streamInbox) add(payload []byte) {
	s.buf = append(s.buf, payload...)
}

func (s *streamInbox) pop() (inbound, bool, error) {
	if len(s.buf) < HeaderSize {
		return inbound{}, false, nil
	}
	length := int(s.buf[1])<<16 | int(s.buf[2])<<8 | int(s.buf[3])
	if length > MaxMessageSize {
		return inbound{}, false, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, length)
	}
	if len(s.buf) < HeaderSize+length {
		return inbound{}, false, nil
	}
	in := inbound{
		typ:  MessageType(s.buf[0]),
		seq:  uint16(s.buf[4])<<8 | uint16(s.buf[5]),
		body: append([]byte(nil), s.buf[HeaderSize:HeaderSize+length]...),
	}
	s.buf = s.buf[HeaderSize+length:]
	if in.seq != s.next {
		return inbound{}, false, fmt.Errorf("%w: message_seq %d, want %d", ErrUnexpectedMessage, in.seq, s.next)
	}
	s.next++
	return in, true, nil
}

// partial is a datagram message under reassembly.
type partial struct {
	typ    MessageType
	body   []byte
	filled []bool
	have   int
}

func (p *partial) complete() bool {
	return p.have == len(p.body)
}

// reassembler rebuilds datagram messages from fragments and releases them
// strictly in message_seq order. Fragments may arrive out of order or
// duplicated.
type reassembler struct {
	next    uint16
	pending map[uint16]*partial
}

func newReassembler() *reassembler {
	return &reassembler{pending: make(map[uint16]*partial)}
}

// add stores a fragment. It reports dup when the fragment belongs to a
// message that was already delivered.
func (r *reassembler) add(f fragment) (dup bool, err error) {
	if f.seq < r.next {
		return true, nil
	}
	if f.seq-r.next >= maxReorder {
		return false, nil
	}
	p, ok := r.pending[f.seq]
	if !ok {
		p = &partial{typ: f.typ, body: make([]byte, f.length), filled: make([]bool, f.length)}
		r.pending[f.seq] = p
	}
	if p.typ != f.typ || len(p.body) != f.length {
		return false, fmt.Errorf("%w: fragment of message %d disagrees on type or length", ErrDecode, f.seq)
	}
	copy(p.body[f.offset:], f.data)
	for i := f.offset; i < f.offset+len(f.data); i++ {
		if !p.filled[i] {
			p.filled[i] = true
			p.have++
		}
	}
	return false, nil
}

func (r *reassembler) pop() (inbound, bool) {
	p, ok := r.pending[r.next]
	if !ok || !p.complete() {
		return inbound{}, false
	}
	delete(r.pending, r.next)
	in := inbound{typ: p.typ, seq: r.next, body: p.body}
	r.next++
	return in, true
}
