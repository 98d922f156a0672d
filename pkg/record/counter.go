package record

// SequenceCounter hands out record sequence numbers for one
// (epoch, direction). Numbers are never reused; reaching the limit is
// fatal.
type SequenceCounter struct {
	next  uint64
	limit uint64
}

// NewSequenceCounter returns a counter that starts at 0 and fails once
// limit is reached.
func NewSequenceCounter(limit uint64) *SequenceCounter {
	return &SequenceCounter{limit: limit}
}

// NewSequenceCounterAt returns a counter starting at start. Used when
// restoring state and in tests.
func NewSequenceCounterAt(start, limit uint64) *SequenceCounter {
	return &SequenceCounter{next: start, limit: limit}
}

// Next returns the next sequence number.
func (c *SequenceCounter) Next() (uint64, error) {
	if c.next >= c.limit {
		return 0, ErrSequenceExhausted
	}
	current := c.next
	c.next++
	return current, nil
}

// Peek returns the number Next would return.
func (c *SequenceCounter) Peek() uint64 {
	return c.next
}

// ReplayWindowSize is the number of records behind the highest accepted
// sequence number that are still tracked.
const ReplayWindowSize = 64

// ReplayWindow is the sliding-window bitmap used for datagram replay
// detection. Check and Accept are split so that a record is only marked
// as seen after it authenticates; a forged record never moves the window.
// It is not safe for concurrent use.
type ReplayWindow struct {
	maxSeq      uint64 // Largest accepted sequence number
	bitmap      uint64 // Bit i set: maxSeq-i-1 was accepted
	initialized bool
}

// Check reports whether seq is new. It does not modify the window.
func (w *ReplayWindow) Check(seq uint64) bool {
	if !w.initialized || seq > w.maxSeq {
		return true
	}
	if seq == w.maxSeq {
		return false
	}
	offset := w.maxSeq - seq - 1
	if offset >= ReplayWindowSize {
		// Behind the window.
		return false
	}
	return w.bitmap&(1<<offset) == 0
}

// Accept marks seq as received. The caller must have checked it first.
func (w *ReplayWindow) Accept(seq uint64) {
	if !w.initialized {
		w.maxSeq = seq
		w.bitmap = 0
		w.initialized = true
		return
	}
	if seq > w.maxSeq {
		w.advance(seq)
		return
	}
	if seq < w.maxSeq {
		offset := w.maxSeq - seq - 1
		if offset < ReplayWindowSize {
			w.bitmap |= 1 << offset
		}
	}
}

// advance moves the window forward to newMax, keeping the old maximum
// marked as received.
func (w *ReplayWindow) advance(newMax uint64) {
	shift := newMax - w.maxSeq
	if shift > ReplayWindowSize {
		w.bitmap = 0
	} else {
		// At shift == ReplayWindowSize the shift clears every bit and only
		// the old maximum is kept.
		w.bitmap = (w.bitmap << shift) | (1 << (shift - 1))
	}
	w.maxSeq = newMax
}

// MaxSequence returns the highest accepted sequence number.
func (w *ReplayWindow) MaxSequence() uint64 {
	return w.maxSeq
}
