package demo

import (
	"sync/atomic"

	"github.com/backkem/tinytls/pkg/crypto"
	"github.com/backkem/tinytls/pkg/tinytls"
)

// CountingDevice is a software stand-in for a hardware crypto engine.
// It handles the digests it was built with and declines the rest, which
// the library then computes in software.
type CountingDevice struct {
	algs      map[crypto.Hash]bool
	offloaded atomic.Int64
	declined  atomic.Int64
}

// NewCountingDevice handles the given digests. With none it handles
// SHA-256 only.
func NewCountingDevice(algs ...crypto.Hash) *CountingDevice {
	if len(algs) == 0 {
		algs = []crypto.Hash{crypto.HashSHA256}
	}
	d := &CountingDevice{algs: make(map[crypto.Hash]bool, len(algs))}
	for _, h := range algs {
		d.algs[h] = true
	}
	return d
}

// Hash implements tinytls.CryptoDevice.
func (d *CountingDevice) Hash(alg crypto.Hash, data []byte) ([]byte, error) {
	if !d.algs[alg] {
		d.declined.Add(1)
		return nil, tinytls.ErrCryptoUnavailable
	}
	d.offloaded.Add(1)
	return alg.Sum(data), nil
}

// Offloaded returns the number of requests the device served.
func (d *CountingDevice) Offloaded() int64 { return d.offloaded.Load() }

// Declined returns the number of requests left to software.
func (d *CountingDevice) Declined() int64 { return d.declined.Load() }
