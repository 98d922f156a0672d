package handshake

import "github.com/backkem/tinytls/pkg/crypto"

// HashFunc computes a digest. A crypto device can take over transcript
// hashing by supplying one.
type HashFunc func(h crypto.Hash, data []byte) ([]byte, error)

func softwareHash(h crypto.Hash, data []byte) ([]byte, error) {
	return h.Sum(data), nil
}

// transcript accumulates handshake messages in unfragmented form. The
// suite hash is only known after ServerHello, so the raw bytes are kept
// and hashed on demand.
type transcript struct {
	buf  []byte
	hash HashFunc
}

func (t *transcript) add(msg []byte) {
	t.buf = append(t.buf, msg...)
}

func (t *transcript) sum(h crypto.Hash) ([]byte, error) {
	return t.hash(h, t.buf)
}

func (t *transcript) reset() {
	clear(t.buf)
	t.buf = nil
}
