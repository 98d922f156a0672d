package demo

import (
	"context"
	"errors"
	"time"

	"github.com/backkem/tinytls/pkg/tinytls"
	"github.com/backkem/tinytls/pkg/transport"
)

// RetryLoop repeats op while it reports a retryable error, sleeping
// delay between attempts. When op times out on a DTLS session, the last
// handshake flight is retransmitted before the next attempt. The session
// may be nil for operations that never time out.
func RetryLoop(ctx context.Context, s *tinytls.Session, delay time.Duration, op func() error) error {
	for {
		err := op()
		switch {
		case err == nil:
			return nil
		case tinytls.KindOf(err) == tinytls.KindRetryable:
		case errors.Is(err, transport.ErrTimeout) && s != nil:
			if terr := s.HandleTimeout(); terr != nil && tinytls.KindOf(terr) != tinytls.KindRetryable {
				return terr
			}
		default:
			return err
		}

		if delay <= 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			continue
		}
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
