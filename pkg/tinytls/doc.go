// Package tinytls is a small TLS/DTLS engine with pluggable I/O.
//
// A Context holds the immutable configuration: credentials, verification
// policy, protocol variant and algorithm preferences. Sessions created
// from it run one connection each:
//
//	ctx, err := tinytls.NewContext(tinytls.Config{}.
//		WithRootCAFiles("ca-cert.pem").
//		WithVerifyPeer())
//	if err != nil {
//		return err
//	}
//	defer ctx.Close()
//
//	sess, err := ctx.NewSession(tinytls.RoleClient)
//	if err != nil {
//		return err
//	}
//	defer sess.Close()
//	sess.SetTransport(sock)
//	if err := sess.Connect(); err != nil {
//		return err
//	}
//	sess.Write([]byte("Hello Server\n"))
//
// The core never blocks on its own and never starts goroutines or
// timers. Every call either makes progress or returns an error for which
// KindOf reports KindRetryable; the caller repeats the same call once the
// transport is ready. DTLS callers drive retransmission with
// Session.HandleTimeout.
package tinytls
