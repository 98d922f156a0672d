package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/backkem/tinytls/internal/demo"
	"github.com/backkem/tinytls/pkg/credentials"
	"github.com/backkem/tinytls/pkg/crypto"
	"github.com/backkem/tinytls/pkg/crypto/detecdsa"
	"github.com/backkem/tinytls/pkg/tinytls"
)

func membioCmd() *cobra.Command {
	var offload bool
	cmd := &cobra.Command{
		Use:   "membio",
		Short: "Run a DTLS client and server over in-memory buffers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := credentials.GenerateDemoSet(credentials.GenerateOptions{})
			if err != nil {
				return err
			}
			client := tinytls.Config{LoggerFactory: loggerFactory}.
				WithRootCABuffers(set.CACert).
				WithVerifyPeer()
			server := tinytls.Config{LoggerFactory: loggerFactory}.
				WithCertificateBuffers(set.ServerCert, set.ServerKey)

			var dev *demo.CountingDevice
			if offload {
				dev = demo.NewCountingDevice()
				client = client.WithCryptoDevice(dev)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if _, err := demo.RunMemoryBIO(ctx, client, server, cmd.OutOrStdout()); err != nil {
				return err
			}
			if dev != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Crypto device: %d offloaded, %d in software\n", dev.Offloaded(), dev.Declined())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&offload, "crypto-device", false, "hash the client transcript through the demo crypto device")
	return cmd
}

func signCmd() *cobra.Command {
	var curveName, hashName string
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign the RFC 6979 sample message deterministically",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			curve, err := parseCurve(curveName)
			if err != nil {
				return err
			}
			h := curve.Hash()
			if hashName != "" {
				if h, err = parseHash(hashName); err != nil {
					return err
				}
			}
			_, err = demo.SignDemo(cmd.OutOrStdout(), curve, h)
			return err
		},
	}
	cmd.Flags().StringVar(&curveName, "curve", "P-256", "P-256, P-384 or P-521")
	cmd.Flags().StringVar(&hashName, "hash", "", "SHA-256, SHA-384 or SHA-512 (default: the curve's hash)")
	return cmd
}

func genkeysCmd() *cobra.Command {
	var dir, curveName string
	var hosts []string
	var validity time.Duration
	cmd := &cobra.Command{
		Use:   "genkeys",
		Short: "Write a demo CA, server and client certificate set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			curve, err := parseCurve(curveName)
			if err != nil {
				return err
			}
			set, err := credentials.GenerateDemoSet(credentials.GenerateOptions{
				Curve:    curve,
				Hosts:    hosts,
				Validity: validity,
			})
			if err != nil {
				return err
			}
			server, client, err := set.WriteFiles(dir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "CA:     %s\n", server.RootCAs[0])
			fmt.Fprintf(out, "Server: %s %s\n", server.Certificate, server.PrivateKey)
			fmt.Fprintf(out, "Client: %s %s\n", client.Certificate, client.PrivateKey)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", ".", "output directory")
	cmd.Flags().StringVar(&curveName, "curve", "P-256", "P-256, P-384 or P-521")
	cmd.Flags().StringSliceVar(&hosts, "hosts", nil, "server certificate names (default localhost,127.0.0.1)")
	cmd.Flags().DurationVar(&validity, "validity", 0, "certificate lifetime (default 365 days)")
	return cmd
}

func parseCurve(name string) (detecdsa.Curve, error) {
	for _, c := range []detecdsa.Curve{detecdsa.CurveP256, detecdsa.CurveP384, detecdsa.CurveP521} {
		if strings.EqualFold(c.String(), name) || strings.EqualFold(strings.ReplaceAll(c.String(), "-", ""), name) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", detecdsa.ErrUnsupportedCurve, name)
}

func parseHash(name string) (crypto.Hash, error) {
	for _, h := range []crypto.Hash{crypto.HashSHA256, crypto.HashSHA384, crypto.HashSHA512} {
		if strings.EqualFold(h.String(), name) || strings.EqualFold(strings.ReplaceAll(h.String(), "-", ""), name) {
			return h, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", crypto.ErrUnknownHash, name)
}
