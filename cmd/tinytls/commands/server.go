package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/backkem/tinytls/internal/demo"
	"github.com/backkem/tinytls/pkg/credentials"
)

func serverCmd() *cobra.Command {
	var cert, key string
	var cas []string
	var verify bool
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the echo server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("cert") || opts.Certificate == "" {
				opts.Certificate = cert
			}
			if flags.Changed("key") || opts.Key == "" {
				opts.Key = key
			}
			if flags.Changed("ca") {
				opts.RootCAs = cas
			}
			if flags.Changed("verify") {
				opts.Verify = verify
			}
			if !flags.Changed("address") && configPath == "" {
				opts.Address = fmt.Sprintf(":%d", demo.DefaultPort)
			}

			srv, err := demo.NewServer(opts, cmd.OutOrStdout(), loggerFactory)
			if err != nil {
				return err
			}
			if err := srv.Start(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s (%s)\n", srv.Addr(), opts.Protocol)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()
			fmt.Fprintln(cmd.OutOrStdout(), "Shutting down...")
			return srv.Stop()
		},
	}
	cmd.Flags().StringVar(&cert, "cert", credentials.ServerCertFile, "certificate chain (PEM)")
	cmd.Flags().StringVar(&key, "key", credentials.ServerKeyFile, "private key (PEM)")
	cmd.Flags().StringSliceVar(&cas, "ca", nil, "trusted client CA certificates (PEM)")
	cmd.Flags().BoolVar(&verify, "verify", false, "require and verify client certificates")
	return cmd
}
