package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/backkem/tinytls/internal/demo"
	"github.com/backkem/tinytls/pkg/credentials"
)

func clientCmd() *cobra.Command {
	var cert, key string
	var cas []string
	var insecure bool
	var message string
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Send one message to the echo server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("cert") {
				opts.Certificate = cert
			}
			if flags.Changed("key") {
				opts.Key = key
			}
			if flags.Changed("ca") || len(opts.RootCAs) == 0 {
				opts.RootCAs = cas
			}
			opts.Verify = !insecure
			if insecure {
				opts.RootCAs = nil
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client, err := demo.Dial(ctx, opts, loggerFactory)
			if err != nil {
				return err
			}
			defer client.Close()
			sess := client.Session()
			fmt.Fprintf(cmd.OutOrStdout(), "Connected: %s %s\n", sess.CipherSuite(), sess.Group())

			if message == "" {
				if message, err = prompt(); err != nil {
					return err
				}
			}
			reply, err := client.Exchange(ctx, []byte(message+"\n"))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Server: %s", reply)
			return nil
		},
	}
	cmd.Flags().StringVar(&cert, "cert", "", "client certificate chain (PEM)")
	cmd.Flags().StringVar(&key, "key", "", "client private key (PEM)")
	cmd.Flags().StringSliceVar(&cas, "ca", []string{credentials.CACertFile}, "trusted CA certificates (PEM)")
	cmd.Flags().BoolVar(&insecure, "insecure", false, "skip server certificate verification")
	cmd.Flags().StringVarP(&message, "message", "m", "", "message to send instead of prompting")
	return cmd
}

func prompt() (string, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "Message for server: ",
		InterruptPrompt: "^C",
	})
	if err != nil {
		return "", fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()
	return rl.Readline()
}
