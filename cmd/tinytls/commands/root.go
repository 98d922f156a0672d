package commands

import (
	"github.com/pion/logging"
	"github.com/spf13/cobra"

	"github.com/backkem/tinytls/internal/demo"
)

var (
	configPath string
	logLevel   string
	protocol   string
	address    string

	opts          demo.Options
	loggerFactory logging.LoggerFactory
)

// Execute runs the root command.
func Execute() error {
	return newRoot().Execute()
}

func newRoot() *cobra.Command {
	root := &cobra.Command{
		Use:          "tinytls",
		Short:        "TLS/DTLS demo client, server and tools",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			opts = demo.DefaultOptions()
			if configPath != "" {
				var err error
				if opts, err = demo.LoadOptions(configPath); err != nil {
					return err
				}
			}
			flags := cmd.Flags()
			if flags.Changed("log-level") || opts.LogLevel == "" {
				opts.LogLevel = logLevel
			}
			if flags.Changed("protocol") {
				opts.Protocol = protocol
			}
			if flags.Changed("address") {
				opts.Address = address
			}
			var err error
			loggerFactory, err = demo.NewLoggerFactory(opts.LogLevel)
			return err
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "YAML options file")
	pf.StringVar(&logLevel, "log-level", "warn", "disabled, error, warn, info, debug or trace")
	pf.StringVar(&protocol, "protocol", "tls", "tls or dtls")
	pf.StringVar(&address, "address", "", "listen or server address (default 127.0.0.1:11111)")

	root.AddCommand(serverCmd(), clientCmd(), membioCmd(), signCmd(), genkeysCmd())
	return root
}
