// tinytls runs the TLS/DTLS demo applications.
//
// Usage:
//
//	tinytls genkeys [--dir .]
//	tinytls server [--protocol tls|dtls] [--address :11111]
//	tinytls client [--protocol tls|dtls] [--address 127.0.0.1:11111]
//	tinytls membio
//	tinytls sign [--curve P-256] [--hash SHA-256]
//
// Every command accepts --config with a YAML options file and
// --log-level.
package main

import (
	"os"

	"github.com/backkem/tinytls/cmd/tinytls/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
