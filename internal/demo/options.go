// Package demo holds the example applications behind the tinytls CLI:
// the echo client and server, the in-memory DTLS pair, the deterministic
// signing demo and the YAML option files they share.
package demo

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/backkem/tinytls/pkg/credentials"
	"github.com/backkem/tinytls/pkg/crypto"
	"github.com/backkem/tinytls/pkg/handshake"
	"github.com/backkem/tinytls/pkg/tinytls"
	"github.com/pion/logging"
	"gopkg.in/yaml.v3"
)

// DefaultPort is the port used by the echo demos.
const DefaultPort = 11111

var (
	ErrUnknownProtocol = errors.New("demo: unknown protocol")
	ErrUnknownSuite    = errors.New("demo: unknown cipher suite")
	ErrUnknownGroup    = errors.New("demo: unknown group")
	ErrUnknownLevel    = errors.New("demo: unknown log level")
)

// Options configures the demo applications. It is read from YAML files
// and overridden by command-line flags.
type Options struct {
	// Protocol is "tls" or "dtls".
	Protocol string `yaml:"protocol"`

	// Address is the listen address of the server or the target of the
	// client.
	Address string `yaml:"address"`

	// Certificate, Key and RootCAs are PEM file paths.
	Certificate string   `yaml:"certificate"`
	Key         string   `yaml:"key"`
	RootCAs     []string `yaml:"root_cas"`

	// Verify enables peer verification.
	Verify bool `yaml:"verify"`

	// CipherSuites and Groups use the IANA names, e.g.
	// TLS_AES_128_GCM_SHA256 and x25519.
	CipherSuites []string `yaml:"cipher_suites"`
	Groups       []string `yaml:"groups"`

	MaxFragment int `yaml:"max_fragment"`

	// RetryDelay is slept between retryable calls. Zero retries
	// immediately.
	RetryDelay time.Duration `yaml:"retry_delay"`

	// ReadTimeout bounds DTLS reads before a retransmission.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// LogLevel is one of disabled, error, warn, info, debug, trace.
	LogLevel string `yaml:"log_level"`
}

// DefaultOptions returns the options of the stock demo: TLS on port
// 11111 with credentials in the current directory.
func DefaultOptions() Options {
	return Options{
		Protocol:    "tls",
		Address:     fmt.Sprintf("127.0.0.1:%d", DefaultPort),
		RetryDelay:  time.Millisecond,
		ReadTimeout: time.Second,
		LogLevel:    "warn",
	}
}

// LoadOptions reads a YAML file over the defaults.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()
	data, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("demo: reading options: %w", err)
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("demo: parsing %s: %w", path, err)
	}
	return opts, nil
}

// Marshal encodes the options as YAML.
func (o Options) Marshal() ([]byte, error) {
	return yaml.Marshal(o)
}

// protocol parses the protocol variant.
func (o Options) protocol() (tinytls.Protocol, error) {
	switch strings.ToLower(o.Protocol) {
	case "", "tls":
		return tinytls.ProtocolTLS, nil
	case "dtls":
		return tinytls.ProtocolDTLS, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownProtocol, o.Protocol)
	}
}

// Config maps the options onto a tinytls.Config.
func (o Options) Config(lf logging.LoggerFactory) (tinytls.Config, error) {
	proto, err := o.protocol()
	if err != nil {
		return tinytls.Config{}, err
	}
	cfg := tinytls.Config{
		Protocol:    proto,
		MaxFragment: o.MaxFragment,
		Files: credentials.Files{
			Certificate: o.Certificate,
			PrivateKey:  o.Key,
			RootCAs:     o.RootCAs,
		},
		LoggerFactory: lf,
	}
	if o.Verify {
		cfg = cfg.WithVerifyPeer()
	}
	for _, name := range o.CipherSuites {
		cs, err := ParseCipherSuite(name)
		if err != nil {
			return tinytls.Config{}, err
		}
		cfg.CipherSuites = append(cfg.CipherSuites, cs)
	}
	for _, name := range o.Groups {
		g, err := ParseGroup(name)
		if err != nil {
			return tinytls.Config{}, err
		}
		cfg.Groups = append(cfg.Groups, g)
	}
	return cfg, nil
}

// ParseCipherSuite looks a suite up by its IANA name.
func ParseCipherSuite(name string) (tinytls.CipherSuite, error) {
	for _, cs := range handshake.DefaultCipherSuites {
		if strings.EqualFold(cs.String(), name) {
			return cs, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSuite, name)
}

// ParseGroup looks a key exchange group up by name.
func ParseGroup(name string) (crypto.Group, error) {
	for _, g := range handshake.DefaultGroups {
		if strings.EqualFold(g.String(), name) {
			return g, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownGroup, name)
}

// NewLoggerFactory returns a pion logger factory at the named level.
func NewLoggerFactory(level string) (logging.LoggerFactory, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	lf := logging.NewDefaultLoggerFactory()
	lf.DefaultLogLevel = lvl
	return lf, nil
}

func parseLevel(level string) (logging.LogLevel, error) {
	switch strings.ToLower(level) {
	case "disabled", "off":
		return logging.LogLevelDisabled, nil
	case "error":
		return logging.LogLevelError, nil
	case "", "warn":
		return logging.LogLevelWarn, nil
	case "info":
		return logging.LogLevelInfo, nil
	case "debug":
		return logging.LogLevelDebug, nil
	case "trace":
		return logging.LogLevelTrace, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownLevel, level)
	}
}
