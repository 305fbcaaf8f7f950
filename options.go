package ldifion

import (
	"crypto/tls"
	"log/slog"

	"github.com/go-ldap/ldap/v3"
)

// Option is a functional option for configuring a client.
type Option func(*LDAP)

// WithLogger sets a custom structured logger for directory operations.
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
//	client, err := New(&config, userDN, password, WithLogger(logger))
func WithLogger(logger *slog.Logger) Option {
	return func(l *LDAP) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithStorage sets the unit store used by Search and the change replay
// operations. Defaults to an in-memory store.
func WithStorage(storage Storage) Option {
	return func(l *LDAP) {
		if storage != nil {
			l.storage = storage
		}
	}
}

// WithTLS adds a TLS configuration to the dial options for secure
// connections.
func WithTLS(tlsConfig *tls.Config) Option {
	return func(l *LDAP) {
		if tlsConfig != nil {
			l.config.DialOptions = append(l.config.DialOptions, ldap.DialWithTLSConfig(tlsConfig))
		}
	}
}
