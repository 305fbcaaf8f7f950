package ldifion

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// LDAP is the directory client. It dials a fresh connection per operation;
// connections are never shared between operations, so a single client is safe
// for concurrent use.
type LDAP struct {
	config   *Config
	user     string
	password string
	logger   *slog.Logger
	storage  Storage
}

// New creates a directory client. user and password are the bind credentials;
// an empty user skips the bind (anonymous access).
func New(config *Config, user, password string, opts ...Option) (*LDAP, error) {
	if config == nil {
		return nil, fmt.Errorf("ldifion: config cannot be nil")
	}
	if config.Server == "" {
		return nil, fmt.Errorf("ldifion: config.Server cannot be empty")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	l := &LDAP{
		config:   config,
		user:     user,
		password: password,
		logger:   logger,
		storage:  NewMemoryStorage(),
	}
	for _, opt := range opts {
		opt(l)
	}

	l.logger.Debug("ldap_client_initialized",
		slog.String("server", config.Server),
		slog.String("base_dn", config.BaseDN))
	return l, nil
}

// GetConnection returns a new bound LDAP connection.
func (l *LDAP) GetConnection() (*ldap.Conn, error) {
	return l.GetConnectionContext(context.Background())
}

// GetConnectionContext returns a new bound LDAP connection, honoring ctx
// cancellation before dialing.
func (l *LDAP) GetConnectionContext(ctx context.Context) (*ldap.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	dialOpts := l.config.DialOptions
	if l.config.DialTimeout > 0 {
		dialOpts = append(dialOpts,
			ldap.DialWithDialer(&net.Dialer{Timeout: l.config.DialTimeout}))
	}

	conn, err := ldap.DialURL(l.config.Server, dialOpts...)
	if err != nil {
		l.logger.Error("ldap_dial_failed",
			slog.String("server", l.config.Server),
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("ldifion: dial %s: %w", l.config.Server, err)
	}

	if l.user != "" {
		if err := conn.Bind(l.user, l.password); err != nil {
			conn.Close()
			l.logger.Error("ldap_bind_failed",
				slog.String("server", l.config.Server),
				slog.String("user", l.user),
				slog.String("error", err.Error()))
			return nil, fmt.Errorf("ldifion: bind as %s: %w", l.user, err)
		}
	}

	l.logger.Debug("ldap_connection_established",
		slog.String("server", l.config.Server),
		slog.Duration("duration", time.Since(start)))
	return conn, nil
}
