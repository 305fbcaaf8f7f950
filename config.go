package ldifion

import (
	"log/slog"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// Config contains the connection settings for the directory server.
type Config struct {
	// Server is the LDAP URL, e.g. "ldaps://ldap.example.com:636".
	Server string
	// BaseDN is the default search base when a search does not name one.
	BaseDN string
	// DialTimeout bounds connection establishment. Zero means the go-ldap
	// default.
	DialTimeout time.Duration
	// Logger receives structured diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
	// DialOptions are passed through to ldap.DialURL.
	DialOptions []ldap.DialOpt
}
