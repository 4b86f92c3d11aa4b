package ldapauth

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// Session wraps one live directory connection. Sessions are owned by the
// caller for the duration of one bind+search or one bind, are never
// shared, and must be closed on every path.
type Session interface {
	Close() error
}

// Directory is the operation surface the orchestrator drives. The real
// implementation is Client; tests substitute a fake so the full flow runs
// without a network.
type Directory interface {
	// BindAsService opens a connection and authenticates with the
	// configured service account.
	BindAsService(ctx context.Context, cfg *ConnectionConfig) (Session, error)

	// LookupUser searches for the user below the base DN. Exactly one
	// match is required; zero or several entries are both ErrUserNotFound.
	LookupUser(ctx context.Context, s Session, cfg *ConnectionConfig, username string) (*Entry, error)

	// BindAsUser opens a fresh connection, never reusing the service
	// session, and attempts to bind with the given DN and password. The
	// connection is released before returning.
	BindAsUser(ctx context.Context, cfg *ConnectionConfig, dn, password string) error
}

// Entry is the single matched directory entry of a user lookup.
type Entry struct {
	// DN is the distinguished name the user bind will authenticate
	// against.
	DN string
	// DisplayValue is the value of the configured display attribute, or
	// empty when the entry does not carry it.
	DisplayValue string
}

// Client implements Directory against a real LDAP server.
type Client struct {
	logger *slog.Logger
}

// NewClient returns a Client. A nil logger falls back to slog.Default().
func NewClient(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{logger: logger}
}

// directoryConn is the slice of *ldap.Conn the client relies on. Tests
// substitute a scripted implementation.
type directoryConn interface {
	Bind(username, password string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Close() error
}

// liveSession is the Session a Client hands out.
type liveSession struct {
	conn directoryConn
}

func (s *liveSession) Close() error { return s.conn.Close() }

// tlsConfig builds the TLS settings for both LDAPS and StartTLS.
func tlsConfig(cfg *ConnectionConfig) *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: !cfg.VerifyTLS, //nolint:gosec // operator opt-out via verify_ssl
		MinVersion:         tls.VersionTLS12,
	}
}

// dial opens a connection according to the URI scheme, bounded by the
// configured timeout for both connect and receive. A StartTLS failure
// closes the connection and is reported to the caller; the plaintext
// connection is never used past a failed upgrade.
func (c *Client) dial(ctx context.Context, cfg *ConnectionConfig) (*ldap.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	c.logger.Debug("ldap_connection_establishing",
		slog.String("server", cfg.ServerURI),
		slog.Bool("ldaps", cfg.IsLDAPS()),
		slog.Bool("starttls", cfg.UseStartTLS),
		slog.Bool("verify_tls", cfg.VerifyTLS))

	// DialURL cannot be interrupted once started; cancellation between
	// the check above and the connect is bounded by the dialer timeout.
	opts := []ldap.DialOpt{
		ldap.DialWithDialer(&net.Dialer{Timeout: cfg.Timeout()}),
	}
	if cfg.IsLDAPS() {
		opts = append(opts, ldap.DialWithTLSConfig(tlsConfig(cfg)))
	}

	conn, err := ldap.DialURL(cfg.ServerURI, opts...)
	if err != nil {
		c.logger.Error("ldap_connection_dial_failed",
			slog.String("server", cfg.ServerURI),
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)))
		return nil, err
	}
	conn.SetTimeout(cfg.Timeout())

	if cfg.UseStartTLS && !cfg.IsLDAPS() {
		if err := conn.StartTLS(tlsConfig(cfg)); err != nil {
			_ = conn.Close()
			c.logger.Error("ldap_starttls_failed",
				slog.String("server", cfg.ServerURI),
				slog.String("error", err.Error()),
				slog.Duration("duration", time.Since(start)))
			return nil, fmt.Errorf("starttls upgrade failed: %w", err)
		}
	}

	c.logger.Debug("ldap_connection_established",
		slog.String("server", cfg.ServerURI),
		slog.Duration("duration", time.Since(start)))
	return conn, nil
}

// BindAsService establishes a connection and binds with the configured
// service account. Transport failures map to ErrConnection, a rejected
// service credential to ErrAuthentication.
func (c *Client) BindAsService(ctx context.Context, cfg *ConnectionConfig) (Session, error) {
	start := time.Now()

	conn, err := c.dial(ctx, cfg)
	if err != nil {
		return nil, connectionError("BindAsService", cfg.ServerURI, err)
	}

	if err := conn.Bind(cfg.BindDN, cfg.BindPassword); err != nil {
		_ = conn.Close()
		c.logger.Warn("service_bind_failed",
			slog.String("server", cfg.ServerURI),
			slog.String("bind_dn_masked", maskSensitiveData(cfg.BindDN)),
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)))
		return nil, classifyBindError("BindAsService", cfg.ServerURI, err)
	}

	c.logger.Debug("service_bind_successful",
		slog.String("server", cfg.ServerURI),
		slog.Duration("duration", time.Since(start)))
	return &liveSession{conn: conn}, nil
}

// LookupUser runs the subtree search for the username below the base DN,
// requesting only the display and match attributes. The session is left
// open; releasing it is the caller's responsibility regardless of
// outcome.
func (c *Client) LookupUser(ctx context.Context, s Session, cfg *ConnectionConfig, username string) (*Entry, error) {
	live, ok := s.(*liveSession)
	if !ok {
		return nil, operationError("LookupUser", cfg.ServerURI, errors.New("session was not created by this client"))
	}
	if err := ctx.Err(); err != nil {
		return nil, connectionError("LookupUser", cfg.ServerURI, err)
	}

	start := time.Now()
	filter := BuildUserFilter(cfg.BaseFilter, cfg.MatchAttribute, username)

	r, err := live.conn.Search(&ldap.SearchRequest{
		BaseDN:       cfg.BaseDN,
		Scope:        ldap.ScopeWholeSubtree,
		DerefAliases: ldap.NeverDerefAliases,
		TimeLimit:    cfg.TimeoutSeconds,
		Filter:       filter,
		Attributes:   []string{cfg.DisplayAttribute, cfg.MatchAttribute},
	})
	if err != nil {
		c.logger.Warn("user_search_failed",
			slog.String("server", cfg.ServerURI),
			slog.String("username_masked", maskSensitiveData(username)),
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)))
		if isTransportError(err) {
			return nil, connectionError("LookupUser", cfg.ServerURI, err)
		}
		return nil, operationError("LookupUser", cfg.ServerURI, err)
	}

	switch n := len(r.Entries); {
	case n == 0:
		c.logger.Debug("user_search_empty",
			slog.String("username_masked", maskSensitiveData(username)),
			slog.Duration("duration", time.Since(start)))
		return nil, notFoundError("LookupUser", cfg.ServerURI, errors.New("no entry matched"))
	case n > 1:
		// Ambiguity is a failure, not a pick-first.
		c.logger.Warn("user_search_ambiguous",
			slog.String("username_masked", maskSensitiveData(username)),
			slog.Int("entries", n),
			slog.Duration("duration", time.Since(start)))
		return nil, notFoundError("LookupUser", cfg.ServerURI, fmt.Errorf("ambiguous match: %d entries", n))
	}

	entry := r.Entries[0]
	c.logger.Debug("user_search_successful",
		slog.String("username_masked", maskSensitiveData(username)),
		slog.String("dn_masked", maskSensitiveData(entry.DN)),
		slog.Duration("duration", time.Since(start)))

	return &Entry{
		DN:           entry.DN,
		DisplayValue: entry.GetAttributeValue(cfg.DisplayAttribute),
	}, nil
}

// BindAsUser verifies the submitted password by binding as the looked-up
// DN on a fresh connection. Any rejection by the directory is
// ErrAuthentication, transport failure is ErrConnection. The connection
// is released immediately after the attempt; no further operation runs on
// it.
func (c *Client) BindAsUser(ctx context.Context, cfg *ConnectionConfig, dn, password string) error {
	start := time.Now()

	conn, err := c.dial(ctx, cfg)
	if err != nil {
		return connectionError("BindAsUser", cfg.ServerURI, err)
	}
	defer func() { _ = conn.Close() }()

	if err := conn.Bind(dn, password); err != nil {
		c.logger.Warn("user_bind_failed",
			slog.String("server", cfg.ServerURI),
			slog.String("dn_masked", maskSensitiveData(dn)),
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)))
		if isTransportError(err) {
			return connectionError("BindAsUser", cfg.ServerURI, err)
		}
		return authenticationError("BindAsUser", cfg.ServerURI, err)
	}

	c.logger.Debug("user_bind_successful",
		slog.String("server", cfg.ServerURI),
		slog.String("dn_masked", maskSensitiveData(dn)),
		slog.Duration("duration", time.Since(start)))
	return nil
}
