package ldapauth

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Credentials is the username/password pair submitted by the host for one
// invocation.
type Credentials struct {
	Username string
	Password string
}

// CredentialsFromEnv reads the credentials the host passes via the
// process environment. The lowercase variable names are the contract; the
// uppercase forms are accepted as a fallback. The username is
// NFC-normalized so composed and decomposed spellings match the same
// directory entry. A missing credential is a configuration error, not an
// authentication failure.
func CredentialsFromEnv() (Credentials, error) {
	username := os.Getenv("username")
	if username == "" {
		username = os.Getenv("USERNAME")
	}
	password := os.Getenv("password")
	if password == "" {
		password = os.Getenv("PASSWORD")
	}
	if username == "" || password == "" {
		return Credentials{}, configurationError("CredentialsFromEnv",
			errors.New("username and password environment variables are required"))
	}
	return Credentials{Username: norm.NFC.String(username), Password: password}, nil
}

// Result is the successful outcome of one authentication.
type Result struct {
	// Username is the submitted (normalized) username.
	Username string
	// DisplayName is the value to report to the host: the display
	// attribute when the directory carries it, otherwise the username.
	DisplayName string
}

// Authenticator drives the two-bind flow: service bind, user lookup,
// user bind. It is a linear sequence with no retries; the host re-invokes
// the whole process to retry.
type Authenticator struct {
	dir    Directory
	logger *slog.Logger
}

// NewAuthenticator returns an Authenticator over the given directory. A
// nil logger falls back to slog.Default().
func NewAuthenticator(dir Directory, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{dir: dir, logger: logger}
}

// Authenticate validates the credentials against the directory described
// by cfg. On success the returned Result carries the display name; on
// failure the error matches exactly one category sentinel and maps to an
// exit code via ExitCode.
func (a *Authenticator) Authenticate(ctx context.Context, cfg *ConnectionConfig, creds Credentials) (*Result, error) {
	start := time.Now()

	if creds.Username == "" || creds.Password == "" {
		return nil, configurationError("Authenticate", errors.New("username and password are required"))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	masked := maskSensitiveData(creds.Username)
	a.logger.Debug("authentication_attempt",
		slog.String("username_masked", masked),
		slog.String("server", cfg.ServerURI))

	if cfg.BindDN == "" {
		return a.authenticateDirect(ctx, cfg, creds, start)
	}

	session, err := a.dir.BindAsService(ctx, cfg)
	if err != nil {
		a.logFailure("service_bind", masked, err, start)
		return nil, err
	}

	entry, lookupErr := a.dir.LookupUser(ctx, session, cfg, creds.Username)
	// The lookup session is released before the user bind on every path;
	// the user verification never runs on the service-account connection.
	_ = session.Close()
	if lookupErr != nil {
		a.logFailure("user_lookup", masked, lookupErr, start)
		return nil, lookupErr
	}

	if err := a.dir.BindAsUser(ctx, cfg, entry.DN, creds.Password); err != nil {
		a.logFailure("user_bind", masked, err, start)
		return nil, err
	}

	display := entry.DisplayValue
	if display == "" {
		display = creds.Username
	}

	a.logger.Info("authentication_successful",
		slog.String("username_masked", masked),
		slog.String("dn_masked", maskSensitiveData(entry.DN)),
		slog.Duration("duration", time.Since(start)))

	return &Result{Username: creds.Username, DisplayName: display}, nil
}

// authenticateDirect handles the no-service-account fallback: a single
// bind with the submitted username as the principal. Most directories do
// not accept a bare username here, so this path rarely succeeds outside
// servers that map login names to principals; it is kept for
// compatibility. No display attribute is available, the username stands
// in for it.
func (a *Authenticator) authenticateDirect(ctx context.Context, cfg *ConnectionConfig, creds Credentials, start time.Time) (*Result, error) {
	masked := maskSensitiveData(creds.Username)
	a.logger.Debug("direct_bind_fallback",
		slog.String("username_masked", masked),
		slog.String("server", cfg.ServerURI))

	if err := a.dir.BindAsUser(ctx, cfg, creds.Username, creds.Password); err != nil {
		a.logFailure("direct_bind", masked, err, start)
		return nil, err
	}

	a.logger.Info("authentication_successful",
		slog.String("username_masked", masked),
		slog.Bool("direct_bind", true),
		slog.Duration("duration", time.Since(start)))

	return &Result{Username: creds.Username, DisplayName: creds.Username}, nil
}

func (a *Authenticator) logFailure(step, maskedUser string, err error, start time.Time) {
	a.logger.Warn("authentication_failed",
		slog.String("step", step),
		slog.String("username_masked", maskedUser),
		slog.String("error", err.Error()),
		slog.Duration("duration", time.Since(start)))
}
