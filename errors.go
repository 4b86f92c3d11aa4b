package ldapauth

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/go-ldap/ldap/v3"
)

// Category sentinels for the authentication flow. Every error returned by
// this package matches exactly one of these via errors.Is, which is what
// ExitCode relies on.
var (
	// ErrConfiguration covers bad or missing setup: absent credentials in
	// the environment, no usable configuration block, missing required
	// fields. Not retryable without an operator fix.
	ErrConfiguration = errors.New("ldapauth: invalid configuration")

	// ErrConnection covers transport-level failures: unreachable host,
	// dial or receive timeout, TLS handshake failure. Retryable by the
	// caller.
	ErrConnection = errors.New("ldapauth: connection failed")

	// ErrAuthentication is returned when the directory rejects the
	// supplied credentials on either bind.
	ErrAuthentication = errors.New("ldapauth: authentication failed")

	// ErrUserNotFound is returned when the user search yields zero or
	// more than one entry. An ambiguous match is deliberately not treated
	// as success, and externally indistinguishable from a bad password.
	ErrUserNotFound = errors.New("ldapauth: user not found")

	// ErrOperation covers directory protocol failures distinct from a
	// clean "not found", such as a malformed filter or a failed search.
	ErrOperation = errors.New("ldapauth: directory operation failed")
)

// ErrNoConfiguration is returned by the resolver when neither the state
// store nor the configuration file yields a usable block.
var ErrNoConfiguration = errors.New("no configuration found")

// FlowError wraps an underlying error with the operation name, the server
// it was talking to and the flow category it belongs to. It never carries
// bind passwords.
type FlowError struct {
	// Op is the operation name (e.g. "BindAsService", "LookupUser").
	Op string
	// Server is the directory server URI, if the error occurred past
	// configuration resolution.
	Server string
	// Category is one of the sentinels above.
	Category error
	// Err is the underlying error.
	Err error
}

func (e *FlowError) Error() string {
	if e.Server != "" {
		return fmt.Sprintf("ldap %s failed on server %q: %v", e.Op, e.Server, e.Err)
	}
	return fmt.Sprintf("ldap %s failed: %v", e.Op, e.Err)
}

func (e *FlowError) Unwrap() error { return e.Err }

// Is reports category membership, so errors.Is(err, ErrConnection) works
// on any wrapped FlowError.
func (e *FlowError) Is(target error) bool { return target == e.Category }

// Helper constructors, one per category.

func configurationError(op string, err error) error {
	return &FlowError{Op: op, Category: ErrConfiguration, Err: err}
}

func connectionError(op, server string, err error) error {
	return &FlowError{Op: op, Server: server, Category: ErrConnection, Err: err}
}

func authenticationError(op, server string, err error) error {
	return &FlowError{Op: op, Server: server, Category: ErrAuthentication, Err: err}
}

func notFoundError(op, server string, err error) error {
	return &FlowError{Op: op, Server: server, Category: ErrUserNotFound, Err: err}
}

func operationError(op, server string, err error) error {
	return &FlowError{Op: op, Server: server, Category: ErrOperation, Err: err}
}

// isTransportError reports whether err is a network or timeout failure
// rather than a directory-level rejection.
func isTransportError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	return ldap.IsErrorWithCode(err, ldap.ErrorNetwork)
}

// classifyBindError maps a go-ldap bind failure into the flow taxonomy.
// Transport failures become ErrConnection, a rejection by the directory
// becomes ErrAuthentication, anything else is a protocol error.
func classifyBindError(op, server string, err error) error {
	switch {
	case err == nil:
		return nil
	case isTransportError(err):
		return connectionError(op, server, err)
	case ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials),
		ldap.IsErrorWithCode(err, ldap.LDAPResultInappropriateAuthentication),
		ldap.IsErrorWithCode(err, ldap.LDAPResultInsufficientAccessRights),
		ldap.IsErrorWithCode(err, ldap.LDAPResultUnwillingToPerform):
		return authenticationError(op, server, err)
	default:
		return operationError(op, server, err)
	}
}

// Process exit codes of the host contract. The host authentication system
// relies on these values staying stable.
const (
	ExitSuccess            = 0
	ExitInvalidCredentials = 1
	ExitConfiguration      = 2
	ExitConnection         = 3
	ExitProtocol           = 5
)

// ExitCode maps any error produced by this package to the process exit
// code of the invocation contract. A user-not-found outcome maps to the
// same code as a rejected password so account existence does not leak.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, ErrConfiguration):
		return ExitConfiguration
	case errors.Is(err, ErrAuthentication), errors.Is(err, ErrUserNotFound):
		return ExitInvalidCredentials
	case errors.Is(err, ErrConnection):
		return ExitConnection
	default:
		return ExitProtocol
	}
}

// maskSensitiveData masks identifying values before they reach the log
// output.
func maskSensitiveData(data string) string {
	if len(data) <= 4 {
		return "***"
	}
	return data[:2] + "***" + data[len(data)-2:]
}
