package ldapauth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlowErrorCategoryMatching(t *testing.T) {
	underlying := errors.New("boom")
	err := connectionError("BindAsService", "ldap://dc1", underlying)

	assert.True(t, errors.Is(err, ErrConnection))
	assert.False(t, errors.Is(err, ErrAuthentication))
	assert.True(t, errors.Is(err, underlying))

	var flowErr *FlowError
	require.True(t, errors.As(err, &flowErr))
	assert.Equal(t, "BindAsService", flowErr.Op)
	assert.Equal(t, "ldap://dc1", flowErr.Server)
}

func TestFlowErrorMessageIncludesOpAndServer(t *testing.T) {
	err := authenticationError("BindAsUser", "ldap://dc1",
		ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("invalid credentials")))

	assert.Contains(t, err.Error(), "ldap://dc1")
	assert.Contains(t, err.Error(), "BindAsUser")
}

func TestClassifyBindError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"invalid credentials", ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("49")), ErrAuthentication},
		{"inappropriate auth", ldap.NewError(ldap.LDAPResultInappropriateAuthentication, errors.New("48")), ErrAuthentication},
		{"unwilling to perform", ldap.NewError(ldap.LDAPResultUnwillingToPerform, errors.New("53")), ErrAuthentication},
		{"network", ldap.NewError(ldap.ErrorNetwork, errors.New("broken pipe")), ErrConnection},
		{"dial failure", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, ErrConnection},
		{"deadline", fmt.Errorf("bind: %w", context.DeadlineExceeded), ErrConnection},
		{"busy", ldap.NewError(ldap.LDAPResultBusy, errors.New("51")), ErrOperation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyBindError("BindAsService", "ldap://dc1", tt.err)
			assert.True(t, errors.Is(got, tt.want), "got %v", got)
		})
	}

	assert.NoError(t, classifyBindError("BindAsService", "ldap://dc1", nil))
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, ExitSuccess},
		{"authentication", authenticationError("BindAsUser", "ldap://dc1", errors.New("rejected")), ExitInvalidCredentials},
		{"not found", notFoundError("LookupUser", "ldap://dc1", errors.New("no entry matched")), ExitInvalidCredentials},
		{"configuration", configurationError("Resolve", ErrNoConfiguration), ExitConfiguration},
		{"connection", connectionError("BindAsService", "ldap://dc1", errors.New("timeout")), ExitConnection},
		{"operation", operationError("LookupUser", "ldap://dc1", errors.New("bad filter")), ExitProtocol},
		{"unclassified", errors.New("surprise"), ExitProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestMaskSensitiveData(t *testing.T) {
	assert.Equal(t, "***", maskSensitiveData("abc"))
	assert.Equal(t, "al***ce", maskSensitiveData("alice"))
}
