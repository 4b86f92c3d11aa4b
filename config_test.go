package ldapauth

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoolValueCoercion(t *testing.T) {
	trueForms := []any{true, 1, int64(2), 3.0, "1", "true", "yes", "on", "TRUE", "On", " yes "}
	for _, v := range trueForms {
		assert.True(t, boolValue(v, false), "value %#v", v)
	}

	falseForms := []any{false, 0, int64(0), 0.0, "0", "false", "no", "off", "enabled", "y", ""}
	for _, v := range falseForms {
		assert.False(t, boolValue(v, true), "value %#v", v)
	}

	// Absent values keep the default.
	assert.True(t, boolValue(nil, true))
	assert.False(t, boolValue(nil, false))
}

func TestIntValueCoercion(t *testing.T) {
	assert.Equal(t, 7, intValue(7, 3))
	assert.Equal(t, 7, intValue(int64(7), 3))
	assert.Equal(t, 7, intValue(7.9, 3))
	assert.Equal(t, 7, intValue("7", 3))
	assert.Equal(t, 7, intValue(" 7 ", 3))

	// Parse failures fall back to the default instead of raising.
	assert.Equal(t, 3, intValue("seven", 3))
	assert.Equal(t, 3, intValue("", 3))
	assert.Equal(t, 3, intValue(nil, 3))
	assert.Equal(t, 3, intValue([]string{"7"}, 3))
}

func TestFirstAttribute(t *testing.T) {
	assert.Equal(t, "uid", firstAttribute("uid"))
	assert.Equal(t, "uid", firstAttribute("uid,cn,mail"))
	assert.Equal(t, "cn", firstAttribute(" , cn ,mail"))
	assert.Equal(t, "", firstAttribute(" , "))
	assert.Equal(t, "", firstAttribute(""))
}

func TestNewConnectionConfigDefaults(t *testing.T) {
	cfg, err := newConnectionConfig(map[string]any{
		"server": "ldap://dc1.example.com",
		"basedn": "dc=example,dc=com",
	})
	require.NoError(t, err)

	assert.Equal(t, "ldap://dc1.example.com", cfg.ServerURI)
	assert.Equal(t, "dc=example,dc=com", cfg.BaseDN)
	assert.Equal(t, "(&(objectClass=person))", cfg.BaseFilter)
	assert.Equal(t, "uid", cfg.MatchAttribute)
	assert.Equal(t, "displayName", cfg.DisplayAttribute)
	assert.Equal(t, 3, cfg.TimeoutSeconds)
	assert.Equal(t, 3*time.Second, cfg.Timeout())
	assert.True(t, cfg.VerifyTLS)
	assert.False(t, cfg.UseStartTLS)
	assert.Empty(t, cfg.BindDN)
}

func TestNewConnectionConfigOverrides(t *testing.T) {
	cfg, err := newConnectionConfig(map[string]any{
		"server":       " ldaps://dc1.example.com:636 ",
		"basedn":       "dc=example,dc=com",
		"helperdn":     "cn=svc,dc=example,dc=com",
		"helperpass":   "hunter2",
		"attrs":        "sAMAccountName,uid",
		"base_filter":  "(objectClass=user)",
		"display_attr": "cn",
		"timeout":      "10",
		"verify_ssl":   "no",
		"use_starttls": "yes",
	})
	require.NoError(t, err)

	assert.Equal(t, "ldaps://dc1.example.com:636", cfg.ServerURI)
	assert.True(t, cfg.IsLDAPS())
	assert.Equal(t, "cn=svc,dc=example,dc=com", cfg.BindDN)
	assert.Equal(t, "hunter2", cfg.BindPassword)
	assert.Equal(t, "sAMAccountName", cfg.MatchAttribute)
	assert.Equal(t, "(objectClass=user)", cfg.BaseFilter)
	assert.Equal(t, "cn", cfg.DisplayAttribute)
	assert.Equal(t, 10, cfg.TimeoutSeconds)
	assert.False(t, cfg.VerifyTLS)
	assert.True(t, cfg.UseStartTLS)
}

func TestNewConnectionConfigEmptyValuesKeepDefaults(t *testing.T) {
	cfg, err := newConnectionConfig(map[string]any{
		"server":       "ldap://dc1",
		"basedn":       "dc=example,dc=com",
		"attrs":        "  ",
		"base_filter":  "",
		"display_attr": " ",
		"timeout":      "not-a-number",
	})
	require.NoError(t, err)

	assert.Equal(t, "uid", cfg.MatchAttribute)
	assert.Equal(t, "(&(objectClass=person))", cfg.BaseFilter)
	assert.Equal(t, "displayName", cfg.DisplayAttribute)
	assert.Equal(t, 3, cfg.TimeoutSeconds)
}

func TestNewConnectionConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
	}{
		{"missing server", map[string]any{"basedn": "dc=example,dc=com"}},
		{"blank server", map[string]any{"server": "  ", "basedn": "dc=example,dc=com"}},
		{"missing basedn", map[string]any{"server": "ldap://dc1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newConnectionConfig(tt.raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfiguration))
			assert.Equal(t, ExitConfiguration, ExitCode(err))
		})
	}
}
