package ldapauth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
)

// Domain is the integration identifier the resolver looks for, both as
// the state-store entry domain and as the configuration file section key.
const Domain = "ldap_auth"

// Configuration keys as they appear on disk. The names are kept
// compatible with existing deployments.
const (
	keyServer       = "server"
	keyBindDN       = "helperdn"
	keyBindPassword = "helperpass"
	keyBaseDN       = "basedn"
	keyAttrs        = "attrs"
	keyBaseFilter   = "base_filter"
	keyDisplayAttr  = "display_attr"
	keyTimeout      = "timeout"
	keyVerifyTLS    = "verify_ssl"
	keyUseStartTLS  = "use_starttls"
)

// ConnectionConfig holds the directory connection parameters for one
// invocation. It is built once by the resolver and treated as immutable
// afterwards.
type ConnectionConfig struct {
	// ServerURI is the directory server address. The scheme selects the
	// TLS mode: ldap:// for plaintext (optionally upgraded via StartTLS),
	// ldaps:// for TLS from the first byte.
	ServerURI string

	// BaseDN is the search root for the user lookup.
	BaseDN string

	// BaseFilter is a valid filter fragment ANDed with the user-match
	// clause.
	BaseFilter string `default:"(&(objectClass=person))"`

	// BindDN and BindPassword are the service-account credentials used
	// for the lookup bind. When BindDN is empty the flow degrades to a
	// direct bind with the submitted username as principal.
	BindDN       string
	BindPassword string

	// MatchAttribute is the attribute compared against the submitted
	// username.
	MatchAttribute string `default:"uid"`

	// DisplayAttribute is returned as the human-readable name on success.
	DisplayAttribute string `default:"displayName"`

	// TimeoutSeconds bounds both the connect and the receive phase of
	// every directory operation.
	TimeoutSeconds int `default:"3"`

	// VerifyTLS controls certificate validation.
	VerifyTLS bool `default:"true"`

	// UseStartTLS upgrades a plaintext connection after connect.
	UseStartTLS bool
}

// Timeout returns the operation timeout as a duration.
func (c *ConnectionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// IsLDAPS reports whether the server URI selects TLS from connect.
func (c *ConnectionConfig) IsLDAPS() bool {
	return strings.HasPrefix(strings.ToLower(c.ServerURI), "ldaps://")
}

// Validate checks the required fields. A violation is a configuration
// error, never a runtime one: it is reported before any network call.
func (c *ConnectionConfig) Validate() error {
	if c.ServerURI == "" {
		return configurationError("validate", errors.New("server URI is required"))
	}
	if c.BaseDN == "" {
		return configurationError("validate", errors.New("base DN is required"))
	}
	return nil
}

// newConnectionConfig builds a ConnectionConfig from one raw source
// block. Defaults are applied first, then every key present in the block
// overrides the defaulted field, then the required fields are validated.
func newConnectionConfig(raw map[string]any) (*ConnectionConfig, error) {
	cfg := &ConnectionConfig{}
	if err := defaults.Set(cfg); err != nil {
		return nil, configurationError("defaults", err)
	}

	if v, ok := raw[keyServer]; ok {
		cfg.ServerURI = strings.TrimSpace(stringValue(v))
	}
	if v, ok := raw[keyBaseDN]; ok {
		cfg.BaseDN = strings.TrimSpace(stringValue(v))
	}
	if v, ok := raw[keyBindDN]; ok {
		cfg.BindDN = strings.TrimSpace(stringValue(v))
	}
	if v, ok := raw[keyBindPassword]; ok {
		cfg.BindPassword = stringValue(v)
	}
	if v, ok := raw[keyAttrs]; ok {
		if attr := firstAttribute(stringValue(v)); attr != "" {
			cfg.MatchAttribute = attr
		}
	}
	if v, ok := raw[keyBaseFilter]; ok {
		if f := strings.TrimSpace(stringValue(v)); f != "" {
			cfg.BaseFilter = f
		}
	}
	if v, ok := raw[keyDisplayAttr]; ok {
		if d := strings.TrimSpace(stringValue(v)); d != "" {
			cfg.DisplayAttribute = d
		}
	}
	if v, ok := raw[keyTimeout]; ok {
		cfg.TimeoutSeconds = intValue(v, cfg.TimeoutSeconds)
	}
	if v, ok := raw[keyVerifyTLS]; ok {
		cfg.VerifyTLS = boolValue(v, cfg.VerifyTLS)
	}
	if v, ok := raw[keyUseStartTLS]; ok {
		cfg.UseStartTLS = boolValue(v, cfg.UseStartTLS)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// firstAttribute returns the first non-empty entry of a comma-separated
// attribute list. Deployments historically configured "uid,cn" here; only
// the first attribute is matched against.
func firstAttribute(attrs string) string {
	for _, a := range strings.Split(attrs, ",") {
		if a = strings.TrimSpace(a); a != "" {
			return a
		}
	}
	return ""
}

// stringValue renders a raw configuration value as a string. nil becomes
// the empty string so absent and empty keys behave the same.
func stringValue(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(v)
	}
}

// boolValue coerces a raw configuration value into a bool. Literal bools
// pass through, numbers are true when non-zero, and the string forms
// "1", "true", "yes" and "on" (case-insensitive) are true. Every other
// string is false, not an error.
func boolValue(v any, def bool) bool {
	switch b := v.(type) {
	case nil:
		return def
	case bool:
		return b
	case int:
		return b != 0
	case int64:
		return b != 0
	case float64:
		return b != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "1", "true", "yes", "on":
			return true
		default:
			return false
		}
	default:
		return def
	}
}

// intValue coerces a raw configuration value into an int, falling back to
// the default on any parse failure rather than raising.
func intValue(v any, def int) int {
	switch n := v.(type) {
	case nil:
		return def
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return def
		}
		return parsed
	default:
		return def
	}
}
