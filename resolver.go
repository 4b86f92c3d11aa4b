package ldapauth

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Relative locations of the two configuration sources inside the host's
// configuration directory.
const (
	storePath      = ".storage/core.config_entries"
	configFilePath = "configuration.yaml"
)

// storeEntry is one integration record of the host's state store.
type storeEntry struct {
	Domain     string         `json:"domain"`
	DisabledBy *string        `json:"disabled_by"`
	Data       map[string]any `json:"data"`
	Options    map[string]any `json:"options"`
}

// storeFile is the state store envelope. Only the fields the resolver
// reads are declared; the store is never written.
type storeFile struct {
	Data struct {
		Entries []storeEntry `json:"entries"`
	} `json:"data"`
}

// Resolver loads the directory connection parameters from the host's
// configuration directory. The directory is injected rather than looked
// up from a fixed path so tests can point it at a temporary tree.
//
// Resolution order, first usable block wins, sources are never merged
// across precedence:
//
//  1. the state store, filtered to enabled entries of the ldap_auth
//     domain, with the entry's options layered over its data
//  2. the ldap_auth section of configuration.yaml
type Resolver struct {
	dir    string
	logger *slog.Logger
}

// NewResolver returns a Resolver rooted at the given configuration
// directory. A nil logger falls back to slog.Default().
func NewResolver(dir string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{dir: dir, logger: logger}
}

// Resolve returns the connection configuration for this invocation, or a
// configuration-class error when no source yields a usable block or the
// winning block fails validation.
func (r *Resolver) Resolve() (*ConnectionConfig, error) {
	raw, source := r.fromStore(), "store"
	if raw == nil {
		raw, source = r.fromFile(), "file"
	}
	if raw == nil {
		r.logger.Error("config_resolution_failed",
			slog.String("dir", r.dir))
		return nil, configurationError("Resolve", ErrNoConfiguration)
	}

	cfg, err := newConnectionConfig(raw)
	if err != nil {
		r.logger.Error("config_validation_failed",
			slog.String("source", source),
			slog.String("error", err.Error()))
		return nil, err
	}

	r.logger.Debug("config_resolved",
		slog.String("source", source),
		slog.String("server", cfg.ServerURI),
		slog.String("base_dn", cfg.BaseDN),
		slog.String("match_attribute", cfg.MatchAttribute),
		slog.Bool("service_account", cfg.BindDN != ""))
	return cfg, nil
}

// fromStore reads the state store and returns the first enabled ldap_auth
// entry with its options layered over its data. A missing or unparseable
// store simply yields nothing so the next source gets its turn.
func (r *Resolver) fromStore() map[string]any {
	path := filepath.Join(r.dir, storePath)
	content, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Warn("config_store_unreadable",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
		return nil
	}

	var store storeFile
	if err := json.Unmarshal(content, &store); err != nil {
		r.logger.Warn("config_store_malformed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return nil
	}

	for _, entry := range store.Data.Entries {
		if entry.Domain != Domain || entry.DisabledBy != nil {
			continue
		}
		merged := make(map[string]any, len(entry.Data)+len(entry.Options))
		for k, v := range entry.Data {
			merged[k] = v
		}
		for k, v := range entry.Options {
			merged[k] = v
		}
		return merged
	}
	return nil
}

// fromFile reads the ldap_auth section of the human-edited configuration
// file.
func (r *Resolver) fromFile() map[string]any {
	path := filepath.Join(r.dir, configFilePath)
	content, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Warn("config_file_unreadable",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
		return nil
	}

	var root map[string]any
	if err := yaml.Unmarshal(content, &root); err != nil {
		r.logger.Warn("config_file_malformed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return nil
	}

	section, ok := root[Domain].(map[string]any)
	if !ok {
		return nil
	}
	return section
}
