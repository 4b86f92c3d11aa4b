// Package testutil provides a scriptable in-memory directory for testing
// the authentication flow without a network.
package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/hass-ldap/ldapauth"
)

// FakeUser is one entry of the fake directory.
type FakeUser struct {
	DN       string
	Display  string
	Password string
}

// FakeSession records whether it was released.
type FakeSession struct {
	mu     sync.Mutex
	closed bool
}

func (s *FakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (s *FakeSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// UserBind records one bind-as-user attempt.
type UserBind struct {
	DN       string
	Password string
}

// FakeDirectory implements ldapauth.Directory in memory. Each operation
// has a default behavior driven by the Users map and can be overridden
// per test via the corresponding Func field. All calls are recorded.
type FakeDirectory struct {
	mu sync.Mutex

	// Users maps a username (the lookup key) to its entry.
	Users map[string]*FakeUser

	// ServiceBindDN and ServiceBindPassword are the accepted service
	// credentials. Empty values accept any service bind.
	ServiceBindDN       string
	ServiceBindPassword string

	// Overrides. A nil field keeps the default behavior.
	BindAsServiceFunc func(cfg *ldapauth.ConnectionConfig) (ldapauth.Session, error)
	LookupUserFunc    func(cfg *ldapauth.ConnectionConfig, username string) (*ldapauth.Entry, error)
	BindAsUserFunc    func(cfg *ldapauth.ConnectionConfig, dn, password string) error

	// Call records.
	ServiceBinds int
	Lookups      []string
	UserBinds    []UserBind
	Sessions     []*FakeSession
}

// NewFakeDirectory returns an empty fake directory.
func NewFakeDirectory() *FakeDirectory {
	return &FakeDirectory{Users: make(map[string]*FakeUser)}
}

// AddUser registers a user under the given username.
func (d *FakeDirectory) AddUser(username string, user *FakeUser) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Users[username] = user
}

func (d *FakeDirectory) BindAsService(_ context.Context, cfg *ldapauth.ConnectionConfig) (ldapauth.Session, error) {
	d.mu.Lock()
	d.ServiceBinds++
	d.mu.Unlock()

	if d.BindAsServiceFunc != nil {
		return d.BindAsServiceFunc(cfg)
	}

	if d.ServiceBindDN != "" &&
		(cfg.BindDN != d.ServiceBindDN || cfg.BindPassword != d.ServiceBindPassword) {
		return nil, &ldapauth.FlowError{
			Op:       "BindAsService",
			Server:   cfg.ServerURI,
			Category: ldapauth.ErrAuthentication,
			Err:      errors.New("service credentials rejected"),
		}
	}

	session := &FakeSession{}
	d.mu.Lock()
	d.Sessions = append(d.Sessions, session)
	d.mu.Unlock()
	return session, nil
}

func (d *FakeDirectory) LookupUser(_ context.Context, _ ldapauth.Session, cfg *ldapauth.ConnectionConfig, username string) (*ldapauth.Entry, error) {
	d.mu.Lock()
	d.Lookups = append(d.Lookups, username)
	d.mu.Unlock()

	if d.LookupUserFunc != nil {
		return d.LookupUserFunc(cfg, username)
	}

	user, ok := d.Users[username]
	if !ok {
		return nil, &ldapauth.FlowError{
			Op:       "LookupUser",
			Server:   cfg.ServerURI,
			Category: ldapauth.ErrUserNotFound,
			Err:      errors.New("no entry matched"),
		}
	}
	return &ldapauth.Entry{DN: user.DN, DisplayValue: user.Display}, nil
}

func (d *FakeDirectory) BindAsUser(_ context.Context, cfg *ldapauth.ConnectionConfig, dn, password string) error {
	d.mu.Lock()
	d.UserBinds = append(d.UserBinds, UserBind{DN: dn, Password: password})
	d.mu.Unlock()

	if d.BindAsUserFunc != nil {
		return d.BindAsUserFunc(cfg, dn, password)
	}

	for _, user := range d.Users {
		if user.DN == dn && user.Password == password {
			return nil
		}
	}
	return &ldapauth.FlowError{
		Op:       "BindAsUser",
		Server:   cfg.ServerURI,
		Category: ldapauth.ErrAuthentication,
		Err:      errors.New("invalid credentials"),
	}
}
