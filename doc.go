// Package ldapauth validates a username/password pair against an LDAP
// directory using the standard two-bind pattern: a service account binds
// and locates the user's distinguished name, then a second bind with that
// DN verifies the submitted password.
//
// The package backs the ldap-auth binary, which a host authentication
// system runs as a short-lived external credential check. Credentials
// arrive via the username and password environment variables; the process
// exit code encodes the outcome and, on success, a single
// "name = <display name>" line is printed on stdout.
//
// # Basic Usage
//
//	cfg, err := ldapauth.NewResolver("/config", logger).Resolve()
//	if err != nil {
//		os.Exit(ldapauth.ExitCode(err))
//	}
//
//	creds, err := ldapauth.CredentialsFromEnv()
//	if err != nil {
//		os.Exit(ldapauth.ExitCode(err))
//	}
//
//	auth := ldapauth.NewAuthenticator(ldapauth.NewClient(logger), logger)
//	result, err := auth.Authenticate(ctx, cfg, creds)
//	if err != nil {
//		os.Exit(ldapauth.ExitCode(err))
//	}
//	fmt.Printf("name = %s\n", result.DisplayName)
//
// # Error Handling
//
// Every error matches exactly one category sentinel via errors.Is:
//   - ErrConfiguration: bad or missing setup (exit 2)
//   - ErrConnection: transport, TLS or timeout failure (exit 3)
//   - ErrAuthentication: credentials rejected by the directory (exit 1)
//   - ErrUserNotFound: zero or ambiguous search match (exit 1)
//   - ErrOperation: other directory protocol failure (exit 5)
//
// ExitCode centralizes the mapping; the codes are part of the host
// contract and stable.
package ldapauth
