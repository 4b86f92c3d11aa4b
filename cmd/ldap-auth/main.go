package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/hass-ldap/ldapauth"
	"gopkg.in/alecthomas/kingpin.v2"
)

var version = "dev"

var (
	FlagConfigDir = kingpin.Flag("config-dir", "Host configuration directory").Short('c').Default("/config").String()
	FlagLogLevel  = kingpin.Flag("level", "Log level").Default("error").String()
	FlagLogJSON   = kingpin.Flag("json", "JSON log output").Default("false").Bool()
)

func main() {
	kingpin.CommandLine.DefaultEnvars()
	kingpin.Version(version)
	kingpin.Parse()

	os.Exit(run(newClientDirectory, os.Stdout, os.Stderr))
}

func newClientDirectory(logger *slog.Logger) ldapauth.Directory {
	return ldapauth.NewClient(logger)
}

// run drives one credential check end to end. The directory constructor
// and the output streams are injected so the host-facing contract can be
// exercised against an in-memory directory.
func run(newDirectory func(*slog.Logger) ldapauth.Directory, stdout, stderr io.Writer) int {
	logger := newLogger(*FlagLogLevel, *FlagLogJSON).With(
		slog.String("attempt_id", uuid.NewString()))

	// The host may kill the process after its own timeout; closing on
	// SIGTERM keeps in-flight connections from lingering.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	creds, err := ldapauth.CredentialsFromEnv()
	if err != nil {
		return fail(stderr, err)
	}

	cfg, err := ldapauth.NewResolver(*FlagConfigDir, logger).Resolve()
	if err != nil {
		return fail(stderr, err)
	}

	auth := ldapauth.NewAuthenticator(newDirectory(logger), logger)
	result, err := auth.Authenticate(ctx, cfg, creds)
	if err != nil {
		return fail(stderr, err)
	}

	report(stdout, stderr, result)
	return ldapauth.ExitSuccess
}

// report emits the success contract: exactly one "name = <display>" line
// on stdout, which the host parses as metadata, and an informational line
// on stderr.
func report(stdout, stderr io.Writer, result *ldapauth.Result) {
	fmt.Fprintf(stdout, "name = %s\n", result.DisplayName)
	fmt.Fprintf(stderr, "%s authenticated successfully\n", result.Username)
}

func fail(stderr io.Writer, err error) int {
	fmt.Fprintf(stderr, "ldap-auth: %v\n", err)
	return ldapauth.ExitCode(err)
}

func newLogger(level string, jsonOutput bool) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if jsonOutput {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
