// Command licensectl issues, verifies and inspects Transcriptor licenses.
//
//	licensectl keys -alg ES256 -output acme
//	licensectl issue -private-key acme_private_key.pem -email a@b.c -plan pro -feature export:docx -days 365
//	licensectl verify -public-key acme_public_key.pem -token eyJ...
//	licensectl legacy-issue -name QA -email qa@b.c -days 30 -secret-env LICENSE_SECRET
//	licensectl legacy-verify -file license.json -secret-env LICENSE_SECRET
//	licensectl fingerprint
//	licensectl status
//	licensectl uninstall
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/enrferaba/Grabadora-Intento4/internal/infrastructure"
)

// env carries the process surroundings so commands can be exercised in tests.
type env struct {
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string
	now    func() time.Time
	logger *slog.Logger
}

type command struct {
	name  string
	usage string
	run   func(e *env, args []string) error
}

var commands = []command{
	{"keys", "generate a signing key pair", runKeys},
	{"issue", "issue a signed license token", runIssue},
	{"verify", "verify a token and print its decision", runVerify},
	{"legacy-issue", "issue a shared-secret license", runLegacyIssue},
	{"legacy-verify", "verify a shared-secret license file", runLegacyVerify},
	{"fingerprint", "print this machine's device hash", runFingerprint},
	{"status", "evaluate the installed license", runStatus},
	{"uninstall", "remove the installed license", runUninstall},
}

func main() {
	e := &env{
		stdout: os.Stdout,
		stderr: os.Stderr,
		getenv: os.Getenv,
		now:    time.Now,
		logger: infrastructure.NewLogger(os.Stderr, "warn"),
	}
	os.Exit(run(e, os.Args[1:]))
}

// run dispatches to a subcommand and returns the process exit code.
func run(e *env, args []string) int {
	if len(args) < 1 {
		usage(e.stderr)
		return 2
	}

	for _, cmd := range commands {
		if cmd.name != args[0] {
			continue
		}
		if err := cmd.run(e, args[1:]); err != nil {
			if !errors.Is(err, errUsage) {
				fmt.Fprintf(e.stderr, "%s: %v\n", cmd.name, err)
			}
			return exitCode(err)
		}
		return 0
	}

	fmt.Fprintf(e.stderr, "unknown command %q\n", args[0])
	usage(e.stderr)
	return 2
}

func usage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for _, cmd := range commands {
		names = append(names, fmt.Sprintf("  %-14s %s", cmd.name, cmd.usage))
	}
	fmt.Fprintf(w, "usage: licensectl <command> [flags]\n\ncommands:\n%s\n", strings.Join(names, "\n"))
}
