// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"strings"
	"testing"

	"kiln/internal/issue"
)

func TestGetVersionString(t *testing.T) {
	origVersion, origCommit, origDate := Version, Commit, BuildDate
	t.Cleanup(func() {
		Version, Commit, BuildDate = origVersion, origCommit, origDate
	})

	Version = "dev"
	if got := getVersionString(); got != "dev (built from source)" {
		t.Errorf("dev version string = %q", got)
	}

	Version, Commit, BuildDate = "1.2.0", "abc1234", "2026-08-23"
	got := getVersionString()
	for _, want := range []string{"1.2.0", "abc1234", "2026-08-23"} {
		if !strings.Contains(got, want) {
			t.Errorf("version string %q missing %q", got, want)
		}
	}
}

func TestFormatErrorForDisplay_Actionable(t *testing.T) {
	err := issue.NewContext().
		WithOperation("bake image").
		WithSuggestion("Check the recipe").
		Wrap(errors.New("boom")).
		BuildError()

	got := formatErrorForDisplay(err)
	if !strings.Contains(got, "failed to bake image") {
		t.Errorf("missing operation: %q", got)
	}
	if !strings.Contains(got, "Check the recipe") {
		t.Errorf("missing suggestion: %q", got)
	}
}

func TestFormatErrorForDisplay_Plain(t *testing.T) {
	if got := formatErrorForDisplay(errors.New("plain")); got != "plain" {
		t.Errorf("plain error = %q", got)
	}
}

func TestExitError(t *testing.T) {
	cause := errors.New("underlying")
	err := &ExitError{Code: 3, Err: cause}
	if !errors.Is(err, cause) {
		t.Error("ExitError should unwrap to its cause")
	}
	if err.Error() != "underlying" {
		t.Errorf("Error() = %q", err.Error())
	}

	bare := &ExitError{Code: 2}
	if !strings.Contains(bare.Error(), "2") {
		t.Errorf("bare ExitError message = %q", bare.Error())
	}
}

func TestRootCommand_RegistersSubcommands(t *testing.T) {
	want := []string{"bake", "plan", "render", "verify", "engines", "config", "init"}
	for _, name := range want {
		found := false
		for _, sub := range rootCmd.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}
