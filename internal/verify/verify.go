// SPDX-License-Identifier: MPL-2.0

// Package verify probes a baked image for the guarantees the bake promised:
// the container starts as the service account, the build toolchain is gone,
// the volume tree is writable by the right owner, the runtime environment
// answers, and the entrypoint resolves through PATH.
package verify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"kiln/internal/container"
	"kiln/internal/kilnfile"
)

// ErrVerificationFailed is the sentinel error wrapped by VerificationError.
var ErrVerificationFailed = errors.New("image verification failed")

type (
	// Check is a single probe executed inside a throwaway container.
	Check struct {
		// Name describes the guarantee being probed.
		Name string
		// Command is executed inside the image.
		Command []string
		// User optionally overrides the image's configured user.
		User string
		// Assess judges the probe outcome.
		Assess func(exit container.ExitCode, stdout string) error
	}

	// CheckResult is the outcome of one check.
	CheckResult struct {
		Name   string
		Passed bool
		Detail string
	}

	// Report collects the outcomes of a verification run.
	Report struct {
		Image   container.ImageTag
		Results []CheckResult
	}

	// VerificationError is returned when one or more checks failed.
	VerificationError struct {
		Image  container.ImageTag
		Failed []CheckResult
	}
)

// Error implements the error interface.
func (e *VerificationError) Error() string {
	names := make([]string, len(e.Failed))
	for i, r := range e.Failed {
		names[i] = r.Name
	}
	return fmt.Sprintf("image %s failed %d check(s): %s", e.Image, len(e.Failed), strings.Join(names, ", "))
}

// Unwrap returns ErrVerificationFailed for errors.Is compatibility.
func (e *VerificationError) Unwrap() error { return ErrVerificationFailed }

// Passed reports whether every check succeeded.
func (r *Report) Passed() bool {
	for _, res := range r.Results {
		if !res.Passed {
			return false
		}
	}
	return true
}

// Err returns a VerificationError when any check failed, nil otherwise.
func (r *Report) Err() error {
	var failed []CheckResult
	for _, res := range r.Results {
		if !res.Passed {
			failed = append(failed, res)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return &VerificationError{Image: r.Image, Failed: failed}
}

// Checks returns the probes for a recipe.
func Checks(recipe *kilnfile.Recipe) []Check {
	return []Check{
		{
			Name:    "runs as service account",
			Command: []string{"id", "-un"},
			Assess: func(exit container.ExitCode, stdout string) error {
				if !exit.Success() {
					return fmt.Errorf("id exited with %d", exit)
				}
				if got := strings.TrimSpace(stdout); got != recipe.ServiceUser {
					return fmt.Errorf("container runs as %q, want %q", got, recipe.ServiceUser)
				}
				return nil
			},
		},
		{
			Name:    "build toolchain purged",
			Command: []string{"gcc", "--version"},
			// Even root must not find a compiler in the final image.
			User: "root",
			Assess: func(exit container.ExitCode, _ string) error {
				if exit.Success() {
					return errors.New("gcc is still present in the final image")
				}
				return nil
			},
		},
		{
			Name:    "volume ownership and mode",
			Command: []string{"stat", "-c", "%a %U", recipe.VolumeRoot},
			Assess: func(exit container.ExitCode, stdout string) error {
				if !exit.Success() {
					return fmt.Errorf("stat exited with %d", exit)
				}
				want := "755 " + recipe.ServiceUser
				if got := strings.TrimSpace(stdout); got != want {
					return fmt.Errorf("%s has %q, want %q", recipe.VolumeRoot, got, want)
				}
				return nil
			},
		},
		{
			Name:    "runtime environment answers",
			Command: []string{recipe.RuntimeBin() + "/pip", "--version"},
			Assess: func(exit container.ExitCode, _ string) error {
				if !exit.Success() {
					return fmt.Errorf("pip exited with %d", exit)
				}
				return nil
			},
		},
		{
			Name:    "entrypoint resolves via PATH",
			Command: []string{"sh", "-c", "command -v " + recipe.Entrypoint},
			Assess: func(exit container.ExitCode, stdout string) error {
				if !exit.Success() {
					return fmt.Errorf("%q not found on PATH", recipe.Entrypoint)
				}
				if strings.TrimSpace(stdout) == "" {
					return fmt.Errorf("empty resolution for %q", recipe.Entrypoint)
				}
				return nil
			},
		},
	}
}

// RequirementsCheck probes that the manifest packages are installed in the
// runtime environment. Requirements are manifest lines; constraints are
// stripped before asking pip. Each package is queried on its own, chained
// through the shell, so one installed package cannot vouch for the rest.
func RequirementsCheck(recipe *kilnfile.Recipe, requirements []string) Check {
	names := make([]string, 0, len(requirements))
	for _, req := range requirements {
		if idx := strings.IndexAny(req, "=<>!~"); idx >= 0 {
			req = req[:idx]
		}
		if req = strings.TrimSpace(req); req != "" {
			names = append(names, req)
		}
	}

	pip := shQuote(recipe.RuntimeBin() + "/pip")
	probes := make([]string, len(names))
	for i, name := range names {
		probes[i] = pip + " show -q " + shQuote(name)
	}

	return Check{
		Name:    "manifest packages installed",
		Command: []string{"sh", "-c", strings.Join(probes, " && ")},
		Assess: func(exit container.ExitCode, _ string) error {
			if !exit.Success() {
				return fmt.Errorf("pip cannot account for all of %s", strings.Join(names, ", "))
			}
			return nil
		},
	}
}

func shQuote(arg string) string {
	quoted, err := syntax.Quote(arg, syntax.LangPOSIX)
	if err != nil {
		return strconv.Quote(arg)
	}
	return quoted
}

// Run executes every check against the image in throwaway containers.
// Check failures land in the report; the returned error is reserved for
// infrastructure problems (engine unreachable, context canceled).
func Run(ctx context.Context, engine container.Engine, image container.ImageTag, recipe *kilnfile.Recipe, extra ...Check) (*Report, error) {
	report := &Report{Image: image}

	for _, check := range append(Checks(recipe), extra...) {
		var stdout bytes.Buffer
		result, err := engine.Run(ctx, container.RunOptions{
			Image:   image,
			Command: check.Command,
			User:    check.User,
			Remove:  true,
			Stdout:  &stdout,
		})
		if err != nil {
			return nil, fmt.Errorf("check %q could not run: %w", check.Name, err)
		}
		if result.Error != nil {
			// The probe never executed, so its exit code proves nothing.
			return nil, fmt.Errorf("check %q could not run: %w", check.Name, result.Error)
		}

		outcome := CheckResult{Name: check.Name, Passed: true, Detail: strings.TrimSpace(stdout.String())}
		if assessErr := check.Assess(result.ExitCode, stdout.String()); assessErr != nil {
			outcome.Passed = false
			outcome.Detail = assessErr.Error()
		}
		report.Results = append(report.Results, outcome)
	}

	return report, nil
}
