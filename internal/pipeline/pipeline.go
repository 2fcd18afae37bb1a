// SPDX-License-Identifier: MPL-2.0

// Package pipeline models image provisioning as an ordered plan of typed
// steps. Every step declares the image state it needs and the state it
// produces, so a plan that would bake a broken image fails validation before
// anything is rendered or built.
package pipeline

import (
	"errors"
	"fmt"
)

// Identity is the account a subsequent image layer (and eventually the
// running container) executes as.
type Identity string

const (
	// IdentityPrivileged is the build-time root identity.
	IdentityPrivileged Identity = "privileged"

	// IdentityUnprivileged is the service account identity. The transition
	// from privileged to unprivileged is one-way.
	IdentityUnprivileged Identity = "unprivileged"
)

// Directive is a rendered Dockerfile instruction keyword.
type Directive string

const (
	DirectiveFrom    Directive = "FROM"
	DirectiveEnv     Directive = "ENV"
	DirectiveCopy    Directive = "COPY"
	DirectiveWorkdir Directive = "WORKDIR"
	DirectiveExpose  Directive = "EXPOSE"
	DirectiveRun     Directive = "RUN"
	DirectiveUser    Directive = "USER"
	DirectiveCmd     Directive = "CMD"
)

var (
	// ErrStepAfterEntrypoint is returned when a plan contains steps after
	// the entrypoint was set.
	ErrStepAfterEntrypoint = errors.New("step after entrypoint")

	// ErrPrivilegeDropped is returned when a privileged step follows the
	// drop to the service account.
	ErrPrivilegeDropped = errors.New("privileged step after privilege drop")

	// ErrRuntimeEnvExists is returned when a runtime environment is created
	// twice at the same prefix.
	ErrRuntimeEnvExists = errors.New("runtime environment already exists")

	// ErrRuntimeEnvMissing is returned when a step needs the runtime
	// environment before it was created.
	ErrRuntimeEnvMissing = errors.New("runtime environment not created")

	// ErrRuntimeLibsMissing is returned when the manifest install runs
	// before the native runtime libraries it links against are present.
	ErrRuntimeLibsMissing = errors.New("runtime libraries not installed")

	// ErrBuildDepsMissing is returned when a purge names a build-dependency
	// group that was never installed.
	ErrBuildDepsMissing = errors.New("build dependency group not installed")

	// ErrManifestNotStaged is returned when the manifest install runs
	// before the manifest was copied into the image.
	ErrManifestNotStaged = errors.New("manifest not staged")

	// ErrManifestNotInstalled is returned when staging cleanup or the
	// build-dependency purge runs before the manifest install.
	ErrManifestNotInstalled = errors.New("manifest not installed")

	// ErrAccountExists is returned when the service account is created twice.
	ErrAccountExists = errors.New("service account already exists")

	// ErrAccountMissing is returned when a step references the service
	// account before it was created.
	ErrAccountMissing = errors.New("service account not created")

	// ErrDirectoryMissing is returned when ownership or permissions are
	// assigned to a directory that was never created.
	ErrDirectoryMissing = errors.New("directory not created")

	// ErrOwnershipMissing is returned when permissions are assigned to a
	// directory before it was handed to the service account.
	ErrOwnershipMissing = errors.New("ownership not assigned")

	// ErrAlreadyUnprivileged is returned on a second privilege drop.
	ErrAlreadyUnprivileged = errors.New("privileges already dropped")

	// ErrEntrypointUnresolvable is returned when the entrypoint would not
	// resolve through PATH in the final image.
	ErrEntrypointUnresolvable = errors.New("entrypoint not resolvable via PATH")

	// ErrNoEntrypoint is returned when a plan ends without an entrypoint.
	ErrNoEntrypoint = errors.New("plan sets no entrypoint")

	// ErrStillPrivileged is returned when a plan ends without dropping to
	// the service account.
	ErrStillPrivileged = errors.New("plan never drops privileges")
)

type (
	// Instruction is the rendered form of a step. Consecutive RUN
	// instructions are merged into a single layer by the renderer.
	Instruction struct {
		Directive Directive
		Args      string
	}

	// Step is one provisioning operation. Apply advances the simulated
	// image state and reports a violated precondition as an error.
	Step interface {
		Name() string
		RequiresPrivilege() bool
		Apply(s *ImageState) error
		Instruction() Instruction
	}

	// ImageState is the simulated state of the image while a plan is
	// validated, step by step.
	ImageState struct {
		BaseImage string
		Identity  Identity

		Env     map[string]string
		WorkDir string
		Ports   []int

		// Staged maps image destination paths to build-context sources.
		Staged map[string]string

		RuntimeEnvPath    string
		PackagingUpgraded bool
		RuntimeLibs       []string
		BuildDepsGroup    string
		ManifestStaged    string
		ManifestInstalled bool

		Accounts map[string]bool
		Dirs     map[string]bool
		Owner    map[string]string
		Mode     map[string]string

		// ExecutablePaths are directories whose contents were marked
		// executable.
		ExecutablePaths map[string]bool

		Entrypoint string
	}

	// Plan is an ordered list of provisioning steps applied on top of a
	// pinned base image.
	Plan struct {
		BaseImage string
		Steps     []Step
	}

	// StepError reports the first step of a plan that violated its
	// preconditions.
	StepError struct {
		Index int
		Step  string
		Err   error
	}
)

// Error implements the error interface.
func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Index+1, e.Step, e.Err)
}

// Unwrap returns the underlying precondition error.
func (e *StepError) Unwrap() error { return e.Err }

// NewImageState returns the initial state of a freshly pulled base image:
// privileged, nothing staged, nothing installed.
func NewImageState(baseImage string) *ImageState {
	return &ImageState{
		BaseImage:       baseImage,
		Identity:        IdentityPrivileged,
		Env:             map[string]string{},
		Staged:          map[string]string{},
		Accounts:        map[string]bool{},
		Dirs:            map[string]bool{},
		Owner:           map[string]string{},
		Mode:            map[string]string{},
		ExecutablePaths: map[string]bool{},
	}
}

// Validate replays the plan against a simulated image state and returns the
// final state. It fails at the first step whose preconditions do not hold,
// naming the step, and rejects plans that end privileged or without an
// entrypoint.
func (p *Plan) Validate() (*ImageState, error) {
	state := NewImageState(p.BaseImage)

	for i, step := range p.Steps {
		if state.Entrypoint != "" {
			return nil, &StepError{Index: i, Step: step.Name(), Err: ErrStepAfterEntrypoint}
		}
		if step.RequiresPrivilege() && state.Identity == IdentityUnprivileged {
			return nil, &StepError{Index: i, Step: step.Name(), Err: ErrPrivilegeDropped}
		}
		if err := step.Apply(state); err != nil {
			return nil, &StepError{Index: i, Step: step.Name(), Err: err}
		}
	}

	if state.Entrypoint == "" {
		return nil, ErrNoEntrypoint
	}
	if state.Identity != IdentityUnprivileged {
		return nil, ErrStillPrivileged
	}

	return state, nil
}

// Instructions returns the rendered instruction for every step, in plan
// order, without the leading FROM.
func (p *Plan) Instructions() []Instruction {
	out := make([]Instruction, len(p.Steps))
	for i, step := range p.Steps {
		out[i] = step.Instruction()
	}
	return out
}
