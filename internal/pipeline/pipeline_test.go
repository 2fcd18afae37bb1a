// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"errors"
	"strings"
	"testing"

	"kiln/internal/kilnfile"
)

func testRecipe(t *testing.T) *kilnfile.Recipe {
	t.Helper()
	r, err := kilnfile.ParseBytes([]byte(`base_image: "python:3.9-alpine3.13"`), "kilnfile.cue")
	if err != nil {
		t.Fatalf("failed to parse test recipe: %v", err)
	}
	return r
}

// stepIndex returns the position of the only step of type S in the plan.
func stepIndex[S Step](t *testing.T, p *Plan) int {
	t.Helper()
	for i, s := range p.Steps {
		if _, ok := s.(S); ok {
			return i
		}
	}
	t.Fatal("step not found in plan")
	return -1
}

func TestFromRecipe_ValidatesAndProducesFinalState(t *testing.T) {
	t.Parallel()

	plan := FromRecipe(testRecipe(t))

	state, err := plan.Validate()
	if err != nil {
		t.Fatalf("canonical plan should validate: %v", err)
	}

	if state.Identity != IdentityUnprivileged {
		t.Errorf("Identity = %q, want unprivileged", state.Identity)
	}
	if state.Entrypoint != "run.sh" {
		t.Errorf("Entrypoint = %q", state.Entrypoint)
	}
	if !state.ManifestInstalled {
		t.Error("manifest should be installed")
	}
	if state.BuildDepsGroup != "" {
		t.Errorf("build deps should be purged, got group %q", state.BuildDepsGroup)
	}
	if state.ManifestStaged != "" {
		t.Errorf("staging should be cleaned up, got %q", state.ManifestStaged)
	}
	if state.Owner["/vol/web"] != "app-user" {
		t.Errorf("Owner[/vol/web] = %q", state.Owner["/vol/web"])
	}
	if state.Owner[ScriptsDir] != "app-user" || state.Owner[AppDir] != "app-user" {
		t.Errorf("copied trees not owned by service account: %v", state.Owner)
	}
	if state.Mode["/vol/web"] != "755" {
		t.Errorf("Mode[/vol/web] = %q", state.Mode["/vol/web"])
	}
	if !strings.HasPrefix(state.Env["PATH"], "/scripts:/py/bin:") {
		t.Errorf("PATH = %q", state.Env["PATH"])
	}
	if len(state.Ports) != 1 || state.Ports[0] != 8000 {
		t.Errorf("Ports = %v", state.Ports)
	}
}

func TestValidate_ManifestInstallBeforeRuntimeLibs(t *testing.T) {
	t.Parallel()

	plan := FromRecipe(testRecipe(t))
	libs := stepIndex[InstallRuntimeLibs](t, plan)
	install := stepIndex[InstallManifest](t, plan)
	plan.Steps[libs], plan.Steps[install] = plan.Steps[install], plan.Steps[libs]

	_, err := plan.Validate()
	if !errors.Is(err, ErrRuntimeLibsMissing) {
		t.Fatalf("expected ErrRuntimeLibsMissing, got %v", err)
	}

	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("expected *StepError, got %T", err)
	}
	if stepErr.Step != "install manifest dependencies" {
		t.Errorf("failing step = %q", stepErr.Step)
	}
	if stepErr.Index != libs {
		t.Errorf("failing index = %d, want %d", stepErr.Index, libs)
	}
}

func TestValidate_OwnershipBeforeAccount(t *testing.T) {
	t.Parallel()

	plan := FromRecipe(testRecipe(t))
	account := stepIndex[CreateServiceAccount](t, plan)
	chown := stepIndex[AssignOwnership](t, plan)
	plan.Steps[account], plan.Steps[chown] = plan.Steps[chown], plan.Steps[account]

	_, err := plan.Validate()
	if !errors.Is(err, ErrAccountMissing) {
		t.Fatalf("expected ErrAccountMissing, got %v", err)
	}
}

func TestValidate_PermissionsBeforeOwnership(t *testing.T) {
	t.Parallel()

	plan := FromRecipe(testRecipe(t))
	chown := stepIndex[AssignOwnership](t, plan)
	chmod := stepIndex[SetPermissions](t, plan)
	plan.Steps[chown], plan.Steps[chmod] = plan.Steps[chmod], plan.Steps[chown]

	_, err := plan.Validate()
	if !errors.Is(err, ErrOwnershipMissing) {
		t.Fatalf("expected ErrOwnershipMissing, got %v", err)
	}

	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("expected *StepError, got %T", err)
	}
	if stepErr.Step != "set volume permissions" {
		t.Errorf("failing step = %q", stepErr.Step)
	}
}

func TestValidate_PrivilegedStepAfterDrop(t *testing.T) {
	t.Parallel()

	plan := FromRecipe(testRecipe(t))
	cmd := stepIndex[SetEntrypoint](t, plan)

	steps := append([]Step{}, plan.Steps[:cmd]...)
	steps = append(steps, InstallRuntimeLibs{Packages: []string{"curl"}})
	steps = append(steps, plan.Steps[cmd:]...)
	plan.Steps = steps

	_, err := plan.Validate()
	if !errors.Is(err, ErrPrivilegeDropped) {
		t.Fatalf("expected ErrPrivilegeDropped, got %v", err)
	}
}

func TestValidate_StepAfterEntrypoint(t *testing.T) {
	t.Parallel()

	plan := FromRecipe(testRecipe(t))
	plan.Steps = append(plan.Steps, SetEnv{Key: "LATE", Value: "1"})

	_, err := plan.Validate()
	if !errors.Is(err, ErrStepAfterEntrypoint) {
		t.Fatalf("expected ErrStepAfterEntrypoint, got %v", err)
	}
}

func TestValidate_DoubleRuntimeEnv(t *testing.T) {
	t.Parallel()

	plan := FromRecipe(testRecipe(t))
	venv := stepIndex[CreateRuntimeEnv](t, plan)

	steps := append([]Step{}, plan.Steps[:venv+1]...)
	steps = append(steps, CreateRuntimeEnv{Prefix: "/py2"})
	steps = append(steps, plan.Steps[venv+1:]...)
	plan.Steps = steps

	_, err := plan.Validate()
	if !errors.Is(err, ErrRuntimeEnvExists) {
		t.Fatalf("expected ErrRuntimeEnvExists, got %v", err)
	}
}

func TestValidate_DoublePrivilegeDrop(t *testing.T) {
	t.Parallel()

	plan := FromRecipe(testRecipe(t))
	cmd := stepIndex[SetEntrypoint](t, plan)

	steps := append([]Step{}, plan.Steps[:cmd]...)
	steps = append(steps, DropPrivileges{User: "app-user"})
	steps = append(steps, plan.Steps[cmd:]...)
	plan.Steps = steps

	_, err := plan.Validate()
	if !errors.Is(err, ErrAlreadyUnprivileged) {
		t.Fatalf("expected ErrAlreadyUnprivileged, got %v", err)
	}
}

func TestValidate_TruncatedPlans(t *testing.T) {
	t.Parallel()

	t.Run("no entrypoint", func(t *testing.T) {
		t.Parallel()
		plan := FromRecipe(testRecipe(t))
		plan.Steps = plan.Steps[:len(plan.Steps)-1]

		_, err := plan.Validate()
		if !errors.Is(err, ErrNoEntrypoint) {
			t.Fatalf("expected ErrNoEntrypoint, got %v", err)
		}
	})

	t.Run("never drops privileges", func(t *testing.T) {
		t.Parallel()
		plan := FromRecipe(testRecipe(t))
		drop := stepIndex[DropPrivileges](t, plan)
		plan.Steps = plan.Steps[:drop]

		_, err := plan.Validate()
		if !errors.Is(err, ErrNoEntrypoint) {
			t.Fatalf("expected ErrNoEntrypoint, got %v", err)
		}
	})
}

func TestValidate_IdempotentVolumeDirs(t *testing.T) {
	t.Parallel()

	plan := FromRecipe(testRecipe(t))
	mkdir := stepIndex[CreateVolumeDirs](t, plan)

	steps := append([]Step{}, plan.Steps[:mkdir+1]...)
	steps = append(steps, CreateVolumeDirs{Paths: []string{"/vol/web/media"}})
	steps = append(steps, plan.Steps[mkdir+1:]...)
	plan.Steps = steps

	if _, err := plan.Validate(); err != nil {
		t.Fatalf("repeated directory creation should validate: %v", err)
	}
}

func TestValidate_EntrypointWhilePrivileged(t *testing.T) {
	t.Parallel()

	plan := FromRecipe(testRecipe(t))
	drop := stepIndex[DropPrivileges](t, plan)
	cmd := stepIndex[SetEntrypoint](t, plan)
	plan.Steps[drop], plan.Steps[cmd] = plan.Steps[cmd], plan.Steps[drop]

	_, err := plan.Validate()
	if !errors.Is(err, ErrStillPrivileged) {
		t.Fatalf("expected ErrStillPrivileged, got %v", err)
	}
}

func TestStepError_Format(t *testing.T) {
	t.Parallel()

	err := &StepError{Index: 4, Step: "create runtime environment", Err: ErrRuntimeEnvExists}
	want := "step 5 (create runtime environment): runtime environment already exists"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, ErrRuntimeEnvExists) {
		t.Error("StepError should unwrap to its cause")
	}
}
