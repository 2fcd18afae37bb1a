// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"kiln/internal/kilnfile"
)

// Image-side destinations for the copied build-context trees.
const (
	StagingDir = "/tmp"
	ScriptsDir = "/scripts"
	AppDir     = "/app"

	// BuildDepsGroup names the virtual package group that holds compile-time
	// dependencies until the manifest install is done.
	BuildDepsGroup = ".tmp-build-deps"
)

type (
	// SetEnv exports an environment variable to every later layer and to
	// the running container.
	SetEnv struct {
		Key   string
		Value string
	}

	// CopyTree copies a build-context file or directory into the image.
	CopyTree struct {
		Source string
		Dest   string
	}

	// SetWorkDir sets the working directory of later layers and of the
	// running container.
	SetWorkDir struct {
		Path string
	}

	// ExposePort advertises the inbound TCP port.
	ExposePort struct {
		Port int
	}

	// CreateRuntimeEnv provisions the isolated runtime environment at a
	// fixed prefix.
	CreateRuntimeEnv struct {
		Prefix string
	}

	// UpgradePackaging upgrades the package installer inside the runtime
	// environment before anything is installed with it.
	UpgradePackaging struct {
		Prefix string
	}

	// InstallRuntimeLibs installs the system packages that stay in the
	// final image.
	InstallRuntimeLibs struct {
		Packages []string
	}

	// InstallBuildDeps installs compile-time system packages under a named
	// virtual group so they can be purged as one unit.
	InstallBuildDeps struct {
		Group    string
		Packages []string
	}

	// InstallManifest installs the application dependencies from the staged
	// manifest into the runtime environment.
	InstallManifest struct {
		Prefix       string
		ManifestPath string
	}

	// RemoveStaging deletes the staging directory once the manifest is
	// installed.
	RemoveStaging struct {
		Dir string
	}

	// PurgeBuildDeps removes the virtual build-dependency group.
	PurgeBuildDeps struct {
		Group string
	}

	// CreateServiceAccount adds the unprivileged account the container will
	// run as. No password, no home directory.
	CreateServiceAccount struct {
		User string
	}

	// CreateVolumeDirs creates the writable volume directories. Re-creating
	// an existing directory is a no-op.
	CreateVolumeDirs struct {
		Paths []string
	}

	// AssignOwnership recursively hands created directories and copied trees
	// to the service account.
	AssignOwnership struct {
		User  string
		Paths []string
	}

	// SetPermissions recursively applies a mode to directories.
	SetPermissions struct {
		Mode  string
		Paths []string
	}

	// MarkExecutable marks the contents of a copied directory executable.
	MarkExecutable struct {
		Path string
	}

	// DropPrivileges switches every later layer and the running container
	// to the service account. There is no way back.
	DropPrivileges struct {
		User string
	}

	// SetEntrypoint sets the container start command: a bare executable
	// name resolved through PATH. It terminates the plan.
	SetEntrypoint struct {
		Command string
		Dir     string
	}
)

func (s SetEnv) Name() string            { return "set env " + s.Key }
func (s SetEnv) RequiresPrivilege() bool { return false }

func (s SetEnv) Apply(st *ImageState) error {
	st.Env[s.Key] = s.Value
	return nil
}

func (s SetEnv) Instruction() Instruction {
	return Instruction{DirectiveEnv, fmt.Sprintf("%s=%q", s.Key, s.Value)}
}

func (s CopyTree) Name() string            { return "copy " + s.Source }
func (s CopyTree) RequiresPrivilege() bool { return false }

func (s CopyTree) Apply(st *ImageState) error {
	st.Staged[s.Dest] = s.Source
	return nil
}

func (s CopyTree) Instruction() Instruction {
	return Instruction{DirectiveCopy, s.Source + " " + s.Dest}
}

func (s SetWorkDir) Name() string            { return "set workdir" }
func (s SetWorkDir) RequiresPrivilege() bool { return false }

func (s SetWorkDir) Apply(st *ImageState) error {
	st.WorkDir = s.Path
	return nil
}

func (s SetWorkDir) Instruction() Instruction {
	return Instruction{DirectiveWorkdir, s.Path}
}

func (s ExposePort) Name() string            { return "expose port" }
func (s ExposePort) RequiresPrivilege() bool { return false }

func (s ExposePort) Apply(st *ImageState) error {
	st.Ports = append(st.Ports, s.Port)
	return nil
}

func (s ExposePort) Instruction() Instruction {
	return Instruction{DirectiveExpose, strconv.Itoa(s.Port)}
}

func (s CreateRuntimeEnv) Name() string            { return "create runtime environment" }
func (s CreateRuntimeEnv) RequiresPrivilege() bool { return true }

func (s CreateRuntimeEnv) Apply(st *ImageState) error {
	if st.RuntimeEnvPath != "" {
		return fmt.Errorf("%w at %s", ErrRuntimeEnvExists, st.RuntimeEnvPath)
	}
	st.RuntimeEnvPath = s.Prefix
	registerDir(st, s.Prefix)
	return nil
}

func (s CreateRuntimeEnv) Instruction() Instruction {
	return Instruction{DirectiveRun, "python -m venv " + quote(s.Prefix)}
}

func (s UpgradePackaging) Name() string            { return "upgrade packaging tools" }
func (s UpgradePackaging) RequiresPrivilege() bool { return true }

func (s UpgradePackaging) Apply(st *ImageState) error {
	if st.RuntimeEnvPath == "" {
		return ErrRuntimeEnvMissing
	}
	st.PackagingUpgraded = true
	return nil
}

func (s UpgradePackaging) Instruction() Instruction {
	return Instruction{DirectiveRun, quote(s.Prefix+"/bin/pip") + " install --upgrade pip"}
}

func (s InstallRuntimeLibs) Name() string            { return "install runtime libraries" }
func (s InstallRuntimeLibs) RequiresPrivilege() bool { return true }

func (s InstallRuntimeLibs) Apply(st *ImageState) error {
	st.RuntimeLibs = append(st.RuntimeLibs, s.Packages...)
	return nil
}

func (s InstallRuntimeLibs) Instruction() Instruction {
	return Instruction{DirectiveRun, "apk add --update --no-cache " + quoteAll(s.Packages)}
}

func (s InstallBuildDeps) Name() string            { return "install build dependencies" }
func (s InstallBuildDeps) RequiresPrivilege() bool { return true }

func (s InstallBuildDeps) Apply(st *ImageState) error {
	st.BuildDepsGroup = s.Group
	return nil
}

func (s InstallBuildDeps) Instruction() Instruction {
	return Instruction{
		DirectiveRun,
		"apk add --update --no-cache --virtual " + quote(s.Group) + " " + quoteAll(s.Packages),
	}
}

func (s InstallManifest) Name() string            { return "install manifest dependencies" }
func (s InstallManifest) RequiresPrivilege() bool { return true }

// Apply requires the runtime environment, the staged manifest, and the
// native runtime libraries. Installing before the libraries are present
// would let packages with native extensions fail to link.
func (s InstallManifest) Apply(st *ImageState) error {
	if st.RuntimeEnvPath == "" {
		return ErrRuntimeEnvMissing
	}
	if _, ok := st.Staged[s.ManifestPath]; !ok {
		return fmt.Errorf("%w: %s", ErrManifestNotStaged, s.ManifestPath)
	}
	if len(st.RuntimeLibs) == 0 {
		return ErrRuntimeLibsMissing
	}
	st.ManifestStaged = s.ManifestPath
	st.ManifestInstalled = true
	return nil
}

func (s InstallManifest) Instruction() Instruction {
	return Instruction{
		DirectiveRun,
		quote(s.Prefix+"/bin/pip") + " install --no-cache-dir -r " + quote(s.ManifestPath),
	}
}

func (s RemoveStaging) Name() string            { return "remove staging directory" }
func (s RemoveStaging) RequiresPrivilege() bool { return true }

func (s RemoveStaging) Apply(st *ImageState) error {
	if !st.ManifestInstalled {
		return ErrManifestNotInstalled
	}
	st.ManifestStaged = ""
	return nil
}

func (s RemoveStaging) Instruction() Instruction {
	return Instruction{DirectiveRun, "rm -rf " + quote(s.Dir)}
}

func (s PurgeBuildDeps) Name() string            { return "purge build dependencies" }
func (s PurgeBuildDeps) RequiresPrivilege() bool { return true }

func (s PurgeBuildDeps) Apply(st *ImageState) error {
	if st.BuildDepsGroup != s.Group {
		return fmt.Errorf("%w: %s", ErrBuildDepsMissing, s.Group)
	}
	if !st.ManifestInstalled {
		return ErrManifestNotInstalled
	}
	st.BuildDepsGroup = ""
	return nil
}

func (s PurgeBuildDeps) Instruction() Instruction {
	return Instruction{DirectiveRun, "apk del " + quote(s.Group)}
}

func (s CreateServiceAccount) Name() string            { return "create service account" }
func (s CreateServiceAccount) RequiresPrivilege() bool { return true }

func (s CreateServiceAccount) Apply(st *ImageState) error {
	if st.Accounts[s.User] {
		return fmt.Errorf("%w: %s", ErrAccountExists, s.User)
	}
	st.Accounts[s.User] = true
	return nil
}

func (s CreateServiceAccount) Instruction() Instruction {
	return Instruction{
		DirectiveRun,
		"adduser --disabled-password --no-create-home " + quote(s.User),
	}
}

func (s CreateVolumeDirs) Name() string            { return "create volume directories" }
func (s CreateVolumeDirs) RequiresPrivilege() bool { return true }

func (s CreateVolumeDirs) Apply(st *ImageState) error {
	for _, p := range s.Paths {
		registerDir(st, p)
	}
	return nil
}

func (s CreateVolumeDirs) Instruction() Instruction {
	return Instruction{DirectiveRun, "mkdir -p " + quoteAll(s.Paths)}
}

func (s AssignOwnership) Name() string            { return "assign volume ownership" }
func (s AssignOwnership) RequiresPrivilege() bool { return true }

func (s AssignOwnership) Apply(st *ImageState) error {
	if !st.Accounts[s.User] {
		return fmt.Errorf("%w: %s", ErrAccountMissing, s.User)
	}
	for _, p := range s.Paths {
		_, staged := st.Staged[p]
		if !st.Dirs[p] && !staged {
			return fmt.Errorf("%w: %s", ErrDirectoryMissing, p)
		}
		st.Owner[p] = s.User
	}
	return nil
}

func (s AssignOwnership) Instruction() Instruction {
	owner := quote(s.User + ":" + s.User)
	return Instruction{DirectiveRun, "chown -R " + owner + " " + quoteAll(s.Paths)}
}

func (s SetPermissions) Name() string            { return "set volume permissions" }
func (s SetPermissions) RequiresPrivilege() bool { return true }

// Apply requires that every path exists and was already handed to the
// service account. Ownership precedes permissions.
func (s SetPermissions) Apply(st *ImageState) error {
	for _, p := range s.Paths {
		if !st.Dirs[p] {
			return fmt.Errorf("%w: %s", ErrDirectoryMissing, p)
		}
		if st.Owner[p] == "" {
			return fmt.Errorf("%w: %s", ErrOwnershipMissing, p)
		}
		st.Mode[p] = s.Mode
	}
	return nil
}

func (s SetPermissions) Instruction() Instruction {
	return Instruction{DirectiveRun, "chmod -R " + s.Mode + " " + quoteAll(s.Paths)}
}

func (s MarkExecutable) Name() string            { return "mark scripts executable" }
func (s MarkExecutable) RequiresPrivilege() bool { return true }

func (s MarkExecutable) Apply(st *ImageState) error {
	if _, ok := st.Staged[s.Path]; !ok {
		return fmt.Errorf("%w: %s", ErrDirectoryMissing, s.Path)
	}
	st.ExecutablePaths[s.Path] = true
	return nil
}

func (s MarkExecutable) Instruction() Instruction {
	return Instruction{DirectiveRun, "chmod -R +x " + quote(s.Path)}
}

func (s DropPrivileges) Name() string            { return "drop privileges" }
func (s DropPrivileges) RequiresPrivilege() bool { return false }

func (s DropPrivileges) Apply(st *ImageState) error {
	if st.Identity == IdentityUnprivileged {
		return ErrAlreadyUnprivileged
	}
	if !st.Accounts[s.User] {
		return fmt.Errorf("%w: %s", ErrAccountMissing, s.User)
	}
	st.Identity = IdentityUnprivileged
	return nil
}

func (s DropPrivileges) Instruction() Instruction {
	return Instruction{DirectiveUser, s.User}
}

func (s SetEntrypoint) Name() string            { return "set entrypoint" }
func (s SetEntrypoint) RequiresPrivilege() bool { return false }

// Apply requires that privileges were already dropped and that the
// entrypoint's directory is executable and on PATH.
func (s SetEntrypoint) Apply(st *ImageState) error {
	if st.Identity != IdentityUnprivileged {
		return ErrStillPrivileged
	}
	if !st.ExecutablePaths[s.Dir] || !onPath(st.Env["PATH"], s.Dir) {
		return fmt.Errorf("%w: %s", ErrEntrypointUnresolvable, s.Command)
	}
	st.Entrypoint = s.Command
	return nil
}

func (s SetEntrypoint) Instruction() Instruction {
	return Instruction{DirectiveCmd, fmt.Sprintf("[%q]", s.Command)}
}

// FromRecipe builds the canonical plan for a recipe: environment and
// build-context staging first, a single provisioning sequence, then the
// privilege drop and the entrypoint.
func FromRecipe(r *kilnfile.Recipe) *Plan {
	manifestDest := path.Join(StagingDir, path.Base(r.Manifest))

	steps := make([]Step, 0, 24)

	keys := make([]string, 0, len(r.Env))
	for k := range r.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		steps = append(steps, SetEnv{Key: k, Value: r.Env[k]})
	}

	steps = append(steps,
		CopyTree{Source: r.Manifest, Dest: manifestDest},
		CopyTree{Source: r.ScriptsDir, Dest: ScriptsDir},
		CopyTree{Source: r.AppDir, Dest: AppDir},
		SetWorkDir{Path: AppDir},
		ExposePort{Port: r.Port},
		CreateRuntimeEnv{Prefix: r.RuntimeEnv},
		UpgradePackaging{Prefix: r.RuntimeEnv},
	)

	if len(r.SystemPackages.Runtime) > 0 {
		steps = append(steps, InstallRuntimeLibs{Packages: r.SystemPackages.Runtime})
	}
	if len(r.SystemPackages.Build) > 0 {
		steps = append(steps, InstallBuildDeps{Group: BuildDepsGroup, Packages: r.SystemPackages.Build})
	}

	steps = append(steps,
		InstallManifest{Prefix: r.RuntimeEnv, ManifestPath: manifestDest},
		RemoveStaging{Dir: StagingDir},
	)

	if len(r.SystemPackages.Build) > 0 {
		steps = append(steps, PurgeBuildDeps{Group: BuildDepsGroup})
	}

	steps = append(steps,
		CreateServiceAccount{User: r.ServiceUser},
		CreateVolumeDirs{Paths: r.VolumePaths()},
		AssignOwnership{User: r.ServiceUser, Paths: []string{r.VolumeRoot, ScriptsDir, AppDir}},
		SetPermissions{Mode: "755", Paths: []string{r.VolumeRoot}},
		MarkExecutable{Path: ScriptsDir},
		SetEnv{Key: "PATH", Value: ScriptsDir + ":" + r.RuntimeBin() + ":$PATH"},
		DropPrivileges{User: r.ServiceUser},
		SetEntrypoint{Command: r.Entrypoint, Dir: ScriptsDir},
	)

	return &Plan{BaseImage: r.BaseImage, Steps: steps}
}

// registerDir records a directory and its ancestors, mirroring mkdir -p.
func registerDir(st *ImageState, dir string) {
	for p := path.Clean(dir); p != "/" && p != "."; p = path.Dir(p) {
		st.Dirs[p] = true
	}
}

func onPath(pathEnv, dir string) bool {
	for _, p := range strings.Split(pathEnv, ":") {
		if p == dir {
			return true
		}
	}
	return false
}

// quote shell-quotes a single argument for a generated RUN fragment.
func quote(arg string) string {
	quoted, err := syntax.Quote(arg, syntax.LangPOSIX)
	if err != nil {
		return strconv.Quote(arg)
	}
	return quoted
}

func quoteAll(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = quote(a)
	}
	return strings.Join(quoted, " ")
}
