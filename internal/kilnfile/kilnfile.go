// SPDX-License-Identifier: MPL-2.0

// Package kilnfile defines the bake recipe: the declarative description of a
// service image that the pipeline turns into an ordered provisioning plan.
package kilnfile

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// DefaultFileName is the recipe file kiln looks for when --file is not given.
const DefaultFileName = "kilnfile.cue"

var (
	// ErrInvalidEntrypoint is the sentinel error wrapped by InvalidEntrypointError.
	ErrInvalidEntrypoint = errors.New("invalid entrypoint")

	// ErrInvalidContextPath is the sentinel error wrapped by InvalidContextPathError.
	ErrInvalidContextPath = errors.New("invalid build context path")

	// ErrInvalidVolumeName is the sentinel error wrapped by InvalidVolumeNameError.
	ErrInvalidVolumeName = errors.New("invalid volume name")
)

type (
	// SystemPackages splits system packages into the set kept in the final
	// image and the build-only set purged after the manifest install.
	SystemPackages struct {
		Runtime []string `json:"runtime,omitempty"`
		Build   []string `json:"build,omitempty"`
	}

	// Recipe is a parsed kilnfile.
	Recipe struct {
		Name           string            `json:"name,omitempty"`
		BaseImage      string            `json:"base_image"`
		Port           int               `json:"port,omitempty"`
		Manifest       string            `json:"manifest,omitempty"`
		AppDir         string            `json:"app_dir,omitempty"`
		ScriptsDir     string            `json:"scripts_dir,omitempty"`
		RuntimeEnv     string            `json:"runtime_env,omitempty"`
		ServiceUser    string            `json:"service_user,omitempty"`
		VolumeRoot     string            `json:"volume_root,omitempty"`
		Volumes        []string          `json:"volumes,omitempty"`
		Entrypoint     string            `json:"entrypoint,omitempty"`
		Env            map[string]string `json:"env,omitempty"`
		SystemPackages SystemPackages    `json:"system_packages,omitempty"`

		// FilePath is where the recipe was loaded from (not part of the schema).
		FilePath string `json:"-"`
	}

	// InvalidEntrypointError is returned when the entrypoint is not a bare
	// executable name.
	InvalidEntrypointError struct {
		Value string
	}

	// InvalidContextPathError is returned when a build-context path is
	// absolute or escapes the context directory.
	InvalidContextPathError struct {
		Field string
		Value string
	}

	// InvalidVolumeNameError is returned when a volume name contains a path
	// separator.
	InvalidVolumeNameError struct {
		Value string
	}
)

// Error implements the error interface.
func (e *InvalidEntrypointError) Error() string {
	return fmt.Sprintf("invalid entrypoint %q: must be a bare executable name with no path or arguments", e.Value)
}

// Unwrap returns ErrInvalidEntrypoint for errors.Is compatibility.
func (e *InvalidEntrypointError) Unwrap() error { return ErrInvalidEntrypoint }

// Error implements the error interface.
func (e *InvalidContextPathError) Error() string {
	return fmt.Sprintf("invalid %s %q: must be a relative path inside the build context", e.Field, e.Value)
}

// Unwrap returns ErrInvalidContextPath for errors.Is compatibility.
func (e *InvalidContextPathError) Unwrap() error { return ErrInvalidContextPath }

// Error implements the error interface.
func (e *InvalidVolumeNameError) Error() string {
	return fmt.Sprintf("invalid volume name %q: must be a bare directory name", e.Value)
}

// Unwrap returns ErrInvalidVolumeName for errors.Is compatibility.
func (e *InvalidVolumeNameError) Unwrap() error { return ErrInvalidVolumeName }

// applyDefaults fills unset optional fields. The defaults reproduce the
// layout the original service image used.
func (r *Recipe) applyDefaults() {
	if r.Name == "" {
		r.Name = "kiln"
	}
	if r.Port == 0 {
		r.Port = 8000
	}
	if r.Manifest == "" {
		r.Manifest = "requirements.txt"
	}
	if r.AppDir == "" {
		r.AppDir = "app"
	}
	if r.ScriptsDir == "" {
		r.ScriptsDir = "scripts"
	}
	if r.RuntimeEnv == "" {
		r.RuntimeEnv = "/py"
	}
	if r.ServiceUser == "" {
		r.ServiceUser = "app-user"
	}
	if r.VolumeRoot == "" {
		r.VolumeRoot = "/vol/web"
	}
	if len(r.Volumes) == 0 {
		r.Volumes = []string{"media", "static"}
	}
	if r.Entrypoint == "" {
		r.Entrypoint = "run.sh"
	}
	if r.Env == nil {
		r.Env = map[string]string{}
	}
	if _, ok := r.Env["PYTHONUNBUFFERED"]; !ok {
		r.Env["PYTHONUNBUFFERED"] = "1"
	}
	if len(r.SystemPackages.Runtime) == 0 {
		r.SystemPackages.Runtime = []string{
			"postgresql-client", "jpeg-dev", "zlib", "ca-certificates", "curl", "git",
		}
	}
	if len(r.SystemPackages.Build) == 0 {
		r.SystemPackages.Build = []string{
			"build-base", "postgresql-dev", "musl-dev", "zlib-dev", "linux-headers",
		}
	}
}

// validate enforces constraints the CUE schema cannot express.
func (r *Recipe) validate() error {
	// The entrypoint contract is a single fixed executable name invoked
	// with no arguments.
	if strings.ContainsAny(r.Entrypoint, "/ \t") {
		return &InvalidEntrypointError{Value: r.Entrypoint}
	}

	for field, path := range map[string]string{
		"manifest":    r.Manifest,
		"app_dir":     r.AppDir,
		"scripts_dir": r.ScriptsDir,
	} {
		if filepath.IsAbs(path) || escapesContext(path) {
			return &InvalidContextPathError{Field: field, Value: path}
		}
	}

	for _, v := range r.Volumes {
		if strings.ContainsRune(v, '/') || v == "." || v == ".." {
			return &InvalidVolumeNameError{Value: v}
		}
	}

	return nil
}

// escapesContext reports whether a relative path climbs out of the build
// context directory.
func escapesContext(path string) bool {
	clean := filepath.Clean(path)
	return clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator))
}

// VolumePaths returns the absolute container paths of the volume
// directories, in declaration order.
func (r *Recipe) VolumePaths() []string {
	paths := make([]string, len(r.Volumes))
	for i, v := range r.Volumes {
		paths[i] = r.VolumeRoot + "/" + v
	}
	return paths
}

// RuntimeBin returns the bin directory of the isolated runtime environment.
func (r *Recipe) RuntimeBin() string {
	return r.RuntimeEnv + "/bin"
}
