// SPDX-License-Identifier: MPL-2.0

package kilnfile

import (
	"fmt"
	"strings"
)

// GenerateCUE renders a recipe as a kilnfile, used by 'kiln init'.
func GenerateCUE(r *Recipe) string {
	var sb strings.Builder

	sb.WriteString("// kiln recipe\n")
	sb.WriteString("// Bake with: kiln bake\n\n")

	fmt.Fprintf(&sb, "name:       %q\n", r.Name)
	fmt.Fprintf(&sb, "base_image: %q\n", r.BaseImage)
	fmt.Fprintf(&sb, "port:       %d\n\n", r.Port)

	fmt.Fprintf(&sb, "manifest:    %q\n", r.Manifest)
	fmt.Fprintf(&sb, "app_dir:     %q\n", r.AppDir)
	fmt.Fprintf(&sb, "scripts_dir: %q\n\n", r.ScriptsDir)

	fmt.Fprintf(&sb, "runtime_env:  %q\n", r.RuntimeEnv)
	fmt.Fprintf(&sb, "service_user: %q\n", r.ServiceUser)
	fmt.Fprintf(&sb, "volume_root:  %q\n", r.VolumeRoot)
	sb.WriteString("volumes: [")
	for i, v := range r.Volumes {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%q", v)
	}
	sb.WriteString("]\n\n")

	fmt.Fprintf(&sb, "entrypoint: %q\n\n", r.Entrypoint)

	sb.WriteString("system_packages: {\n")
	sb.WriteString("\truntime: [")
	for i, p := range r.SystemPackages.Runtime {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%q", p)
	}
	sb.WriteString("]\n")
	sb.WriteString("\tbuild: [")
	for i, p := range r.SystemPackages.Build {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%q", p)
	}
	sb.WriteString("]\n")
	sb.WriteString("}\n")

	return sb.String()
}

// Scaffold returns the recipe written by 'kiln init': the classic
// venv-on-alpine web service layout with Postgres client libraries and
// media/static volumes.
func Scaffold() *Recipe {
	r := &Recipe{
		Name:        "web",
		BaseImage:   "python:3.9-alpine3.13",
		ServiceUser: "django-user",
	}
	r.applyDefaults()
	return r
}
