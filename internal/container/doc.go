// SPDX-License-Identifier: EPL-2.0

// Package container abstracts the CLI container engines (Docker/Podman) that
// kiln drives to build and probe images.
package container
