// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"kiln/internal/container"
)

var enginesCmd = &cobra.Command{
	Use:   "engines",
	Short: "List the container engines kiln can use",
	RunE:  runEngines,
}

func runEngines(cmd *cobra.Command, args []string) error {
	engines := []container.Engine{
		container.NewPodmanEngine(),
		container.NewDockerEngine(),
	}

	anyAvailable := false
	for _, engine := range engines {
		if !engine.Available() {
			fmt.Println("  " + SubtitleStyle.Render("✗ "+engine.Name()+" (not available)"))
			continue
		}
		anyAvailable = true

		version, err := engine.Version(cmd.Context())
		if err != nil {
			version = "unknown version"
		}
		marker := "  " + SuccessStyle.Render("✓ ")
		selected := ""
		if engine.Name() == cfg.ContainerEngine {
			selected = SubtitleStyle.Render("  (configured)")
		}
		fmt.Println(marker + engine.Name() + " " + version + selected)
	}

	if !anyAvailable {
		return &ExitError{Code: 1, Err: fmt.Errorf("no container engine available")}
	}
	return nil
}
