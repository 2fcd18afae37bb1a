// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"kiln/internal/dockerfile"
	"kiln/internal/pipeline"
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Print the Dockerfile the recipe would bake with",
	RunE:  runRender,
}

func runRender(cmd *cobra.Command, args []string) error {
	recipe, err := loadRecipe()
	if err != nil {
		return err
	}

	rendered, err := dockerfile.Render(pipeline.FromRecipe(recipe))
	if err != nil {
		return reportError(err)
	}

	fmt.Print(rendered)
	return nil
}
