// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"kiln/internal/pipeline"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the validated provisioning plan for the recipe",
	Long: "Builds the provisioning plan from the recipe and replays every step\n" +
		"against a simulated image, failing at the first step whose\n" +
		"preconditions do not hold.",
	RunE: runPlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
	recipe, err := loadRecipe()
	if err != nil {
		return err
	}

	plan := pipeline.FromRecipe(recipe)
	if _, err := plan.Validate(); err != nil {
		var stepErr *pipeline.StepError
		if errors.As(err, &stepErr) {
			fmt.Println(ErrorStyle.Render("✗ Plan invalid"))
			for i, step := range plan.Steps {
				marker := "  "
				if i == stepErr.Index {
					marker = ErrorStyle.Render("✗ ")
				}
				fmt.Printf("%s%2d. %s\n", marker, i+1, step.Name())
				if i == stepErr.Index {
					fmt.Println("      " + ErrorStyle.Render(stepErr.Err.Error()))
					break
				}
			}
		}
		return reportError(err)
	}

	fmt.Println(TitleStyle.Render("Provisioning plan") +
		SubtitleStyle.Render(" ("+plan.BaseImage+")"))
	for i, step := range plan.Steps {
		privilege := " "
		if !step.RequiresPrivilege() {
			privilege = SubtitleStyle.Render("u")
		}
		fmt.Printf(" %2d. %s %s\n", i+1, privilege, step.Name())
	}
	fmt.Println(SuccessStyle.Render("✓ Plan valid"))

	return nil
}
