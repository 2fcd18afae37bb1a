// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"kiln/internal/bake"
	"kiln/internal/container"
	"kiln/internal/verify"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [image]",
	Short: "Probe a baked image against the recipe's promises",
	Long: "Runs throwaway containers against the image to confirm it behaves as\n" +
		"baked: unprivileged service account, purged build toolchain, volume\n" +
		"ownership, a working runtime environment, and a resolvable\n" +
		"entrypoint. Without an argument the image comes from the bake receipt.",
	Args: cobra.MaximumNArgs(1),
	RunE: runVerify,
}

func runVerify(cmd *cobra.Command, args []string) error {
	recipe, err := loadRecipe()
	if err != nil {
		return err
	}

	var image container.ImageTag
	var extraChecks []verify.Check
	if len(args) == 1 {
		image = container.ImageTag(args[0])
	} else {
		receiptPath := filepath.Join(filepath.Dir(recipe.FilePath), cfg.Bake.ReceiptName)
		receipt, err := bake.ReadReceipt(receiptPath)
		if err != nil {
			return reportError(fmt.Errorf("no image given and no bake receipt at %s: %w (run 'kiln bake' first)", receiptPath, err))
		}
		image = container.ImageTag(receipt.Image)
		if len(receipt.Requirements) > 0 {
			extraChecks = append(extraChecks, verify.RequirementsCheck(recipe, receipt.Requirements))
		}
	}
	if err := image.Validate(); err != nil {
		return reportError(err)
	}

	engine, err := resolveEngine()
	if err != nil {
		return err
	}

	report, err := verify.Run(cmd.Context(), engine, image, recipe, extraChecks...)
	if err != nil {
		return reportError(err)
	}

	fmt.Println(TitleStyle.Render("Verification: ") + CmdStyle.Render(string(image)))
	for _, res := range report.Results {
		if res.Passed {
			fmt.Println("  " + SuccessStyle.Render("✓ ") + res.Name)
		} else {
			fmt.Println("  " + ErrorStyle.Render("✗ ") + res.Name)
			fmt.Println("      " + WarningStyle.Render(res.Detail))
		}
	}

	if !report.Passed() {
		return &ExitError{Code: 1, Err: report.Err()}
	}
	fmt.Println(SuccessStyle.Render("✓ All checks passed"))
	return nil
}
