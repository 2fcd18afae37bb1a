// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"kiln/internal/bake"
	"kiln/internal/container"
	"kiln/internal/issue"
)

var (
	bakeForce     bool
	bakeNoCache   bool
	bakeTagPrefix string
)

var bakeCmd = &cobra.Command{
	Use:   "bake",
	Short: "Build the service image described by the recipe",
	Long: "Validates the provisioning plan, renders it to a Dockerfile, and\n" +
		"builds the image with the configured container engine. Identical\n" +
		"inputs reuse the existing image unless --force is given.",
	RunE: runBake,
}

func init() {
	bakeCmd.Flags().BoolVar(&bakeForce, "force", false,
		"rebuild even when an image for these inputs already exists")
	bakeCmd.Flags().BoolVar(&bakeNoCache, "no-cache", false,
		"disable the engine's layer cache")
	bakeCmd.Flags().StringVar(&bakeTagPrefix, "tag-prefix", "",
		"prefix for the image tag (e.g. registry.example.com/team/)")
}

func runBake(cmd *cobra.Command, args []string) error {
	recipe, err := loadRecipe()
	if err != nil {
		return err
	}

	engine, err := resolveEngine()
	if err != nil {
		return err
	}

	tagPrefix := cfg.Bake.TagPrefix
	if bakeTagPrefix != "" {
		tagPrefix = bakeTagPrefix
	}

	opts := []bake.Option{
		bake.WithForceRebuild(bakeForce),
		bake.WithNoCache(bakeNoCache || cfg.Bake.NoCache),
		bake.WithTagPrefix(tagPrefix),
		bake.WithReceiptName(cfg.Bake.ReceiptName),
		bake.WithLogger(slog.Default()),
	}
	if verbose {
		opts = append(opts, bake.WithOutput(os.Stderr))
	}

	baker := bake.NewBaker(engine, opts...)
	result, err := baker.Bake(cmd.Context(), recipe)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if rendered, rerr := issue.Lookup(issue.ManifestNotFoundId).Render("auto"); rerr == nil {
				fmt.Fprint(os.Stderr, rendered)
			}
		}
		return reportError(err)
	}

	if result.Cached {
		fmt.Println(SuccessStyle.Render("✓ Image up to date: ") + CmdStyle.Render(string(result.Image)))
	} else {
		fmt.Println(SuccessStyle.Render("✓ Baked ") + CmdStyle.Render(string(result.Image)))
	}
	if result.ReceiptPath != "" {
		fmt.Println(SubtitleStyle.Render("  receipt: " + result.ReceiptPath))
	}

	return nil
}

// resolveEngine creates the configured container engine, rendering the
// registered help text when neither docker nor podman is usable.
func resolveEngine() (container.Engine, error) {
	engine, err := container.NewEngine(container.EngineType(cfg.ContainerEngine))
	if err != nil {
		var notAvail *container.ErrEngineNotAvailable
		if errors.As(err, &notAvail) {
			if rendered, rerr := issue.Lookup(issue.ContainerEngineNotFoundId).Render("auto"); rerr == nil {
				fmt.Fprint(os.Stderr, rendered)
			}
			return nil, &ExitError{Code: 1, Err: err}
		}
		return nil, reportError(err)
	}
	slog.Debug("container engine selected", "engine", engine.Name())
	return engine, nil
}
