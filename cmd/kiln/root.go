// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"kiln/internal/config"
	"kiln/internal/issue"
	"kiln/internal/kilnfile"
)

// Version information (set via ldflags during build).
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

var (
	verbose    bool
	cfgFile    string
	recipePath string

	// cfg is the loaded tool configuration, populated before any RunE fires.
	cfg = config.DefaultConfig()
)

var rootCmd = &cobra.Command{
	Use:   "kiln",
	Short: "Bake least-privilege service images from a typed recipe",
	Long: TitleStyle.Render("kiln") + "\n" +
		SubtitleStyle.Render("Turns a CUE recipe into a provisioning plan, renders it to a\nDockerfile, bakes the image with Docker or Podman, and verifies\nthe result actually honors the recipe's promises."),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initRootConfig)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"enable verbose output")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"path to the kiln config file")
	rootCmd.PersistentFlags().StringVarP(&recipePath, "file", "f", "",
		"path to the recipe (default \""+kilnfile.DefaultFileName+"\")")

	rootCmd.AddCommand(bakeCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(enginesCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(initCmd)
}

// initRootConfig loads the tool configuration and wires the global logger.
// Flags win over the file, the file wins over defaults.
func initRootConfig() {
	loaded, _, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: ")+formatErrorForDisplay(err))
		os.Exit(1)
	}
	cfg = loaded

	if cfg.UI.Verbose {
		verbose = true
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "kiln"})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	} else {
		logger.SetLevel(log.WarnLevel)
	}
	slog.SetDefault(slog.New(logger))
}

// Execute runs the root command.
func Execute() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// formatErrorForDisplay renders actionable errors with their suggestions,
// expanding the cause chain when verbose is on.
func formatErrorForDisplay(err error) string {
	var actionable *issue.ActionableError
	if errors.As(err, &actionable) {
		return actionable.Format(verbose)
	}
	return err.Error()
}

// loadRecipe parses the recipe named by --file, or the default file name in
// the current directory. A missing file renders the registered help text.
func loadRecipe() (*kilnfile.Recipe, error) {
	path := recipePath
	if path == "" {
		path = kilnfile.DefaultFileName
	}

	recipe, err := kilnfile.Parse(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if rendered, rerr := issue.Lookup(issue.KilnfileNotFoundId).Render("auto"); rerr == nil {
				fmt.Fprint(os.Stderr, rendered)
			}
			return nil, &ExitError{Code: 1, Err: err}
		}
		return nil, err
	}
	return recipe, nil
}

// reportError converts an error into an ExitError carrying the formatted
// message, so suggestions survive fang's error rendering.
func reportError(err error) error {
	return &ExitError{Code: 1, Err: errors.New(formatErrorForDisplay(err))}
}
