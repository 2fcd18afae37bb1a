// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"kiln/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and manage the kiln configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as CUE",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration to the config directory",
	RunE:  runConfigInit,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	loaded, path, err := config.Load(cfgFile)
	if err != nil {
		return reportError(err)
	}

	if path == "" {
		fmt.Println(SubtitleStyle.Render("// no config file found, showing defaults"))
	} else {
		fmt.Println(SubtitleStyle.Render("// loaded from " + path))
	}
	fmt.Print(config.GenerateCUE(loaded))
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfgDir, err := config.ConfigDir()
	if err != nil {
		return reportError(err)
	}
	cfgPath := filepath.Join(cfgDir, config.ConfigFileName+"."+config.ConfigFileExt)

	if _, err := os.Stat(cfgPath); err == nil {
		return reportError(fmt.Errorf("config file already exists: %s", cfgPath))
	}

	if err := config.Save(config.DefaultConfig()); err != nil {
		return reportError(err)
	}

	fmt.Println(SuccessStyle.Render("✓ Wrote ") + CmdStyle.Render(cfgPath))
	return nil
}
