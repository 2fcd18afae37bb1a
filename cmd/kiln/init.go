// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"kiln/internal/kilnfile"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold a new recipe in the current directory",
	Long: "Writes a starter " + kilnfile.DefaultFileName + " plus the files it\n" +
		"references: a dependency manifest, an entrypoint script, and an\n" +
		"application directory. Existing files are never overwritten.",
	RunE: runInit,
}

const sampleManifest = `Django>=3.2.4,<3.3
psycopg2>=2.8.6,<2.9
`

const sampleRunScript = `#!/bin/sh
set -e

python manage.py collectstatic --noinput
python manage.py migrate

uwsgi --socket :8000 --workers 4 --master --enable-threads --module app.wsgi
`

func runInit(cmd *cobra.Command, args []string) error {
	recipe := kilnfile.Scaffold()

	if _, err := os.Stat(kilnfile.DefaultFileName); err == nil {
		return reportError(fmt.Errorf("%s already exists, refusing to overwrite", kilnfile.DefaultFileName))
	}
	if err := os.WriteFile(kilnfile.DefaultFileName, []byte(kilnfile.GenerateCUE(recipe)), 0o644); err != nil {
		return reportError(err)
	}
	fmt.Println(SuccessStyle.Render("✓ Wrote ") + CmdStyle.Render(kilnfile.DefaultFileName))

	if _, err := os.Stat(recipe.Manifest); os.IsNotExist(err) {
		if err := os.WriteFile(recipe.Manifest, []byte(sampleManifest), 0o644); err != nil {
			return reportError(err)
		}
		fmt.Println(SuccessStyle.Render("✓ Wrote ") + CmdStyle.Render(recipe.Manifest))
	}

	scriptPath := filepath.Join(recipe.ScriptsDir, recipe.Entrypoint)
	if _, err := os.Stat(scriptPath); os.IsNotExist(err) {
		if err := os.MkdirAll(recipe.ScriptsDir, 0o755); err != nil {
			return reportError(err)
		}
		if err := os.WriteFile(scriptPath, []byte(sampleRunScript), 0o755); err != nil {
			return reportError(err)
		}
		fmt.Println(SuccessStyle.Render("✓ Wrote ") + CmdStyle.Render(scriptPath))
	}

	if _, err := os.Stat(recipe.AppDir); os.IsNotExist(err) {
		if err := os.MkdirAll(recipe.AppDir, 0o755); err != nil {
			return reportError(err)
		}
		fmt.Println(SuccessStyle.Render("✓ Created ") + CmdStyle.Render(recipe.AppDir+"/"))
	}

	fmt.Println(SubtitleStyle.Render("\nNext: put your application under " +
		recipe.AppDir + "/ and run ") + CmdStyle.Render("kiln bake"))
	return nil
}
