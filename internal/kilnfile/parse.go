// SPDX-License-Identifier: MPL-2.0

package kilnfile

import (
	_ "embed"
	"fmt"
	"os"

	"kiln/internal/cueutil"
)

//go:embed kilnfile_schema.cue
var recipeSchema string

// Parse reads and parses a kilnfile from the given path.
func Parse(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read kilnfile at %s: %w", path, err)
	}
	return ParseBytes(data, path)
}

// ParseBytes parses kilnfile content from bytes. The path is used for error
// messages and recorded on the returned Recipe.
func ParseBytes(data []byte, path string) (*Recipe, error) {
	result, err := cueutil.ParseAndDecode[Recipe](
		recipeSchema,
		data,
		"#Recipe",
		cueutil.WithFilename(path),
		cueutil.WithConcrete(false),
	)
	if err != nil {
		return nil, err
	}

	recipe := result.Value
	recipe.FilePath = path
	recipe.applyDefaults()

	if err := recipe.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return recipe, nil
}
