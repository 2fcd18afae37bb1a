// SPDX-License-Identifier: MPL-2.0

package config

import "kiln/internal/bake"

type (
	// UIConfig controls terminal output.
	UIConfig struct {
		// ColorScheme is "auto", "dark", or "light".
		ColorScheme string `mapstructure:"color_scheme"`
		// Verbose enables debug logging.
		Verbose bool `mapstructure:"verbose"`
	}

	// BakeConfig carries defaults for bake runs, overridable per invocation
	// by command flags.
	BakeConfig struct {
		// TagPrefix is prepended to baked image names.
		TagPrefix string `mapstructure:"tag_prefix"`
		// ReceiptName is the receipt file written next to the recipe.
		ReceiptName string `mapstructure:"receipt_name"`
		// NoCache disables the engine's layer cache.
		NoCache bool `mapstructure:"no_cache"`
	}

	// Config is the kiln tool configuration.
	Config struct {
		// ContainerEngine is the preferred engine ("podman" or "docker").
		ContainerEngine string     `mapstructure:"container_engine"`
		UI              UIConfig   `mapstructure:"ui"`
		Bake            BakeConfig `mapstructure:"bake"`
	}
)

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		ContainerEngine: "podman",
		UI: UIConfig{
			ColorScheme: "auto",
		},
		Bake: BakeConfig{
			ReceiptName: bake.DefaultReceiptName,
		},
	}
}
