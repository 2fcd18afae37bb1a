// SPDX-License-Identifier: MPL-2.0

package bake

import (
	"io"
	"log/slog"
)

// DefaultReceiptName is the receipt file written next to the recipe.
const DefaultReceiptName = "kiln-receipt.toml"

type (
	// Config controls a bake run.
	Config struct {
		// ContextDir is the build context root. Empty means the directory
		// of the recipe file.
		ContextDir string
		// ForceRebuild builds even when the cache key already has an image.
		ForceRebuild bool
		// NoCache disables the engine's layer cache.
		NoCache bool
		// TagPrefix is prepended to the image name (registry or namespace).
		TagPrefix string
		// ReceiptName is the receipt file name, written into ContextDir.
		// Empty disables the receipt.
		ReceiptName string
		// Output receives engine build output.
		Output io.Writer
		// Logger receives progress events.
		Logger *slog.Logger
	}

	// Option configures a Baker.
	Option func(*Config)
)

// WithContextDir overrides the build context root.
func WithContextDir(dir string) Option {
	return func(c *Config) { c.ContextDir = dir }
}

// WithForceRebuild builds even on a cache hit.
func WithForceRebuild(force bool) Option {
	return func(c *Config) { c.ForceRebuild = force }
}

// WithNoCache disables the engine's layer cache.
func WithNoCache(noCache bool) Option {
	return func(c *Config) { c.NoCache = noCache }
}

// WithTagPrefix prepends a registry or namespace prefix to the image name.
func WithTagPrefix(prefix string) Option {
	return func(c *Config) { c.TagPrefix = prefix }
}

// WithReceiptName overrides the receipt file name. Empty disables the receipt.
func WithReceiptName(name string) Option {
	return func(c *Config) { c.ReceiptName = name }
}

// WithOutput directs engine build output.
func WithOutput(w io.Writer) Option {
	return func(c *Config) { c.Output = w }
}

// WithLogger sets the progress logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

func defaultConfig() Config {
	return Config{
		ReceiptName: DefaultReceiptName,
		Output:      io.Discard,
		Logger:      slog.Default(),
	}
}
