// SPDX-License-Identifier: MPL-2.0

package bake

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Receipt records what a bake produced. It is written next to the recipe so
// later runs (and operators) can see exactly which inputs went into the tag.
type Receipt struct {
	Image       string    `toml:"image"`
	CacheKey    string    `toml:"cache_key"`
	BaseImage   string    `toml:"base_image"`
	Engine      string    `toml:"engine"`
	BakedAt     time.Time `toml:"baked_at"`
	Port        int       `toml:"port"`
	ServiceUser string    `toml:"service_user"`
	Entrypoint  string    `toml:"entrypoint"`

	// Requirements are the manifest lines that were installed.
	Requirements []string `toml:"requirements,omitempty"`

	// RuntimePackages are the system packages kept in the final image.
	RuntimePackages []string `toml:"runtime_packages,omitempty"`
}

// WriteReceipt marshals the receipt as TOML to the given path.
func WriteReceipt(path string, r *Receipt) error {
	data, err := toml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal receipt: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write receipt to %s: %w", path, err)
	}
	return nil
}

// ReadReceipt loads a receipt written by a previous bake.
func ReadReceipt(path string) (*Receipt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read receipt at %s: %w", path, err)
	}
	var r Receipt
	if err := toml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse receipt at %s: %w", path, err)
	}
	return &r, nil
}
