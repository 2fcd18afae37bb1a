// SPDX-License-Identifier: MPL-2.0

package bake

import (
	"path/filepath"
	"testing"
	"time"
)

func TestReceipt_WriteRead(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), DefaultReceiptName)
	in := &Receipt{
		Image:           "web:abc123def456",
		CacheKey:        "abc123def456",
		BaseImage:       "python:3.9-alpine3.13",
		Engine:          "podman",
		BakedAt:         time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC),
		Port:            8000,
		ServiceUser:     "django-user",
		Entrypoint:      "run.sh",
		Requirements:    []string{"Django>=3.2.4,<3.3"},
		RuntimePackages: []string{"postgresql-client"},
	}

	if err := WriteReceipt(path, in); err != nil {
		t.Fatalf("WriteReceipt failed: %v", err)
	}

	out, err := ReadReceipt(path)
	if err != nil {
		t.Fatalf("ReadReceipt failed: %v", err)
	}
	if out.Image != in.Image || out.Engine != in.Engine || out.Port != in.Port {
		t.Errorf("round trip mismatch: %+v", out)
	}
	if !out.BakedAt.Equal(in.BakedAt) {
		t.Errorf("BakedAt = %v", out.BakedAt)
	}
	if len(out.Requirements) != 1 || out.Requirements[0] != "Django>=3.2.4,<3.3" {
		t.Errorf("Requirements = %v", out.Requirements)
	}
}

func TestReadReceipt_Missing(t *testing.T) {
	t.Parallel()

	if _, err := ReadReceipt(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("expected error for missing receipt")
	}
}
