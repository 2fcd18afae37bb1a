// SPDX-License-Identifier: MPL-2.0

package bake

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kiln/internal/container"
	"kiln/internal/kilnfile"
	"kiln/internal/manifest"
)

// mockEngine is a scripted container.Engine for exercising the baker
// without a real engine.
type mockEngine struct {
	exists    bool
	existsErr error
	buildErr  error

	builds  []container.BuildOptions
	removed []container.ImageTag
}

func (m *mockEngine) Name() string    { return "mock" }
func (m *mockEngine) Available() bool { return true }

func (m *mockEngine) Version(context.Context) (string, error) { return "1.0.0", nil }

func (m *mockEngine) Build(_ context.Context, opts container.BuildOptions) error {
	m.builds = append(m.builds, opts)
	return m.buildErr
}

func (m *mockEngine) Run(_ context.Context, _ container.RunOptions) (*container.RunResult, error) {
	return &container.RunResult{}, nil
}

func (m *mockEngine) ImageExists(context.Context, container.ImageTag) (bool, error) {
	return m.exists, m.existsErr
}

func (m *mockEngine) RemoveImage(_ context.Context, image container.ImageTag, _ bool) error {
	m.removed = append(m.removed, image)
	return nil
}

// stageRecipe lays out a minimal build context and returns its parsed recipe.
func stageRecipe(t *testing.T) *kilnfile.Recipe {
	t.Helper()

	dir := t.TempDir()
	files := map[string]string{
		"kilnfile.cue":     `base_image: "python:3.9-alpine3.13"`,
		"requirements.txt": "Django>=3.2.4,<3.3\npsycopg2>=2.8.6,<2.9\n",
		"scripts/run.sh":   "#!/bin/sh\nexec gunicorn app.wsgi\n",
		"app/manage.py":    "print('hi')\n",
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("failed to create %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}

	recipe, err := kilnfile.Parse(filepath.Join(dir, "kilnfile.cue"))
	if err != nil {
		t.Fatalf("failed to parse recipe: %v", err)
	}
	return recipe
}

func TestBake_BuildsAndWritesReceipt(t *testing.T) {
	t.Parallel()

	engine := &mockEngine{}
	recipe := stageRecipe(t)

	result, err := NewBaker(engine).Bake(context.Background(), recipe)
	if err != nil {
		t.Fatalf("Bake failed: %v", err)
	}

	if result.Cached {
		t.Error("fresh bake should not be cached")
	}
	if !strings.HasPrefix(string(result.Image), "kiln:") {
		t.Errorf("Image = %q", result.Image)
	}
	if len(result.CacheKey) != 64 {
		t.Errorf("CacheKey length = %d", len(result.CacheKey))
	}
	if !strings.HasSuffix(string(result.Image), result.CacheKey[:12]) {
		t.Errorf("tag %q does not carry cache key %q", result.Image, result.CacheKey[:12])
	}

	if len(engine.builds) != 1 {
		t.Fatalf("expected one build, got %d", len(engine.builds))
	}
	build := engine.builds[0]
	if build.Tag != result.Image {
		t.Errorf("built tag %q, want %q", build.Tag, result.Image)
	}
	if build.Dockerfile != "Dockerfile" {
		t.Errorf("Dockerfile = %q", build.Dockerfile)
	}

	receipt, err := ReadReceipt(result.ReceiptPath)
	if err != nil {
		t.Fatalf("failed to read receipt: %v", err)
	}
	if receipt.Image != string(result.Image) {
		t.Errorf("receipt image = %q", receipt.Image)
	}
	if receipt.Engine != "mock" {
		t.Errorf("receipt engine = %q", receipt.Engine)
	}
	if receipt.ServiceUser != "app-user" || receipt.Port != 8000 {
		t.Errorf("receipt = %+v", receipt)
	}
	if len(receipt.Requirements) != 2 || !strings.HasPrefix(receipt.Requirements[0], "Django") {
		t.Errorf("receipt requirements = %v", receipt.Requirements)
	}
}

func TestBake_CacheHitSkipsBuild(t *testing.T) {
	t.Parallel()

	engine := &mockEngine{exists: true}
	recipe := stageRecipe(t)

	result, err := NewBaker(engine).Bake(context.Background(), recipe)
	if err != nil {
		t.Fatalf("Bake failed: %v", err)
	}

	if !result.Cached {
		t.Error("expected cache hit")
	}
	if len(engine.builds) != 0 {
		t.Errorf("cache hit should not build, got %d builds", len(engine.builds))
	}
	if result.ReceiptPath != "" {
		t.Errorf("cache hit should not rewrite the receipt, got %q", result.ReceiptPath)
	}
}

func TestBake_ForceRebuild(t *testing.T) {
	t.Parallel()

	engine := &mockEngine{exists: true}
	recipe := stageRecipe(t)

	result, err := NewBaker(engine, WithForceRebuild(true)).Bake(context.Background(), recipe)
	if err != nil {
		t.Fatalf("Bake failed: %v", err)
	}

	if result.Cached {
		t.Error("forced rebuild must not report cached")
	}
	if len(engine.builds) != 1 {
		t.Errorf("expected one build, got %d", len(engine.builds))
	}
}

func TestBake_NoCachePropagates(t *testing.T) {
	t.Parallel()

	engine := &mockEngine{}
	recipe := stageRecipe(t)

	if _, err := NewBaker(engine, WithNoCache(true)).Bake(context.Background(), recipe); err != nil {
		t.Fatalf("Bake failed: %v", err)
	}
	if !engine.builds[0].NoCache {
		t.Error("NoCache not passed to engine")
	}
}

func TestBake_MalformedManifestFailsBeforeEngine(t *testing.T) {
	t.Parallel()

	engine := &mockEngine{}
	recipe := stageRecipe(t)
	dir := filepath.Dir(recipe.FilePath)
	if err := os.WriteFile(filepath.Join(dir, "requirements.txt"), []byte("not a valid line!!\n"), 0o644); err != nil {
		t.Fatalf("failed to rewrite manifest: %v", err)
	}

	_, err := NewBaker(engine).Bake(context.Background(), recipe)
	if !errors.Is(err, manifest.ErrMalformedManifest) {
		t.Fatalf("expected ErrMalformedManifest, got %v", err)
	}
	if len(engine.builds) != 0 {
		t.Error("engine should not be touched on manifest errors")
	}
}

func TestBake_BuildFailureLeavesNoReceipt(t *testing.T) {
	t.Parallel()

	engine := &mockEngine{buildErr: errors.New("boom")}
	recipe := stageRecipe(t)

	_, err := NewBaker(engine).Bake(context.Background(), recipe)
	if err == nil {
		t.Fatal("expected build failure")
	}

	receiptPath := filepath.Join(filepath.Dir(recipe.FilePath), DefaultReceiptName)
	if _, statErr := os.Stat(receiptPath); !os.IsNotExist(statErr) {
		t.Errorf("receipt should not exist after failed build: %v", statErr)
	}
}

func TestBake_CacheKeyTracksInputs(t *testing.T) {
	t.Parallel()

	recipe := stageRecipe(t)

	first, err := NewBaker(&mockEngine{}).Bake(context.Background(), recipe)
	if err != nil {
		t.Fatalf("Bake failed: %v", err)
	}

	again, err := NewBaker(&mockEngine{}).Bake(context.Background(), recipe)
	if err != nil {
		t.Fatalf("Bake failed: %v", err)
	}
	if first.CacheKey != again.CacheKey {
		t.Error("identical inputs must produce identical cache keys")
	}

	appFile := filepath.Join(filepath.Dir(recipe.FilePath), "app", "manage.py")
	if err := os.WriteFile(appFile, []byte("print('changed')\n"), 0o644); err != nil {
		t.Fatalf("failed to modify app file: %v", err)
	}

	changed, err := NewBaker(&mockEngine{}).Bake(context.Background(), recipe)
	if err != nil {
		t.Fatalf("Bake failed: %v", err)
	}
	if changed.CacheKey == first.CacheKey {
		t.Error("modified app tree must change the cache key")
	}
}

func TestBake_TagPrefix(t *testing.T) {
	t.Parallel()

	engine := &mockEngine{}
	recipe := stageRecipe(t)

	result, err := NewBaker(engine, WithTagPrefix("registry.example.com/")).Bake(context.Background(), recipe)
	if err != nil {
		t.Fatalf("Bake failed: %v", err)
	}
	if !strings.HasPrefix(string(result.Image), "registry.example.com/kiln:") {
		t.Errorf("Image = %q", result.Image)
	}
}
