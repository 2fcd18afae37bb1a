// SPDX-License-Identifier: MPL-2.0

// Package bake turns a parsed recipe into a tagged image: it validates the
// provisioning plan, renders the Dockerfile, computes a content-addressed
// cache key, and drives the container engine only when the key has no image
// yet.
package bake

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"kiln/internal/container"
	"kiln/internal/dockerfile"
	"kiln/internal/kilnfile"
	"kiln/internal/manifest"
	"kiln/internal/pipeline"
)

type (
	// Baker bakes recipes with a container engine.
	Baker struct {
		engine container.Engine
		cfg    Config
	}

	// Result describes a finished bake.
	Result struct {
		// Image is the tag of the baked (or cached) image.
		Image container.ImageTag
		// CacheKey is the full content hash of the bake inputs.
		CacheKey string
		// Dockerfile is the rendered Dockerfile text.
		Dockerfile string
		// Cached reports that the image already existed and no build ran.
		Cached bool
		// ReceiptPath is where the receipt was written ("" when disabled).
		ReceiptPath string
	}
)

// NewBaker creates a Baker on top of a container engine.
func NewBaker(engine container.Engine, opts ...Option) *Baker {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Baker{engine: engine, cfg: cfg}
}

// Bake builds the image described by the recipe. The manifest is parsed up
// front so a malformed requirement fails before any engine work, and the
// image is tagged "<name>:<cache-key-prefix>" from a hash of every bake
// input. An existing image for the same key short-circuits the build unless
// ForceRebuild is set.
func (b *Baker) Bake(ctx context.Context, recipe *kilnfile.Recipe) (*Result, error) {
	contextDir := b.cfg.ContextDir
	if contextDir == "" {
		contextDir = filepath.Dir(recipe.FilePath)
	}

	manifestPath := filepath.Join(contextDir, recipe.Manifest)
	mf, err := manifest.Load(manifestPath)
	if err != nil {
		return nil, err
	}

	plan := pipeline.FromRecipe(recipe)
	rendered, err := dockerfile.Render(plan)
	if err != nil {
		return nil, err
	}

	cacheKey, err := b.cacheKey(recipe, rendered, contextDir)
	if err != nil {
		return nil, err
	}

	tag := container.ImageTag(b.cfg.TagPrefix + recipe.Name + ":" + cacheKey[:12])
	if err := tag.Validate(); err != nil {
		return nil, err
	}

	result := &Result{
		Image:      tag,
		CacheKey:   cacheKey,
		Dockerfile: rendered,
	}

	if !b.cfg.ForceRebuild {
		exists, err := b.engine.ImageExists(ctx, tag)
		if err != nil {
			return nil, fmt.Errorf("failed to check image cache: %w", err)
		}
		if exists {
			b.cfg.Logger.Info("image up to date", "image", tag, "engine", b.engine.Name())
			result.Cached = true
			return result, nil
		}
	}

	buildDir, err := b.stageBuildContext(recipe, rendered, contextDir)
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.RemoveAll(buildDir) }()

	b.cfg.Logger.Info("baking image",
		"image", tag,
		"base", recipe.BaseImage,
		"engine", b.engine.Name())

	err = b.engine.Build(ctx, container.BuildOptions{
		ContextDir: buildDir,
		Dockerfile: "Dockerfile",
		Tag:        tag,
		NoCache:    b.cfg.NoCache,
		Stdout:     b.cfg.Output,
		Stderr:     b.cfg.Output,
	})
	if err != nil {
		return nil, err
	}

	if b.cfg.ReceiptName != "" {
		receiptPath := filepath.Join(contextDir, b.cfg.ReceiptName)
		if err := b.writeReceipt(receiptPath, recipe, mf, result); err != nil {
			return nil, err
		}
		result.ReceiptPath = receiptPath
	}

	return result, nil
}

// cacheKey hashes everything that determines the image contents: the
// rendered Dockerfile (which covers the recipe), the manifest file, and the
// copied directory trees.
func (b *Baker) cacheKey(recipe *kilnfile.Recipe, rendered, contextDir string) (string, error) {
	manifestHash, err := HashFile(filepath.Join(contextDir, recipe.Manifest))
	if err != nil {
		return "", fmt.Errorf("failed to hash manifest: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(rendered))
	h.Write([]byte(manifestHash))

	for _, dir := range []string{recipe.ScriptsDir, recipe.AppDir} {
		dirHash, err := HashDir(filepath.Join(contextDir, dir))
		if err != nil {
			return "", fmt.Errorf("failed to hash %s: %w", dir, err)
		}
		h.Write([]byte(dirHash))
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// stageBuildContext assembles a throwaway build context holding only the
// rendered Dockerfile and the trees the plan copies.
func (b *Baker) stageBuildContext(recipe *kilnfile.Recipe, rendered, contextDir string) (string, error) {
	buildDir, err := os.MkdirTemp("", "kiln-bake-*")
	if err != nil {
		return "", fmt.Errorf("failed to create build directory: %w", err)
	}

	cleanup := func(cause error) (string, error) {
		_ = os.RemoveAll(buildDir)
		return "", cause
	}

	if err := os.WriteFile(filepath.Join(buildDir, "Dockerfile"), []byte(rendered), 0o644); err != nil {
		return cleanup(fmt.Errorf("failed to write Dockerfile: %w", err))
	}

	manifestDst := filepath.Join(buildDir, recipe.Manifest)
	if err := os.MkdirAll(filepath.Dir(manifestDst), 0o755); err != nil {
		return cleanup(fmt.Errorf("failed to create manifest directory: %w", err))
	}
	if err := CopyFile(filepath.Join(contextDir, recipe.Manifest), manifestDst); err != nil {
		return cleanup(err)
	}

	for _, dir := range []string{recipe.ScriptsDir, recipe.AppDir} {
		if err := CopyDir(filepath.Join(contextDir, dir), filepath.Join(buildDir, dir)); err != nil {
			return cleanup(err)
		}
	}

	return buildDir, nil
}

func (b *Baker) writeReceipt(path string, recipe *kilnfile.Recipe, mf *manifest.Manifest, result *Result) error {
	requirements := make([]string, len(mf.Requirements))
	for i, req := range mf.Requirements {
		requirements[i] = req.String()
	}

	return WriteReceipt(path, &Receipt{
		Image:           string(result.Image),
		CacheKey:        result.CacheKey,
		BaseImage:       recipe.BaseImage,
		Engine:          b.engine.Name(),
		BakedAt:         time.Now().UTC(),
		Port:            recipe.Port,
		ServiceUser:     recipe.ServiceUser,
		Entrypoint:      recipe.Entrypoint,
		Requirements:    requirements,
		RuntimePackages: recipe.SystemPackages.Runtime,
	})
}
