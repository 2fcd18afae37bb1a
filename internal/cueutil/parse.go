// SPDX-License-Identifier: MPL-2.0

// Package cueutil wraps the CUE toolchain with the parsing flow shared by the
// kilnfile and config loaders: compile an embedded schema, compile the user's
// file, unify, validate, and decode into a Go struct.
package cueutil

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// MaxFileSize is the maximum accepted size for a CUE input file (1MB).
// Recipes and config files are tiny; anything bigger is a mistake.
const MaxFileSize int64 = 1 << 20

type (
	// ParseResult contains the outcome of a successful parse.
	ParseResult[T any] struct {
		// Value is the decoded Go struct.
		Value *T

		// Unified is the unified CUE value, for callers that need extra
		// lookups beyond the decoded struct.
		Unified cue.Value
	}

	parseOptions struct {
		concrete bool
		filename string
	}

	// Option configures parsing behavior.
	Option func(*parseOptions)
)

// WithFilename sets the filename used in error messages.
func WithFilename(name string) Option {
	return func(o *parseOptions) {
		o.filename = name
	}
}

// WithConcrete controls whether all values must be concrete after
// unification. Defaults to true; config files with optional fields set false.
func WithConcrete(concrete bool) Option {
	return func(o *parseOptions) {
		o.concrete = concrete
	}
}

// ParseAndDecode validates data against the schema definition at schemaPath
// (e.g. "#Recipe") and decodes the unified value into T.
func ParseAndDecode[T any](schema string, data []byte, schemaPath string, opts ...Option) (*ParseResult[T], error) {
	options := parseOptions{concrete: true, filename: "<input>"}
	for _, opt := range opts {
		opt(&options)
	}

	if err := CheckFileSize(data, MaxFileSize, options.filename); err != nil {
		return nil, err
	}

	ctx := cuecontext.New()

	schemaValue := ctx.CompileString(schema)
	if schemaValue.Err() != nil {
		return nil, fmt.Errorf("internal error: failed to compile schema: %w", schemaValue.Err())
	}

	userValue := ctx.CompileBytes(data, cue.Filename(options.filename))
	if userValue.Err() != nil {
		return nil, FormatError(userValue.Err(), options.filename)
	}

	schemaRoot := schemaValue.LookupPath(cue.ParsePath(schemaPath))
	if schemaRoot.Err() != nil {
		return nil, fmt.Errorf("internal error: schema definition %s not found: %w", schemaPath, schemaRoot.Err())
	}

	unified := schemaRoot.Unify(userValue)

	if err := unified.Validate(cue.Concrete(options.concrete)); err != nil {
		return nil, FormatError(err, options.filename)
	}

	var result T
	if err := unified.Decode(&result); err != nil {
		return nil, FormatError(err, options.filename)
	}

	return &ParseResult[T]{Value: &result, Unified: unified}, nil
}

// CheckFileSize rejects inputs larger than maxSize.
func CheckFileSize(data []byte, maxSize int64, filename string) error {
	if int64(len(data)) > maxSize {
		return fmt.Errorf("%s: file size %d bytes exceeds maximum %d bytes",
			filename, len(data), maxSize)
	}
	return nil
}
