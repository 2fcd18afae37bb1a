// SPDX-License-Identifier: MPL-2.0

package container

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidImageTag is the sentinel error wrapped by InvalidImageTagError.
	ErrInvalidImageTag = errors.New("invalid image tag")

	// ErrInvalidContextDir is the sentinel error wrapped by InvalidContextDirError.
	ErrInvalidContextDir = errors.New("invalid build context directory")
)

type (
	// ImageTag identifies a container image ("name:tag").
	// A valid tag is non-empty and contains no whitespace.
	ImageTag string

	// ExitCode is a container process exit status.
	ExitCode int

	// InvalidImageTagError is returned when an ImageTag is empty or contains
	// whitespace.
	InvalidImageTagError struct {
		Value ImageTag
	}

	// InvalidContextDirError is returned when a build context directory is
	// empty or whitespace-only.
	InvalidContextDirError struct {
		Value string
	}
)

// String returns the string representation of the ImageTag.
func (t ImageTag) String() string { return string(t) }

// Validate returns an error if the ImageTag is empty or contains whitespace.
func (t ImageTag) Validate() error {
	if t == "" || strings.ContainsAny(string(t), " \t\n") {
		return &InvalidImageTagError{Value: t}
	}
	return nil
}

// Success reports whether the exit code indicates success.
func (c ExitCode) Success() bool { return c == 0 }

// Error implements the error interface.
func (e *InvalidImageTagError) Error() string {
	return fmt.Sprintf("invalid image tag %q: must be non-empty without whitespace", e.Value)
}

// Unwrap returns ErrInvalidImageTag so callers can use errors.Is for programmatic detection.
func (e *InvalidImageTagError) Unwrap() error { return ErrInvalidImageTag }

// Error implements the error interface.
func (e *InvalidContextDirError) Error() string {
	return fmt.Sprintf("invalid build context directory %q", e.Value)
}

// Unwrap returns ErrInvalidContextDir so callers can use errors.Is for programmatic detection.
func (e *InvalidContextDirError) Unwrap() error { return ErrInvalidContextDir }
