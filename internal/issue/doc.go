// SPDX-License-Identifier: MPL-2.0

// Package issue provides user-facing error types for the kiln CLI.
//
// ActionableError carries the failed operation, the resource involved, and
// concrete suggestions for fixing the problem. Known, recurring failure modes
// (no container engine, missing kilnfile) additionally have registered Issue
// entries with markdown help text rendered via glamour.
package issue
