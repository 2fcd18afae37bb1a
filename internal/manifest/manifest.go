// SPDX-License-Identifier: MPL-2.0

// Package manifest reads the dependency manifest consumed once at bake time.
//
// The manifest is a requirements-style text file: one package per line, an
// optional version constraint glued to the name, '#' comments, blank lines
// ignored. Order is preserved because installers resolve in declaration order.
package manifest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrMalformedManifest is the sentinel error wrapped by MalformedLineError.
var ErrMalformedManifest = errors.New("malformed manifest")

type (
	// Requirement is one (package, version constraint) entry.
	Requirement struct {
		// Name is the package name, e.g. "Django".
		Name string
		// Constraint is the raw version constraint, e.g. ">=3.2.4,<3.3".
		// Empty means any version.
		Constraint string
	}

	// Manifest is the ordered list of requirements read from one file.
	Manifest struct {
		// Path is where the manifest was read from.
		Path string
		// Requirements preserves file order.
		Requirements []Requirement
	}

	// MalformedLineError reports a line that is not a valid requirement.
	MalformedLineError struct {
		Path string
		Line int
		Text string
	}
)

// Error implements the error interface.
func (e *MalformedLineError) Error() string {
	return fmt.Sprintf("%s:%d: malformed requirement %q", e.Path, e.Line, e.Text)
}

// Unwrap returns ErrMalformedManifest so callers can use errors.Is.
func (e *MalformedLineError) Unwrap() error { return ErrMalformedManifest }

// constraintOps are the operators that may introduce a version constraint.
// Two-character operators must be checked before their one-character prefixes.
var constraintOps = []string{"==", ">=", "<=", "!=", "~=", ">", "<"}

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest at %s: %w", path, err)
	}
	defer func() { _ = f.Close() }() // Read-only file; close error non-critical

	return Parse(f, path)
}

// Parse parses manifest content from r. The path is used in error messages.
func Parse(r io.Reader, path string) (*Manifest, error) {
	m := &Manifest{Path: path}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		// Strip trailing comments, then surrounding whitespace.
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		req, err := parseLine(line)
		if err != nil {
			return nil, &MalformedLineError{Path: path, Line: lineNo, Text: line}
		}
		m.Requirements = append(m.Requirements, req)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read manifest at %s: %w", path, err)
	}

	return m, nil
}

// parseLine splits a requirement line into name and constraint.
func parseLine(line string) (Requirement, error) {
	opIdx := -1
	opLen := 0
	for _, op := range constraintOps {
		if idx := strings.Index(line, op); idx >= 0 && (opIdx < 0 || idx < opIdx) {
			opIdx = idx
			opLen = len(op)
		}
	}

	if opIdx < 0 {
		if !validName(line) {
			return Requirement{}, ErrMalformedManifest
		}
		return Requirement{Name: line}, nil
	}

	name := strings.TrimSpace(line[:opIdx])
	constraint := strings.TrimSpace(line[opIdx:])
	if !validName(name) || len(constraint) <= opLen-1 {
		return Requirement{}, ErrMalformedManifest
	}
	if strings.TrimSpace(constraint[opLen:]) == "" {
		return Requirement{}, ErrMalformedManifest
	}

	return Requirement{Name: name, Constraint: constraint}, nil
}

// validName accepts PEP-508-ish package names: letters, digits, and
// separators ('-', '_', '.'), plus an optional [extras] suffix.
func validName(name string) bool {
	if name == "" {
		return false
	}
	base := name
	if idx := strings.Index(name, "["); idx >= 0 {
		if !strings.HasSuffix(name, "]") || idx == 0 {
			return false
		}
		base = name[:idx]
	}
	for _, c := range base {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == '.':
		default:
			return false
		}
	}
	return true
}

// Names returns the package names in declaration order.
func (m *Manifest) Names() []string {
	names := make([]string, len(m.Requirements))
	for i, r := range m.Requirements {
		names[i] = r.Name
	}
	return names
}

// String renders the requirement in manifest syntax.
func (r Requirement) String() string {
	return r.Name + r.Constraint
}
