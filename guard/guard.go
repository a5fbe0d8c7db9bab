// Package guard validates caller-supplied file paths and identifiers before
// they reach the filesystem, the database or the logs.
package guard

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// MaxIdentifierLen bounds identifiers accepted from callers.
const MaxIdentifierLen = 128

var (
	ErrPathTraversal     = errors.New("guard: path escapes its root")
	ErrInvalidIdentifier = errors.New("guard: invalid identifier")
)

// ResolvePath returns the cleaned absolute form of input, which must lie
// inside root. Relative inputs are taken relative to root. An empty root
// disables confinement and only cleans input.
func ResolvePath(root, input string) (string, error) {
	if root == "" {
		return filepath.Clean(input), nil
	}
	base, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("guard: root %q: %w", root, err)
	}
	p := input
	if !filepath.IsAbs(p) {
		p = filepath.Join(base, p)
	}
	p = filepath.Clean(p)

	rel, err := filepath.Rel(base, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, input)
	}
	return p, nil
}

// ValidateIdentifier accepts non-empty ASCII letters, digits, underscore,
// hyphen and dot, up to MaxIdentifierLen bytes.
func ValidateIdentifier(s string) error {
	if s == "" {
		return fmt.Errorf("%w: empty", ErrInvalidIdentifier)
	}
	if len(s) > MaxIdentifierLen {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidIdentifier, MaxIdentifierLen)
	}
	for _, r := range s {
		if !isIdentChar(r) {
			return fmt.Errorf("%w: character %q", ErrInvalidIdentifier, r)
		}
	}
	return nil
}

func isIdentChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r == '_' || r == '-' || r == '.'
}
