// Package idgen generates the identifiers used for jobs, ledger movements,
// request traces and upload temp files.
package idgen

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// NanoID returns a Generator of base-36 IDs of the given length.
func NanoID(length int) Generator {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	return func() string {
		buf := make([]byte, length)
		if _, err := rand.Read(buf); err != nil {
			panic("idgen: crypto/rand failed: " + err.Error())
		}
		for i := range buf {
			buf[i] = alphabet[int(buf[i])%len(alphabet)]
		}
		return string(buf)
	}
}

// UUIDv7 returns a Generator of time-sortable RFC 9562 UUIDs.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed prepends prefix to every ID produced by gen.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default is UUIDv7. Typed IDs compose on top of it with Prefixed.
var Default Generator = UUIDv7()

// Typed generators.
var (
	Job      = Prefixed("job_", Default)
	Movement = Prefixed("mov_", Default)
	Trace    = Prefixed("trc_", NanoID(16))
	Upload   = Prefixed("upl_", NanoID(12))
)

// Parse validates a bare or prefixed UUID and returns it unchanged.
func Parse(s string) (string, error) {
	raw := s
	if i := strings.IndexByte(s, '_'); i >= 0 {
		raw = s[i+1:]
	}
	if _, err := uuid.Parse(raw); err != nil {
		return "", fmt.Errorf("invalid id %q: %w", s, err)
	}
	return s, nil
}
