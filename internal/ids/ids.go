// Package ids mints identifiers for database rows.
package ids

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

var entropy = &ulid.LockedMonotonicReader{
	MonotonicReader: ulid.Monotonic(rand.Reader, 0),
}

// New returns a lexicographically sortable identifier. Used as the primary
// key for users and directory rows so inserts stay index-friendly.
func New() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Valid reports whether s parses as an identifier produced by New.
func Valid(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
