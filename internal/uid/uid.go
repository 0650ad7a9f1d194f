// Package uid generates the 128-bit row identity (_uid) every row carries,
// distinct from any user-declared primary key (spec.md §3).
package uid

import "github.com/google/uuid"

// Field is the reserved document field name that carries a row's identity.
const Field = "_uid"

// New returns a fresh 128-bit id rendered as text.
func New() string {
	return uuid.New().String()
}

// Valid reports whether s parses as a well-formed id.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
