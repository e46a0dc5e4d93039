// Package token mints and checks guest access tokens.
//
// A token is a random version 4 UUID in canonical form. Anyone holding it can
// view and change the matching guest's answers, so it must not be logged.
package token

import (
	"regexp"

	"github.com/google/uuid"
)

var canonical = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

// New returns a fresh random token
func New() string {
	return uuid.NewString()
}

// Valid reports whether s has the canonical token shape
func Valid(s string) bool {
	return canonical.MatchString(s)
}
