// Package docid generates and parses document identities.
package docid

import (
	"fmt"

	"github.com/google/uuid"
)

// New returns a fresh identity in canonical form.
func New() string {
	return uuid.NewString()
}

// Parse converts an identity string to canonical form. It accepts any
// representation uuid understands (mixed case, braced, urn), so
// equivalent spellings address the same document.
func Parse(s string) (string, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("docid: %q is not a valid identity: %w", s, err)
	}
	return id.String(), nil
}
