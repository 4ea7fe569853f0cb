// Package uuid provides ID generation helpers.
package uuid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Generator creates UUID v7 based identifiers.
type Generator struct {
	short bool
}

// New returns a Generator producing full UUID7 strings.
func New() *Generator {
	return &Generator{}
}

// NewShort returns a Generator producing the random 12-hex tail of a UUID7,
// which keeps container names readable.
func NewShort() *Generator {
	return &Generator{short: true}
}

// NewID returns a new identifier.
func (g Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	s := id.String()
	if g.short {
		return s[strings.LastIndex(s, "-")+1:], nil
	}
	return s, nil
}
