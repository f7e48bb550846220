// Package uuid generates audit identifiers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator implements audit.IDGenerator with UUIDv7, so ids sort by
// creation time and index well as a primary key.
type Generator struct {
	source func() (uuid.UUID, error)
}

// NewUUIDGenerator returns a Generator.
func NewUUIDGenerator() *Generator {
	return &Generator{source: uuid.NewV7}
}

// NewID returns a new audit id.
func (g *Generator) NewID() (string, error) {
	id, err := g.source()
	if err != nil {
		return "", fmt.Errorf("generate audit id: %w", err)
	}
	return id.String(), nil
}
