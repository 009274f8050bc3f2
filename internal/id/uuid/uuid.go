// Package uuid issues and vets the request IDs carried in X-Request-ID.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator mints UUIDv7 request IDs, which sort by arrival time.
type Generator struct{}

// New creates a Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a fresh request ID.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate request id: %w", err)
	}
	return id.String(), nil
}

// Accept adopts a request ID supplied by an upstream hop when it is a UUID,
// returning it in canonical lowercase form. Anything else is rejected.
func (Generator) Accept(candidate string) (string, bool) {
	if candidate == "" {
		return "", false
	}
	id, err := uuid.Parse(candidate)
	if err != nil || id == uuid.Nil {
		return "", false
	}
	return id.String(), true
}
