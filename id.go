package softtx

import (
	"fmt"

	"github.com/google/uuid"
)

// IDGenerator creates new identifiers.
type IDGenerator interface {
	// New returns a new identifier.
	New() (string, error)
}

// UUIDv7Generator produces time-ordered UUID v7 identifiers in canonical text form.
type UUIDv7Generator struct{}

// New creates a new UUID v7 identifier.
func (UUIDv7Generator) New() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("softtx: generate id: %w", err)
	}

	return id.String(), nil
}
