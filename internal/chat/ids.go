package chat

import (
	"fmt"

	nanoid "github.com/jaevor/go-nanoid"
)

// idLength gives 126 bits of entropy with the URL-safe nanoid alphabet.
const idLength = 21

// IDGenerator returns a fresh opaque token on every call. Implementations
// must be safe for concurrent use.
type IDGenerator func() string

// NewIDGenerator returns a generator of 21-character nanoid tokens backed by
// crypto/rand.
func NewIDGenerator() (IDGenerator, error) {
	gen, err := nanoid.Standard(idLength)
	if err != nil {
		return nil, fmt.Errorf("create id generator: %w", err)
	}
	return gen, nil
}

// MustIDGenerator is like NewIDGenerator but panics on error.
func MustIDGenerator() IDGenerator {
	gen, err := NewIDGenerator()
	if err != nil {
		panic(err)
	}
	return gen
}
