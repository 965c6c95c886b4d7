package keygen

import (
	"github.com/google/uuid"
	"github.com/layer-3/mercuria/ports"
)

// UUIDGenerator mints random (version 4) UUIDs: 122 bits from crypto/rand,
// so two keys minted in the same instant still differ.
type UUIDGenerator struct{}

// NewUUIDGenerator creates a new idempotency key generator
func NewUUIDGenerator() ports.KeyGenerator {
	return UUIDGenerator{}
}

// Generate returns a fresh key
func (UUIDGenerator) Generate() string {
	return uuid.NewString()
}
