package generator

import (
	"github.com/google/uuid"
)

type IDGenerator struct{}

func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

func (g *IDGenerator) GenerateSessionID() string {
	return uuid.NewString()
}

func (g *IDGenerator) GenerateReconciliationID() uuid.UUID {
	return uuid.New()
}

// IsSessionID reports whether s looks like an id produced by GenerateSessionID.
func IsSessionID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
