package uuidx

import (
	"strings"

	"github.com/google/uuid"
)

// New generates a new UUID using the version 7 format and returns it.
// It panics if the UUID generation fails.
func New() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewString generates a new UUID using the version 7 format and returns it as a string.
func NewString() string {
	return New().String()
}

// Token returns a random identifier that is safe to use as a script identifier:
// 32 lowercase hex characters, no dashes. Version 4 is used so tokens minted in the
// same millisecond do not share a prefix.
func Token() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
