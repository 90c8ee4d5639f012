package core

import "github.com/google/uuid"

// NewID returns a random UUID string. Used for turn ids and for tool call ids
// when a provider does not supply one.
func NewID() string {
	return uuid.NewString()
}
