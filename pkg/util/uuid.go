package util

import "github.com/google/uuid"

// NewClientID generates a new v7 uuid, used by the controller to mint
// client identity tokens.
func NewClientID() string {
	return uuid.Must(uuid.NewV7()).String()
}
