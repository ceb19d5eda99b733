package utils

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateReferenceNo generates a human-readable document number such as
// RCPT-1A2B3C4D.
func GenerateReferenceNo(prefix string) string {
	return prefix + "-" + strings.ToUpper(uuid.New().String()[:8])
}

// ParseUUID parses a string into a UUID
func ParseUUID(s string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(s))
}
