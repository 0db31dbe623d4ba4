package domain

import (
	"strings"

	"github.com/google/uuid"
)

// NewMessageID returns a short random hex id for a message.
func NewMessageID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
}
