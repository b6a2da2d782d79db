package model

import (
	"strings"

	"github.com/google/uuid"
)

// NewRequestID returns a fresh ID for tagging an outgoing API call.
func NewRequestID() string {
	return uuid.NewString()
}

// ValidateStoryID reports whether id can be safely placed in a request path.
// Story IDs are opaque to the client; backends issue 24-char hex ObjectIDs
// but anything alphanumeric with dashes or underscores is accepted.
func ValidateStoryID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for _, c := range id {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-' || c == '_') {
			return false
		}
	}
	return !strings.HasPrefix(id, "-")
}
