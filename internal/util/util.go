// Package util provides small shared helpers for id generation and validation.
package util

import (
	"regexp"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"
)

var uidMatcher = regexp.MustCompile("^[a-zA-Z0-9]([a-zA-Z0-9-]{1,30}[a-zA-Z0-9])$")

// GenUID generates a short unique id for episodes, proposals and playbooks.
func GenUID() string {
	return shortuuid.New()
}

// GenSortableID generates a time-sortable unique id (UUIDv7) for observations,
// so raw event rows order correctly by id within a session.
func GenSortableID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if the entropy source does; fall back to random.
		return uuid.New().String()
	}
	return id.String()
}

// ValidateUID validates the uid.
func ValidateUID(uid string) bool {
	return uidMatcher.MatchString(uid)
}
