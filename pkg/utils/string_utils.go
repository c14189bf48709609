package utils

import "strings"

// NewNullString trims s and returns a pointer to it, or nil when nothing is
// left. For optional fields that should be NULL in the database rather than
// an empty string.
func NewNullString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
