package domain

import (
	"strings"
)

// ValidateCollectionName applies the MongoDB naming rules that matter for
// addressing a collection over HTTP: non-empty, no NUL byte, no '$'.
func ValidateCollectionName(name string) error {
	if name == "" || strings.ContainsAny(name, "\x00$") {
		return ErrInvalidCollection
	}
	return nil
}
