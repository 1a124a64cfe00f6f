package domain

import "time"

// APIKey grants access to the /v1 routes. Only the SHA-256 hash of the token
// is stored; inactive keys stay in place but are rejected.
type APIKey struct {
	TokenHash string
	Name      string
	Active    bool
	CreatedAt time.Time
}
