package models

import (
	"time"
)

// CachedResponse is a fully serialized HTTP response held by a response store.
// Hits are served from Body as-is, so two hits return identical bytes.
type CachedResponse struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	Body       []byte            `json:"body"`
	CreatedAt  time.Time         `json:"created_at"`
	ExpiresAt  time.Time         `json:"expires_at"`
}

// IsExpired checks if the cached response has outlived its TTL.
// A zero ExpiresAt never expires.
func (c *CachedResponse) IsExpired() bool {
	return !c.ExpiresAt.IsZero() && time.Now().After(c.ExpiresAt)
}
