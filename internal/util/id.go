package util

import (
	"crypto/rand"
	"encoding/base32"
	"strings"
)

var idEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewID returns a short random identifier, optionally prefixed, used
// for request correlation against the review service.
func NewID(prefix string) string {
	bytes := make([]byte, 10)
	_, _ = rand.Read(bytes)
	id := strings.ToLower(idEncoding.EncodeToString(bytes))
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
