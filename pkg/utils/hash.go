package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

func HashString(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// NormalizeQuery lower-cases text and collapses runs of whitespace so that
// trivially different spellings of a question share a cache key.
func NormalizeQuery(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// QueryKey is the cache key for a natural-language query.
func QueryKey(text string) string {
	return HashString(NormalizeQuery(text))
}
