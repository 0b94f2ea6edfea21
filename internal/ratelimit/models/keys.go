package models

import (
	"fmt"
	"strings"

	platformstrings "bulwark/pkg/platform/strings"
)

// Namespace segregates bucket keys by source kind. IP buckets and identifier
// buckets never collide because the namespace is part of the stored key.
type Namespace string

const (
	NamespaceIP         Namespace = "ip"
	NamespaceIdentifier Namespace = "identifier"
)

// Key is a value object encapsulating bucket key construction.
// It centralizes key format and sanitization to prevent key collision attacks.
type Key struct {
	namespace Namespace
	source    string
}

// NewIPKey creates a bucket key for IP-based tracking.
func NewIPKey(addr string) Key {
	return Key{
		namespace: NamespaceIP,
		source:    sanitizeKeySegment(addr),
	}
}

// NewIdentifierKey creates a bucket key for identifier-based tracking
// (email or username). The identifier is normalized before keying so
// "Alice@Example.COM " and "alice@example.com" land in one bucket.
func NewIdentifierKey(identifier string) Key {
	return Key{
		namespace: NamespaceIdentifier,
		source:    sanitizeKeySegment(platformstrings.NormalizeIdentifier(identifier)),
	}
}

// String returns the formatted key for storage lookup.
func (k Key) String() string {
	return fmt.Sprintf("%s:%s", k.namespace, k.source)
}

// sanitizeKeySegment escapes delimiter characters in bucket key segments
// to prevent key collision attacks where user-controlled identifiers
// containing ':' could manipulate adjacent buckets.
//
// Escape rules (order matters):
//  1. Escape '_' to '__' (escape the escape character first)
//  2. Escape ':' to '_c' (escape the delimiter)
//
// Examples:
//   - "user:admin"  → "user_cadmin"  (colon escaped)
//   - "user_admin"  → "user__admin"  (underscore escaped)
//   - "user_:admin" → "user___cadmin" (both escaped, no collision)
//
// This ensures no two distinct inputs produce the same sanitized output.
func sanitizeKeySegment(s string) string {
	// Order matters: escape the escape character first
	s = strings.ReplaceAll(s, "_", "__")
	s = strings.ReplaceAll(s, ":", "_c")
	return s
}
