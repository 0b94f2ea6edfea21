// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"github.com/google/uuid"

	dErrors "bulwark/pkg/domain-errors"
)

// UserID identifies an authenticated subject when the caller resolved one.
// Abuse tracking itself keys on namespaced identifiers (IPs, emails), so this
// type only travels on audit events for forensic correlation.
type UserID uuid.UUID

// ParseUserID validates at trust boundaries (middleware, admin inputs).
func ParseUserID(s string) (UserID, error) {
	id, err := parseUUID(s, "user ID")
	return UserID(id), err
}

func (id UserID) String() string { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// MarshalText keeps JSON/text encodings as the canonical UUID string.
// Defining a named type drops uuid.UUID's methods, so restore them here.
func (id UserID) MarshalText() ([]byte, error) {
	return []byte(uuid.UUID(id).String()), nil
}

func (id *UserID) UnmarshalText(text []byte) error {
	parsed, err := uuid.ParseBytes(text)
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid user ID format")
	}
	*id = UserID(parsed)
	return nil
}

// parseUUID is the shared validation logic.
// Note: Nil UUIDs are allowed here. Use IsNil() at the consuming layer for
// business validation; audit enrichment treats a nil user as "anonymous".
func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label+" format")
	}
	return id, nil
}
