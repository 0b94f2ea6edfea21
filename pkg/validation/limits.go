package validation

import (
	"fmt"

	dErrors "bulwark/pkg/domain-errors"
)

// HTTP body limits
const (
	// MaxBodySize is the maximum allowed request body size (64 KB).
	// Sufficient for JSON APIs while preventing memory exhaustion attacks.
	MaxBodySize = 64 * 1024
)

// String element length limits
const (
	// MaxIdentifierLength bounds a namespaced bucket identifier
	// (prefix plus email/username or IP address).
	MaxIdentifierLength = 320

	// MaxActionLength bounds an action tag.
	MaxActionLength = 64

	// MaxReasonLength bounds operator-supplied reasons on allowlist
	// entries and manual unlocks.
	MaxReasonLength = 500
)

// CheckStringLength validates that a string does not exceed the maximum length.
func CheckStringLength(fieldName, value string, max int) error {
	if len(value) > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
	}
	return nil
}
