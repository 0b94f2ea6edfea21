package models

import (
	"strings"
	"time"

	dErrors "bulwark/pkg/domain-errors"
	platformstrings "bulwark/pkg/platform/strings"
	"bulwark/pkg/validation"
)

type AddAllowlistRequest struct {
	Type       string     `json:"type" validate:"required,oneof=ip identifier"`
	Identifier string     `json:"identifier" validate:"required,notblank"`
	Reason     string     `json:"reason" validate:"required,notblank"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

func (r *AddAllowlistRequest) Normalize() {
	if r == nil {
		return
	}
	r.Type = strings.TrimSpace(strings.ToLower(r.Type))
	r.Identifier = strings.TrimSpace(r.Identifier)
	if r.Type == string(AllowlistTypeIdentifier) {
		r.Identifier = platformstrings.NormalizeIdentifier(r.Identifier)
	}
	r.Reason = strings.TrimSpace(r.Reason)
}

// Follows validation order: Size -> Required/Syntax -> Semantic.
func (r *AddAllowlistRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}

	// Phase 1: Size checks
	if err := validation.CheckStringLength("identifier", r.Identifier, validation.MaxIdentifierLength); err != nil {
		return err
	}
	if err := validation.CheckStringLength("reason", r.Reason, validation.MaxReasonLength); err != nil {
		return err
	}

	// Phase 2: Required fields and syntax (struct tags)
	if err := validation.Validate(r); err != nil {
		return err
	}

	// Phase 3: Semantic validation
	if r.ExpiresAt != nil && r.ExpiresAt.Before(time.Now()) {
		return dErrors.New(dErrors.CodeValidation, "expires_at must be in the future")
	}

	return nil
}

type RemoveAllowlistRequest struct {
	Type       string `json:"type" validate:"required,oneof=ip identifier"`
	Identifier string `json:"identifier" validate:"required,notblank"`
}

func (r *RemoveAllowlistRequest) Normalize() {
	if r == nil {
		return
	}
	r.Type = strings.TrimSpace(strings.ToLower(r.Type))
	r.Identifier = strings.TrimSpace(r.Identifier)
	if r.Type == string(AllowlistTypeIdentifier) {
		r.Identifier = platformstrings.NormalizeIdentifier(r.Identifier)
	}
}

func (r *RemoveAllowlistRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}

	// Phase 1: Size checks
	if err := validation.CheckStringLength("identifier", r.Identifier, validation.MaxIdentifierLength); err != nil {
		return err
	}

	// Phase 2: Required fields and syntax (struct tags)
	return validation.Validate(r)
}

type ResetBucketRequest struct {
	Type       string `json:"type" validate:"required,oneof=ip identifier"`
	Identifier string `json:"identifier" validate:"required,notblank"`
	Action     string `json:"action,omitempty"` // optional: reset a single action's bucket
}

func (r *ResetBucketRequest) Normalize() {
	if r == nil {
		return
	}
	r.Type = strings.TrimSpace(strings.ToLower(r.Type))
	r.Identifier = strings.TrimSpace(r.Identifier)
	if r.Type == string(AllowlistTypeIdentifier) {
		r.Identifier = platformstrings.NormalizeIdentifier(r.Identifier)
	}
	r.Action = strings.TrimSpace(r.Action)
}

func (r *ResetBucketRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}

	// Phase 1: Size checks
	if err := validation.CheckStringLength("identifier", r.Identifier, validation.MaxIdentifierLength); err != nil {
		return err
	}
	if err := validation.CheckStringLength("action", r.Action, validation.MaxActionLength); err != nil {
		return err
	}

	// Phase 2: Required fields and syntax (struct tags).
	// Action stays free-form: caller-defined actions are legal bucket tags.
	return validation.Validate(r)
}

// Key builds the namespaced bucket key this reset targets.
func (r *ResetBucketRequest) Key() Key {
	if r.Type == string(AllowlistTypeIP) {
		return NewIPKey(r.Identifier)
	}
	return NewIdentifierKey(r.Identifier)
}

type UnlockRequest struct {
	Identifier string `json:"identifier" validate:"required,notblank"`
	Reason     string `json:"reason,omitempty"`
}

func (r *UnlockRequest) Normalize() {
	if r == nil {
		return
	}
	r.Identifier = platformstrings.NormalizeIdentifier(r.Identifier)
	r.Reason = strings.TrimSpace(r.Reason)
}

func (r *UnlockRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}

	// Phase 1: Size checks
	if err := validation.CheckStringLength("identifier", r.Identifier, validation.MaxIdentifierLength); err != nil {
		return err
	}
	if err := validation.CheckStringLength("reason", r.Reason, validation.MaxReasonLength); err != nil {
		return err
	}

	// Phase 2: Required fields and syntax (struct tags)
	return validation.Validate(r)
}
