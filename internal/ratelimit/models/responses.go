package models

import "time"

// DenialResponse is the 429 body. Error is "rate_limit_exceeded" for bucket
// denials and "account_locked" for lockout denials; the message never reveals
// whether a credential was correct.
type DenialResponse struct {
	Error           string `json:"error"`
	Message         string `json:"message"`
	RetryAfter      int    `json:"retryAfter"` // seconds, >= 1
	RequiresCaptcha bool   `json:"requiresCaptcha"`
	Locked          bool   `json:"locked"`
}

// BucketStatusResponse describes one bucket for admin inspection.
type BucketStatusResponse struct {
	Identifier string    `json:"identifier"`
	Action     Action    `json:"action"`
	Attempts   int       `json:"attempts"`
	ResetAt    time.Time `json:"reset_at"`
	Expired    bool      `json:"expired"`
}

// LockStatusResponse describes an identifier's lock state for admin inspection.
type LockStatusResponse struct {
	Identifier  string     `json:"identifier"`
	State       LockState  `json:"state"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
	Attempts    int        `json:"attempts,omitempty"`
	Reason      string     `json:"reason,omitempty"`
}

// ResetBucketResponse reports how many buckets an admin reset removed.
type ResetBucketResponse struct {
	Identifier string `json:"identifier"`
	Deleted    int    `json:"deleted"`
}

// SweepResponse reports one sweep's deletions to external schedulers.
type SweepResponse struct {
	BucketsDeleted  int64     `json:"buckets_deleted"`
	LockoutsDeleted int64     `json:"lockouts_deleted"`
	SweptAt         time.Time `json:"swept_at"`
}
