package access

import "errors"

var (
	ErrRequestNotFound = errors.New("access request not found")

	// ErrRequestConflict: a pending or approved request already exists for
	// the (doctor, patient) pair. The caller should wait for it to resolve
	// rather than retry.
	ErrRequestConflict = errors.New("an active access request already exists for this doctor and patient")

	ErrNotPending  = errors.New("access request is not pending")
	ErrNotApproved = errors.New("access request is not approved")

	ErrInvalidLevel      = errors.New("invalid access level")
	ErrInvalidScope      = errors.New("invalid record type scope")
	ErrInvalidExpiryDays = errors.New("expiry days must be between 1 and 365")

	// ErrAccessDenied is returned for every authorization failure. It
	// deliberately does not distinguish "no grant", "expired", "wrong
	// level" or "out of scope", so an unauthorized caller cannot probe
	// which patients or records exist.
	ErrAccessDenied = errors.New("access denied")
)
