package record

import "errors"

var (
	ErrRecordNotFound    = errors.New("record not found")
	ErrVersionNotFound   = errors.New("version not found")
	ErrInvalidRecordType = errors.New("invalid record type")
	ErrMessageTooShort   = errors.New("version message is required and must be at least 3 characters")
	ErrRecordArchived    = errors.New("record is archived; no further versions may be appended")

	// ErrVersionConflict is surfaced when two concurrent appends race on the
	// same record and the loser cannot be retried transparently. The caller
	// should re-read and retry the whole operation.
	ErrVersionConflict = errors.New("concurrent version append detected; retry with fresh state")
)
