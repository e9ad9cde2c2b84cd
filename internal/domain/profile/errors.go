package profile

import "errors"

var (
	ErrProfileNotFound = errors.New("doctor profile not found")
	ErrInvalidSkill    = errors.New("endorsement skill label is required")
)
