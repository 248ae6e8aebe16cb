package exam

import "errors"

var (
	// ErrNotFound covers both missing rows and ownership failures, so
	// callers cannot distinguish "not yours" from "does not exist".
	ErrNotFound = errors.New("exam: not found")

	ErrExamNotConfigured   = errors.New("exam: no active exam for course")
	ErrNotEligible         = errors.New("exam: not eligible")
	ErrAlreadyPassed       = errors.New("exam: already passed")
	ErrNoAttemptsRemaining = errors.New("exam: no attempts remaining")
	ErrAlreadySubmitted    = errors.New("exam: attempt already submitted")
	ErrNotSubmitted        = errors.New("exam: attempt not yet submitted")
	ErrBadAnswer           = errors.New("exam: answer must be one of a, b, c, d")
)
