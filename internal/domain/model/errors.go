package model

import "errors"

// Sentinel kinds for record validation.
var (
	ErrMissingID              = errors.New("record id is empty")
	ErrNonPositiveVariance    = errors.New("sigma_sq must be positive")
	ErrNonPositiveCalibration = errors.New("alpha and beta must be positive")
	ErrNegativeCounter        = errors.New("counters must not be negative")
	ErrVotesExceedSeen        = errors.New("votes exceed seen")
	ErrDuplicateSeen          = errors.New("duplicate project in seen list")
	ErrDanglingAssignment     = errors.New("assigned judge without next project")
	ErrUnknownFlagReason      = errors.New("unknown flag reason")
	ErrStarsUnseen            = errors.New("stars given to an unseen project")
	ErrStarsOutOfRange        = errors.New("stars out of range")
)
