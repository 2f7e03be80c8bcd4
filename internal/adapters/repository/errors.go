package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrNotFound      = errors.New("record not found")
	ErrConflict      = errors.New("record changed concurrently")
	ErrInvalidRecord = errors.New("record violates invariants")
	ErrInvalidLimit  = errors.New("invalid leaderboard limit")
)
