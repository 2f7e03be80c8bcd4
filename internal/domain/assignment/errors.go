package assignment

import "errors"

// Sentinel kinds for scheduler preconditions. None of them are retried.
var (
	ErrWindowClosed       = errors.New("judging window is closed")
	ErrNoEligibleProjects = errors.New("no eligible projects")
	ErrNotAssigned        = errors.New("judge has no outstanding assignment")
	ErrNoPreviousProject  = errors.New("judge has no previous project to compare against")
	ErrVoteRequired       = errors.New("a vote is required to advance")
	ErrInvalidGroup       = errors.New("invalid group")
	ErrJudgeInactive      = errors.New("judge is inactive")
	ErrInvalidChoice      = errors.New("invalid vote choice")
	ErrNotSeen            = errors.New("project was not shown to the judge")
	ErrInvalidStars       = errors.New("stars must be between 0 and 5")
)
