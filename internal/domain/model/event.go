package model

import "time"

// EventKind tags projection events flowing from the engine to read models.
type EventKind string

const (
	// EventRatingChanged carries a project's new skill estimate.
	EventRatingChanged EventKind = "rating_changed"
	// EventVisibilityChanged carries a project's new active flag.
	EventVisibilityChanged EventKind = "visibility_changed"
	// EventFlagged carries a newly recorded flag.
	EventFlagged EventKind = "flagged"
)

// Event is a projection update published after a committed engine write.
type Event struct {
	Kind      EventKind
	ProjectID string
	Mu        float64
	SigmaSq   float64
	Active    bool
	Flag      *Flag
	TS        time.Time

	// Version is the project's store version after the write, 0 when unknown.
	Version uint64
}
