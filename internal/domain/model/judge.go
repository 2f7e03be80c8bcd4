package model

import (
	"maps"
	"slices"
	"time"
)

// MaxStars is the highest private rating a judge can give a seen project.
const MaxStars = 5

// AssignmentState is the per-judge position in the assignment state machine.
type AssignmentState string

const (
	// StateIdle means the judge has no outstanding assignment.
	StateIdle AssignmentState = "idle"
	// StateAssigned means Next is outstanding and awaiting a vote, flag, skip or busy.
	StateAssigned AssignmentState = "assigned"
)

// Judge is a person comparing projects.
type Judge struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Email        string          `json:"email"`
	Notes        string          `json:"notes"`
	Alpha        float64         `json:"alpha"`
	Beta         float64         `json:"beta"`
	Votes        int             `json:"votes"`
	SeenProjects []string        `json:"seen_projects"`
	Next         string          `json:"next"`
	Prev         string          `json:"prev"`
	Active       bool            `json:"active"`
	ReadWelcome  bool            `json:"read_welcome"`
	Group        int             `json:"group"`
	State        AssignmentState `json:"state"`
	LastActivity time.Time       `json:"last_activity"`

	// VisitedGroups and CurrentGroupCount drive group rotation: the groups the
	// judge already worked through and how many projects they were assigned
	// in the current one.
	VisitedGroups     []int `json:"visited_groups"`
	CurrentGroupCount int   `json:"current_group_count"`

	// Stars holds the judge's private 1..MaxStars notes per seen project.
	// They never feed the ranking.
	Stars map[string]int `json:"stars,omitempty"`

	// NextVoted and PrevVoted record whether the exposure behind each pointer
	// already counted toward that project's Votes, keeping Votes <= Seen.
	NextVoted bool `json:"next_voted"`
	PrevVoted bool `json:"prev_voted"`

	Version uint64 `json:"-"`
}

// HasSeen reports whether projectID was already shown to the judge.
func (j *Judge) HasSeen(projectID string) bool {
	return slices.Contains(j.SeenProjects, projectID)
}

// MarkSeen appends projectID to the seen list when absent.
func (j *Judge) MarkSeen(projectID string) {
	if !j.HasSeen(projectID) {
		j.SeenProjects = append(j.SeenProjects, projectID)
	}
}

// Unsee removes projectID from the seen list along with its stars.
func (j *Judge) Unsee(projectID string) {
	j.SeenProjects = slices.DeleteFunc(j.SeenProjects, func(id string) bool { return id == projectID })
	delete(j.Stars, projectID)
}

// SetStars records stars for projectID; 0 clears them.
func (j *Judge) SetStars(projectID string, stars int) {
	if stars == 0 {
		delete(j.Stars, projectID)
		return
	}
	if j.Stars == nil {
		j.Stars = make(map[string]int)
	}
	j.Stars[projectID] = stars
}

// Clone returns a deep copy so callers can mutate without aliasing the seen
// list, visited groups or stars.
func (j Judge) Clone() Judge {
	j.SeenProjects = slices.Clone(j.SeenProjects)
	j.VisitedGroups = slices.Clone(j.VisitedGroups)
	j.Stars = maps.Clone(j.Stars)
	return j
}

// Validate reports whether the record satisfies the judge invariants.
func (j *Judge) Validate() error {
	switch {
	case j.ID == "":
		return ErrMissingID
	case !(j.Alpha > 0) || !(j.Beta > 0):
		return ErrNonPositiveCalibration
	case j.Votes < 0 || j.CurrentGroupCount < 0:
		return ErrNegativeCounter
	}
	seen := make(map[string]struct{}, len(j.SeenProjects))
	for _, id := range j.SeenProjects {
		if _, dup := seen[id]; dup {
			return ErrDuplicateSeen
		}
		seen[id] = struct{}{}
	}
	for id, n := range j.Stars {
		if _, ok := seen[id]; !ok {
			return ErrStarsUnseen
		}
		if n < 1 || n > MaxStars {
			return ErrStarsOutOfRange
		}
	}
	if j.State == StateAssigned && j.Next == "" {
		return ErrDanglingAssignment
	}
	return nil
}
