package assignment

import (
	"fmt"

	"github.com/okian/jury/internal/domain/model"
)

// Choice is a judge's verdict between the current and previous project.
type Choice string

// Accepted vote choices.
const (
	ChoiceCurrent  Choice = "current"
	ChoicePrevious Choice = "previous"
)

// ParseChoice validates a client supplied choice.
func ParseChoice(s string) (Choice, error) {
	switch c := Choice(s); c {
	case ChoiceCurrent, ChoicePrevious:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidChoice, s)
}

// Select picks the project to show next from candidates.
//
// Eligible: active, not in the judge's seen list, not excluded.
// Order: prioritized, fewest exposures, lowest sigma_sq, smallest id.
func Select(candidates []model.Project, judge *model.Judge, exclude string) (model.Project, bool) {
	seen := make(map[string]struct{}, len(judge.SeenProjects))
	for _, id := range judge.SeenProjects {
		seen[id] = struct{}{}
	}

	var (
		best  model.Project
		found bool
	)
	for _, p := range candidates {
		if !p.Active || p.ID == exclude {
			continue
		}
		if _, ok := seen[p.ID]; ok {
			continue
		}
		if !found || before(&p, &best) {
			best, found = p, true
		}
	}
	return best, found
}

// before reports whether a should be assigned ahead of b.
func before(a, b *model.Project) bool {
	if a.Prioritized != b.Prioritized {
		return a.Prioritized
	}
	if a.Seen != b.Seen {
		return a.Seen < b.Seen
	}
	if a.SigmaSq != b.SigmaSq {
		return a.SigmaSq < b.SigmaSq
	}
	return a.ID < b.ID
}
