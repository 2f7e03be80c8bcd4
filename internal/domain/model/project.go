// Package model contains domain models passed between layers.
package model

import "time"

// Project is a hackathon submission being judged.
// Mu/SigmaSq are the CrowdBT skill estimate; Seen counts judge exposures.
type Project struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Location     int       `json:"location"`
	Description  string    `json:"description"`
	Mu           float64   `json:"mu"`
	SigmaSq      float64   `json:"sigma_sq"`
	// Votes counts exposures that ended in a vote, so it never exceeds Seen.
	Votes        int       `json:"votes"`
	Seen         int       `json:"seen"`
	Active       bool      `json:"active"`
	Prioritized  bool      `json:"prioritized"`
	LastActivity time.Time `json:"last_activity"`

	// Version is owned by the store and bumped on every committed write.
	Version uint64 `json:"-"`
}

// Validate reports whether the record satisfies the project invariants.
func (p *Project) Validate() error {
	switch {
	case p.ID == "":
		return ErrMissingID
	case !(p.SigmaSq > 0):
		return ErrNonPositiveVariance
	case p.Votes < 0 || p.Seen < 0:
		return ErrNegativeCounter
	case p.Votes > p.Seen:
		return ErrVotesExceedSeen
	}
	return nil
}

// InGroup reports whether the project location falls inside g.
func (p *Project) InGroup(g Group) bool {
	return g.Contains(p.Location)
}
