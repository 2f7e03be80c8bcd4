package model

// Group is a half-open range [Start, End) of project locations.
type Group struct {
	Start int `json:"start" koanf:"start" validate:"gte=0"`
	End   int `json:"end" koanf:"end" validate:"gtfield=Start"`
}

// Contains reports whether location lies inside the group.
func (g Group) Contains(location int) bool {
	return location >= g.Start && location < g.End
}

// Overlaps reports whether g and o share at least one location.
func (g Group) Overlaps(o Group) bool {
	return g.Start < o.End && o.Start < g.End
}
