// Package types contains response shapes shared by the service and the HTTP API.
package types

// Entry represents a rankings row.
type Entry struct {
	Rank      int     `json:"rank"`
	ProjectID string  `json:"project_id"`
	Mu        float64 `json:"mu"`
}

// Assignment is what a judge sees for the project they should visit.
type Assignment struct {
	ProjectID   string `json:"project_id"`
	Name        string `json:"name"`
	Location    int    `json:"location"`
	Description string `json:"description"`
}

// JudgedProject is a project the judge has finished with and the stars
// they gave it.
type JudgedProject struct {
	ProjectID   string `json:"project_id"`
	Name        string `json:"name"`
	Location    int    `json:"location"`
	Description string `json:"description"`
	Stars       int    `json:"stars"`
}

// PointerState is the judge's rolling two-slot window after an operation.
type PointerState struct {
	JudgeID       string `json:"judge_id"`
	PrevProjectID string `json:"prev_project_id"`
	NextProjectID string `json:"next_project_id"`
}

// Stats summarizes the event for the admin panel.
type Stats struct {
	Projects int     `json:"projects"`
	AvgSeen  float64 `json:"avg_seen"`
	AvgVotes float64 `json:"avg_votes"`
	MaxMu    float64 `json:"max_mu"`
	AvgSigma float64 `json:"avg_sigma"`
	Judges   int     `json:"judges"`
}
