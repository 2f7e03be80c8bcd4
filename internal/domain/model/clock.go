package model

// ClockState is a point-in-time view of the judging window.
type ClockState struct {
	Time    float64 `json:"time"` // elapsed seconds while running
	Running bool    `json:"running"`
}
