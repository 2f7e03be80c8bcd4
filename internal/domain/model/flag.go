package model

import (
	"fmt"
	"time"
)

// FlagReason enumerates why a judge flagged a project.
type FlagReason string

// Flag reasons accepted by the engine.
const (
	FlagAbsent     FlagReason = "absent"
	FlagCannotDemo FlagReason = "cannot-demo"
	FlagTooComplex FlagReason = "too-complex"
	FlagOffensive  FlagReason = "offensive"
)

// FlagReasons lists the accepted reasons in the order the judge client shows them.
var FlagReasons = []FlagReason{FlagAbsent, FlagCannotDemo, FlagTooComplex, FlagOffensive}

// ParseFlagReason converts a client string into a FlagReason.
func ParseFlagReason(s string) (FlagReason, error) {
	for _, r := range FlagReasons {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFlagReason, s)
}

// Flag is an immutable record of a disqualifying observation.
// ProjectName, JudgeName and ProjectLocation are filled on read only.
type Flag struct {
	ID        string     `json:"id"`
	JudgeID   string     `json:"judge_id"`
	ProjectID string     `json:"project_id"`
	Time      time.Time  `json:"time"`
	Reason    FlagReason `json:"reason"`

	ProjectName     string `json:"project_name,omitempty"`
	JudgeName       string `json:"judge_name,omitempty"`
	ProjectLocation int    `json:"project_location,omitempty"`
}
