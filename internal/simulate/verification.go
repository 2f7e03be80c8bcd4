package simulate

import (
	"context"
	"fmt"
	"math"
	"sort"

	service "github.com/okian/jury/internal/app"
	"github.com/okian/jury/internal/domain/model"
)

// verify checks engine invariants and measures how well mu recovers the
// hidden quality order. svc must be stopped so the leaderboard is drained.
func verify(ctx context.Context, svc *service.Service, cfg Config, quality map[string]float64) (Report, error) {
	projects, err := svc.Projects(ctx)
	if err != nil {
		return Report{}, err
	}
	judges, err := svc.Judges(ctx)
	if err != nil {
		return Report{}, err
	}

	var r Report
	r.Violations = append(r.Violations, checkProjects(projects)...)
	r.Violations = append(r.Violations, checkJudges(judges, projects)...)

	active := make([]model.Project, 0, len(projects))
	for _, p := range projects {
		if p.Active {
			active = append(active, p)
		}
	}
	if v, err := checkLeaderboard(ctx, svc, active); err != nil {
		return Report{}, err
	} else if v != "" {
		r.Violations = append(r.Violations, v)
	}

	truth := make([]float64, len(active))
	est := make([]float64, len(active))
	for i, p := range active {
		truth[i], est[i] = quality[p.ID], p.Mu
	}
	r.Spearman = spearman(truth, est)
	r.TopOverlap = topOverlap(active, quality, cfg.TopN)
	return r, nil
}

// checkProjects verifies Votes <= Seen and finite, positive estimates.
func checkProjects(projects []model.Project) []string {
	var out []string
	for _, p := range projects {
		if p.Votes > p.Seen {
			out = append(out, fmt.Sprintf("project %s: votes %d exceed seen %d", p.ID, p.Votes, p.Seen))
		}
		if p.Seen < 0 {
			out = append(out, fmt.Sprintf("project %s: negative seen %d", p.ID, p.Seen))
		}
		if math.IsNaN(p.Mu) || math.IsInf(p.Mu, 0) || !(p.SigmaSq > 0) {
			out = append(out, fmt.Sprintf("project %s: degenerate estimate mu=%v sigma_sq=%v", p.ID, p.Mu, p.SigmaSq))
		}
	}
	return out
}

// checkJudges verifies seen lists hold no duplicates and that total
// exposures match the projects' Seen counters.
func checkJudges(judges []model.Judge, projects []model.Project) []string {
	var out []string
	exposures := make(map[string]int)
	for _, j := range judges {
		if !(j.Alpha > 0) || !(j.Beta > 0) {
			out = append(out, fmt.Sprintf("judge %s: degenerate calibration alpha=%v beta=%v", j.ID, j.Alpha, j.Beta))
		}
		seen := make(map[string]struct{}, len(j.SeenProjects))
		for _, id := range j.SeenProjects {
			if _, dup := seen[id]; dup {
				out = append(out, fmt.Sprintf("judge %s: project %s seen twice", j.ID, id))
			}
			seen[id] = struct{}{}
			exposures[id]++
		}
	}
	for _, p := range projects {
		if exposures[p.ID] != p.Seen {
			out = append(out, fmt.Sprintf("project %s: seen %d but %d judges list it", p.ID, p.Seen, exposures[p.ID]))
		}
	}
	return out
}

// checkLeaderboard compares the drained projection against the store.
func checkLeaderboard(ctx context.Context, svc *service.Service, active []model.Project) (string, error) {
	if len(active) == 0 {
		return "", nil
	}
	top, err := svc.TopN(ctx, len(active)+1)
	if err != nil {
		return "", err
	}
	if len(top) != len(active) {
		return fmt.Sprintf("leaderboard holds %d projects, store has %d active", len(top), len(active)), nil
	}
	mus := make(map[string]float64, len(active))
	for _, p := range active {
		mus[p.ID] = p.Mu
	}
	for i, e := range top {
		mu, ok := mus[e.ProjectID]
		if !ok {
			return fmt.Sprintf("leaderboard ranks inactive project %s", e.ProjectID), nil
		}
		if math.Abs(mu-e.Mu) > 1e-6 {
			return fmt.Sprintf("leaderboard mu %.6f for %s, store has %.6f", e.Mu, e.ProjectID, mu), nil
		}
		if i > 0 && e.Mu > top[i-1].Mu {
			return fmt.Sprintf("leaderboard not sorted at rank %d", e.Rank), nil
		}
	}
	return "", nil
}

// spearman returns the rank correlation of x and y, with ties given their
// average rank. It returns 0 when either side is constant.
func spearman(x, y []float64) float64 {
	if len(x) != len(y) || len(x) < 2 {
		return 0
	}
	rx, ry := ranks(x), ranks(y)
	var mx, my float64
	for i := range rx {
		mx += rx[i]
		my += ry[i]
	}
	n := float64(len(rx))
	mx, my = mx/n, my/n

	var cov, vx, vy float64
	for i := range rx {
		dx, dy := rx[i]-mx, ry[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return 0
	}
	return cov / math.Sqrt(vx*vy)
}

func ranks(v []float64) []float64 {
	idx := make([]int, len(v))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return v[idx[a]] < v[idx[b]] })

	out := make([]float64, len(v))
	for i := 0; i < len(idx); {
		k := i
		for k+1 < len(idx) && v[idx[k+1]] == v[idx[i]] {
			k++
		}
		avg := float64(i+k)/2 + 1
		for m := i; m <= k; m++ {
			out[idx[m]] = avg
		}
		i = k + 1
	}
	return out
}

// topOverlap is the fraction of the n best projects by quality that also
// sit in the n best by mu.
func topOverlap(active []model.Project, quality map[string]float64, n int) float64 {
	n = min(n, len(active))
	if n < 1 {
		return 0
	}
	byQuality := make([]model.Project, len(active))
	copy(byQuality, active)
	sort.Slice(byQuality, func(a, b int) bool { return quality[byQuality[a].ID] > quality[byQuality[b].ID] })
	byMu := make([]model.Project, len(active))
	copy(byMu, active)
	sort.Slice(byMu, func(a, b int) bool { return byMu[a].Mu > byMu[b].Mu })

	want := make(map[string]struct{}, n)
	for _, p := range byQuality[:n] {
		want[p.ID] = struct{}{}
	}
	hit := 0
	for _, p := range byMu[:n] {
		if _, ok := want[p.ID]; ok {
			hit++
		}
	}
	return float64(hit) / float64(n)
}
