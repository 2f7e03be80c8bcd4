package repository

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/okian/jury/internal/domain/types"
	"github.com/okian/jury/pkg/metrics"
)

// Treap-based leaderboard of project skill estimates.
//
// Ordering: mu DESC, then projectID ASC (deterministic).
// "less" means ranks earlier, so in-order traversal yields best to worst.
// The leaderboard is a read projection fed by the event pipeline; the
// engine never reads it.

// muScale controls fixed-point scaling from float64.
const muScale = 1_000_000_000 // 9 decimal places

type muFP int64

func toFixedPoint(x float64) muFP {
	switch {
	case math.IsNaN(x):
		return 0
	case x*muScale >= math.MaxInt64:
		return muFP(math.MaxInt64)
	case x*muScale <= math.MinInt64:
		return muFP(math.MinInt64)
	}
	return muFP(math.Round(x * muScale))
}

func toFloat(x muFP) float64 {
	return float64(x) / muScale
}

// treap node
type node struct {
	id    string
	mu    muFP
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less returns true if (aMu, aID) should appear before (bMu, bID).
func less(aMu muFP, aID string, bMu muFP, bID string) bool {
	if aMu != bMu {
		return aMu > bMu
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id string, mu muFP) *node {
	if n == nil {
		return &node{id: id, mu: mu, prio: rand.Uint64(), size: 1}
	}
	if less(mu, id, n.mu, n.id) {
		n.left = insert(n.left, id, mu)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, mu)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id string, mu muFP) *node {
	if n == nil {
		return nil
	}
	switch {
	case mu == n.mu && id == n.id:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, mu)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, mu)
		}
	case less(mu, id, n.mu, n.id):
		n.left = deleteNode(n.left, id, mu)
	default:
		n.right = deleteNode(n.right, id, mu)
	}
	fix(n)
	return n
}

// collectTopN appends up to limit entries in rank order.
func collectTopN(n *node, limit int, out *[]types.Entry) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, types.Entry{ProjectID: n.id, Mu: toFloat(n.mu)})
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, out)
	}
}

// Leaderboard ranks active projects by mu.
type Leaderboard struct {
	mu   sync.RWMutex
	root *node
	byID map[string]muFP

	// versions holds the newest store version applied per project, removed
	// projects included, so late events cannot resurrect stale state.
	versions map[string]uint64
}

// NewLeaderboard constructs an empty leaderboard.
func NewLeaderboard() *Leaderboard {
	return &Leaderboard{byID: make(map[string]muFP), versions: make(map[string]uint64)}
}

// stale reports whether version is older than what was already applied.
// Version 0 is unversioned and always applies. Callers hold l.mu.
func (l *Leaderboard) stale(projectID string, version uint64) bool {
	if version == 0 {
		return false
	}
	if version < l.versions[projectID] {
		return true
	}
	l.versions[projectID] = version
	return false
}

// Set inserts or repositions a project in O(log n) expected time.
// Updates carrying an older store version than one already applied are dropped.
func (l *Leaderboard) Set(_ context.Context, projectID string, mu float64, version uint64) {
	start := time.Now()
	ns := toFixedPoint(mu)

	l.mu.Lock()
	if l.stale(projectID, version) {
		l.mu.Unlock()
		metrics.RecordErrorByComponent("leaderboard", "stale_update")
		return
	}
	if old, ok := l.byID[projectID]; ok {
		if old == ns {
			l.mu.Unlock()
			return
		}
		l.root = deleteNode(l.root, projectID, old)
	}
	l.byID[projectID] = ns
	l.root = insert(l.root, projectID, ns)
	size := len(l.byID)
	l.mu.Unlock()

	metrics.RecordLeaderboardUpdate()
	metrics.UpdateLeaderboardSize(size)
	metrics.RecordStoreWriteLatency(float64(time.Since(start).Microseconds()) / 1000)
}

// Remove drops a project; unknown ids and stale versions are ignored.
func (l *Leaderboard) Remove(_ context.Context, projectID string, version uint64) {
	l.mu.Lock()
	if l.stale(projectID, version) {
		l.mu.Unlock()
		return
	}
	old, ok := l.byID[projectID]
	if ok {
		l.root = deleteNode(l.root, projectID, old)
		delete(l.byID, projectID)
	}
	size := len(l.byID)
	l.mu.Unlock()

	if ok {
		metrics.RecordLeaderboardUpdate()
		metrics.UpdateLeaderboardSize(size)
	}
}

// TopN returns the top n entries ordered by mu desc.
func (l *Leaderboard) TopN(_ context.Context, n int) ([]types.Entry, error) {
	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	l.mu.RLock()
	out := make([]types.Entry, 0, min(n, len(l.byID)))
	collectTopN(l.root, n, &out)
	l.mu.RUnlock()

	assignRanksWithTies(out)
	return out, nil
}

// Rank returns the entry for one project or ErrNotFound.
// Projects sharing a mu share a rank.
func (l *Leaderboard) Rank(_ context.Context, projectID string) (types.Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	target, ok := l.byID[projectID]
	if !ok {
		return types.Entry{}, ErrNotFound
	}
	// Dense rank: one plus the number of distinct mu values above target.
	distinct := 0
	var last muFP
	var walk func(n *node) bool
	walk = func(n *node) bool {
		if n == nil {
			return true
		}
		if !walk(n.left) || n.mu <= target {
			return false
		}
		if distinct == 0 || n.mu != last {
			distinct++
			last = n.mu
		}
		return walk(n.right)
	}
	walk(l.root)
	rank := distinct + 1
	return types.Entry{Rank: rank, ProjectID: projectID, Mu: toFloat(target)}, nil
}

// Count returns the number of ranked projects.
func (l *Leaderboard) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byID)
}

// assignRanksWithTies assigns dense ranks: equal mu shares a rank and the
// next distinct mu gets the following rank.
func assignRanksWithTies(entries []types.Entry) {
	rank := 0
	for i := range entries {
		if i == 0 || entries[i].Mu != entries[i-1].Mu {
			rank++
		}
		entries[i].Rank = rank
	}
}
