// Package assignment hands judges a fresh, non-repeating stream of projects
// and applies their verdicts.
//
// Contention is local to a judge: every judge operation holds that judge's
// mutex and commits the judge record with a version check. Shared project
// counters and ratings are edited in place by store mutations, so concurrent
// judges touching the same project never conflict.
package assignment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/okian/jury/internal/adapters/repository"
	"github.com/okian/jury/internal/domain/crowdbt"
	"github.com/okian/jury/internal/domain/model"
	"github.com/okian/jury/internal/domain/types"
	"github.com/okian/jury/pkg/logger"
	"github.com/okian/jury/pkg/metrics"
)

// Clock reports whether the judging window is open.
type Clock interface {
	Running() bool
}

// Flagger records a flag and deactivates the project.
type Flagger interface {
	Flag(ctx context.Context, projectID, judgeID string, reason model.FlagReason) (model.Flag, error)
}

// Rater computes a pairwise skill update.
type Rater interface {
	Update(judge crowdbt.Calibration, winner, loser crowdbt.Skill) crowdbt.Result
}

// VoteResult is the committed outcome of a vote.
type VoteResult struct {
	Pointer types.PointerState
	Winner  model.Project
	Loser   model.Project
	// Applied is false when either project was inactive; ratings are then left alone.
	Applied bool
}

// Scheduler runs the per-judge assignment state machine.
type Scheduler struct {
	store   repository.Store
	clock   Clock
	flagger Flagger
	rater   Rater

	groups      []model.Group
	groupSwitch int
	ignoreClock bool
	maxRetries  int
	now         func() time.Time
	log         logger.Logger

	locks sync.Map // judge id -> *sync.Mutex
}

// New constructs a Scheduler.
func New(store repository.Store, clock Clock, flagger Flagger, rater Rater, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:      store,
		clock:      clock,
		flagger:    flagger,
		rater:      rater,
		maxRetries: 5,
		now:        time.Now,
		log:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) lockJudge(id string) func() {
	m, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// errCandidateGone means the selected project was deactivated between
// selection and commit. The selection is simply redone.
var errCandidateGone = errors.New("selected project is no longer active")

// retry re-runs fn while it fails with a store conflict or a stale selection.
func (s *Scheduler) retry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		if err = fn(); !errors.Is(err, repository.ErrConflict) && !errors.Is(err, errCandidateGone) {
			return err
		}
		metrics.RecordConflictRetry(op)
		s.log.Debug(ctx, "write conflict, retrying", logger.String("op", op), logger.Int("attempt", attempt))
	}
	return err
}

func (s *Scheduler) windowOpen() bool {
	return s.ignoreClock || s.clock.Running()
}

func (s *Scheduler) scope(j *model.Judge) (*model.Group, error) {
	if len(s.groups) == 0 {
		return nil, nil
	}
	if j.Group < 0 || j.Group >= len(s.groups) {
		return nil, fmt.Errorf("%w: judge %q is in group %d", ErrInvalidGroup, j.ID, j.Group)
	}
	g := s.groups[j.Group]
	return &g, nil
}

func (s *Scheduler) activeJudge(ctx context.Context, id string) (model.Judge, error) {
	j, err := s.store.GetJudge(ctx, id)
	if err != nil {
		return model.Judge{}, err
	}
	if !j.Active {
		return model.Judge{}, fmt.Errorf("%w: %q", ErrJudgeInactive, id)
	}
	return j, nil
}

func (s *Scheduler) assignedJudge(ctx context.Context, id string) (model.Judge, error) {
	j, err := s.activeJudge(ctx, id)
	if err != nil {
		return model.Judge{}, err
	}
	if j.State != model.StateAssigned {
		return model.Judge{}, fmt.Errorf("%w: %q", ErrNotAssigned, id)
	}
	return j, nil
}

// pick chooses the next project for j. The excluded id is only avoided when
// something else is eligible.
func (s *Scheduler) pick(ctx context.Context, j *model.Judge, exclude string) (model.Project, error) {
	scope, err := s.scope(j)
	if err != nil {
		return model.Project{}, err
	}
	candidates, err := s.store.ListActive(ctx, scope)
	if err != nil {
		return model.Project{}, err
	}
	p, ok := Select(candidates, j, exclude)
	if !ok && exclude != "" {
		p, ok = Select(candidates, j, "")
	}
	if !ok {
		return model.Project{}, ErrNoEligibleProjects
	}
	return p, nil
}

// pickRotating is pick with group rotation: a judge who reached the switch
// threshold moves on first, and an exhausted group hands over to the
// following groups in turn. j is only changed on success.
func (s *Scheduler) pickRotating(ctx context.Context, j *model.Judge) (model.Project, error) {
	if !s.rotating() {
		return s.pick(ctx, j, "")
	}
	cand := j.Clone()
	if cand.CurrentGroupCount >= s.groupSwitch {
		s.enterGroup(&cand, s.nextGroup(&cand))
	}
	start := cand.Group
	for k := range len(s.groups) {
		if k > 0 {
			s.enterGroup(&cand, (start+k)%len(s.groups))
		}
		p, err := s.pick(ctx, &cand, "")
		if errors.Is(err, ErrNoEligibleProjects) {
			continue
		}
		if err != nil {
			return model.Project{}, err
		}
		*j = cand
		return p, nil
	}
	return model.Project{}, ErrNoEligibleProjects
}

func (s *Scheduler) rotating() bool {
	return s.groupSwitch > 0 && len(s.groups) > 1
}

// nextGroup is the first group after j's that j has not visited, or simply
// the following one when every other group was visited.
func (s *Scheduler) nextGroup(j *model.Judge) int {
	for k := 1; k < len(s.groups); k++ {
		g := (j.Group + k) % len(s.groups)
		if !slices.Contains(j.VisitedGroups, g) {
			return g
		}
	}
	return (j.Group + 1) % len(s.groups)
}

// enterGroup marks j's current group visited and moves j to g. Visits are
// forgotten once every group was visited.
func (s *Scheduler) enterGroup(j *model.Judge, g int) {
	if !slices.Contains(j.VisitedGroups, j.Group) {
		j.VisitedGroups = append(j.VisitedGroups, j.Group)
	}
	if len(j.VisitedGroups) >= len(s.groups) {
		j.VisitedGroups = nil
	}
	j.Group = g
	j.CurrentGroupCount = 0
}

// point moves j onto projectID: Prev <- Next, Next <- projectID, mark seen.
func (s *Scheduler) point(j *model.Judge, projectID string, now time.Time) {
	if j.Next != "" {
		j.Prev, j.PrevVoted = j.Next, j.NextVoted
	}
	j.Next, j.NextVoted = projectID, false
	j.MarkSeen(projectID)
	j.State = model.StateAssigned
	j.LastActivity = now
	if s.rotating() {
		j.CurrentGroupCount++
	}
}

// expose counts one more exposure of projectID and copies the written
// record into out. It fails when the project was deactivated after selection.
func expose(projectID string, now time.Time, out *model.Project) repository.Mutation {
	return repository.Mutation{
		Projects: []string{projectID},
		Apply: func(_ []*model.Judge, ps []*model.Project) error {
			p := ps[0]
			if !p.Active {
				return fmt.Errorf("%w: %q", errCandidateGone, projectID)
			}
			p.Seen++
			p.LastActivity = now
			*out = *p
			return nil
		},
	}
}

// withdraw takes back an exposure that never happened.
func withdraw(projectID string) repository.Mutation {
	return repository.Mutation{
		Projects: []string{projectID},
		Apply: func(_ []*model.Judge, ps []*model.Project) error {
			ps[0].Seen--
			return nil
		},
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrWindowClosed):
		return "window_closed"
	case errors.Is(err, ErrNoEligibleProjects):
		return "no_eligible"
	case errors.Is(err, ErrJudgeInactive):
		return "judge_inactive"
	case errors.Is(err, ErrInvalidGroup):
		return "invalid_group"
	case errors.Is(err, repository.ErrNotFound):
		return "not_found"
	case errors.Is(err, repository.ErrConflict):
		return "conflict"
	}
	return "other"
}

func pointer(j *model.Judge) types.PointerState {
	return types.PointerState{JudgeID: j.ID, PrevProjectID: j.Prev, NextProjectID: j.Next}
}

// GetNext returns the judge's outstanding project, assigning a new one when
// the judge is idle. A failed call leaves every record unchanged.
func (s *Scheduler) GetNext(ctx context.Context, judgeID string) (model.Project, error) {
	unlock := s.lockJudge(judgeID)
	defer unlock()

	if !s.windowOpen() {
		metrics.RecordAssignmentFailure(failureReason(ErrWindowClosed))
		return model.Project{}, ErrWindowClosed
	}

	var (
		out     model.Project
		outcome string
	)
	err := s.retry(ctx, "get_next", func() error {
		j, err := s.activeJudge(ctx, judgeID)
		if err != nil {
			return err
		}
		if j.State == model.StateAssigned {
			p, err := s.store.GetProject(ctx, j.Next)
			if err != nil {
				return err
			}
			out, outcome = p, "outstanding"
			return nil
		}

		p, err := s.pickRotating(ctx, &j)
		if err != nil {
			return err
		}
		now := s.now()
		s.point(&j, p.ID, now)
		var written model.Project
		if err := s.store.Commit(ctx, repository.Batch{
			Judges:    []model.Judge{j},
			Mutations: []repository.Mutation{expose(p.ID, now, &written)},
		}); err != nil {
			return err
		}
		written.Version++
		out, outcome = written, "new"
		return nil
	})
	if err != nil {
		metrics.RecordAssignmentFailure(failureReason(err))
		return model.Project{}, err
	}

	metrics.RecordAssignment(outcome)
	s.log.Debug(ctx, "assignment",
		logger.String("judge", judgeID),
		logger.String("project", out.ID),
		logger.String("outcome", outcome),
	)
	return out, nil
}

// Vote compares the judge's current project against the previous one.
// onCommit hooks run with the committed result before the judge lock is
// released, so a concurrent call for the same judge observes their effects.
func (s *Scheduler) Vote(ctx context.Context, judgeID string, choice Choice, onCommit ...func(VoteResult)) (VoteResult, error) {
	if _, err := ParseChoice(string(choice)); err != nil {
		return VoteResult{}, err
	}
	unlock := s.lockJudge(judgeID)
	defer unlock()

	var (
		res   VoteResult
		shift float64
	)
	err := s.retry(ctx, "vote", func() error {
		j, err := s.assignedJudge(ctx, judgeID)
		if err != nil {
			return err
		}
		if j.Prev == "" {
			return fmt.Errorf("%w: %q", ErrNoPreviousProject, judgeID)
		}

		now := s.now()
		j.State = model.StateIdle
		j.LastActivity = now

		var winner, loser model.Project
		applied := false
		rate := func(js []*model.Judge, ps []*model.Project) error {
			jj, cur, prev := js[0], ps[0], ps[1]
			w, l := cur, prev
			if choice == ChoicePrevious {
				w, l = prev, cur
			}
			applied = cur.Active && prev.Active
			if applied {
				r := s.rater.Update(
					crowdbt.Calibration{Alpha: jj.Alpha, Beta: jj.Beta},
					crowdbt.Skill{Mu: w.Mu, SigmaSq: w.SigmaSq},
					crowdbt.Skill{Mu: l.Mu, SigmaSq: l.SigmaSq},
				)
				shift = math.Abs(r.Winner.Mu - w.Mu)
				w.Mu, w.SigmaSq = r.Winner.Mu, r.Winner.SigmaSq
				l.Mu, l.SigmaSq = r.Loser.Mu, r.Loser.SigmaSq
				jj.Alpha, jj.Beta = r.Judge.Alpha, r.Judge.Beta
				jj.Votes++

				// Each exposure counts toward Votes once, even when the project is
				// compared again as the previous side of the following vote.
				cur.Votes++
				if !jj.PrevVoted {
					prev.Votes++
				}
				jj.NextVoted, jj.PrevVoted = true, true
				cur.LastActivity, prev.LastActivity = now, now
			}
			winner, loser = *w, *l
			return nil
		}

		if err := s.store.Commit(ctx, repository.Batch{
			Judges:    []model.Judge{j},
			Mutations: []repository.Mutation{{Projects: []string{j.Next, j.Prev}, Apply: rate}},
		}); err != nil {
			return err
		}
		winner.Version++
		loser.Version++
		res = VoteResult{Pointer: pointer(&j), Winner: winner, Loser: loser, Applied: applied}
		return nil
	})
	if err != nil {
		return VoteResult{}, err
	}
	for _, fn := range onCommit {
		fn(res)
	}

	if res.Applied {
		metrics.RecordVote(shift)
	}
	s.log.Debug(ctx, "vote",
		logger.String("judge", judgeID),
		logger.String("winner", res.Winner.ID),
		logger.String("loser", res.Loser.ID),
		logger.Bool("applied", res.Applied),
	)
	return res, nil
}

// Flag flags the judge's current project and ends the assignment.
func (s *Scheduler) Flag(ctx context.Context, judgeID string, reason model.FlagReason) (model.Flag, error) {
	unlock := s.lockJudge(judgeID)
	defer unlock()

	j, err := s.assignedJudge(ctx, judgeID)
	if err != nil {
		return model.Flag{}, err
	}
	f, err := s.flagger.Flag(ctx, j.Next, j.ID, reason)
	if err != nil {
		return model.Flag{}, err
	}
	if _, err := s.release(ctx, judgeID, j.Next); err != nil {
		return model.Flag{}, err
	}
	return f, nil
}

// Skip ends the assignment without a comparison. The project stays seen.
func (s *Scheduler) Skip(ctx context.Context, judgeID string) (types.PointerState, error) {
	unlock := s.lockJudge(judgeID)
	defer unlock()

	j, err := s.assignedJudge(ctx, judgeID)
	if err != nil {
		return types.PointerState{}, err
	}
	st, err := s.release(ctx, judgeID, j.Next)
	if err != nil {
		return types.PointerState{}, err
	}
	metrics.RecordSkip()
	return st, nil
}

// release clears Next when it still points at projectID.
func (s *Scheduler) release(ctx context.Context, judgeID, projectID string) (types.PointerState, error) {
	j, err := s.store.UpdateJudge(ctx, judgeID, func(j *model.Judge) error {
		if j.State != model.StateAssigned || j.Next != projectID {
			return fmt.Errorf("%w: %q", ErrNotAssigned, judgeID)
		}
		j.Next, j.NextVoted = "", false
		j.State = model.StateIdle
		j.LastActivity = s.now()
		return nil
	})
	if err != nil {
		return types.PointerState{}, err
	}
	return pointer(&j), nil
}

// Busy undoes the current assignment as if it never happened and assigns
// another project. The busy project is avoided for this one selection only.
//
// When the window has closed or nothing is eligible the rollback is still
// committed and the judge is left idle.
func (s *Scheduler) Busy(ctx context.Context, judgeID string) (model.Project, error) {
	unlock := s.lockJudge(judgeID)
	defer unlock()

	var out model.Project
	err := s.retry(ctx, "busy", func() error {
		j, err := s.assignedJudge(ctx, judgeID)
		if err != nil {
			return err
		}
		busy, err := s.store.GetProject(ctx, j.Next)
		if err != nil {
			return err
		}

		j.Unsee(busy.ID)
		j.Next, j.NextVoted = "", false
		j.State = model.StateIdle
		if s.rotating() && j.CurrentGroupCount > 0 {
			j.CurrentGroupCount--
		}

		rollback := repository.Batch{
			Judges:    []model.Judge{j},
			Mutations: []repository.Mutation{withdraw(busy.ID)},
		}
		if !s.windowOpen() {
			if err := s.store.Commit(ctx, rollback); err != nil {
				return err
			}
			return ErrWindowClosed
		}

		p, err := s.pick(ctx, &j, busy.ID)
		switch {
		case errors.Is(err, ErrNoEligibleProjects):
			if err := s.store.Commit(ctx, rollback); err != nil {
				return err
			}
			return err
		case err != nil:
			return err
		}

		if p.ID == busy.ID {
			// Only the busy project is eligible: keep the assignment as it was.
			out = busy
			return nil
		}

		now := s.now()
		s.point(&j, p.ID, now)
		var written model.Project
		if err := s.store.Commit(ctx, repository.Batch{
			Judges:    []model.Judge{j},
			Mutations: []repository.Mutation{withdraw(busy.ID), expose(p.ID, now, &written)},
		}); err != nil {
			return err
		}
		written.Version++
		out = written
		return nil
	})
	if err != nil {
		metrics.RecordAssignmentFailure(failureReason(err))
		return model.Project{}, err
	}

	metrics.RecordBusy()
	metrics.RecordAssignment("busy_reassigned")
	return out, nil
}

// Advance ends the very first assignment, which has nothing to compare against.
func (s *Scheduler) Advance(ctx context.Context, judgeID string) (types.PointerState, error) {
	unlock := s.lockJudge(judgeID)
	defer unlock()

	if _, err := s.activeJudge(ctx, judgeID); err != nil {
		return types.PointerState{}, err
	}
	j, err := s.store.UpdateJudge(ctx, judgeID, func(j *model.Judge) error {
		if j.State != model.StateAssigned {
			return fmt.Errorf("%w: %q", ErrNotAssigned, judgeID)
		}
		if j.Prev != "" {
			return fmt.Errorf("%w: %q", ErrVoteRequired, judgeID)
		}
		j.State = model.StateIdle
		j.LastActivity = s.now()
		return nil
	})
	if err != nil {
		return types.PointerState{}, err
	}
	return pointer(&j), nil
}

// MoveJudge moves a judge into another group. An outstanding assignment is
// dropped the way a skip would drop it.
func (s *Scheduler) MoveJudge(ctx context.Context, judgeID string, group int) (model.Judge, error) {
	if group < 0 || group >= max(len(s.groups), 1) {
		return model.Judge{}, fmt.Errorf("%w: %d", ErrInvalidGroup, group)
	}
	unlock := s.lockJudge(judgeID)
	defer unlock()

	j, err := s.store.UpdateJudge(ctx, judgeID, func(j *model.Judge) error {
		j.Group = group
		j.CurrentGroupCount = 0
		if j.State == model.StateAssigned {
			j.Next, j.NextVoted = "", false
			j.State = model.StateIdle
		}
		return nil
	})
	if err != nil {
		return model.Judge{}, err
	}
	s.log.Info(ctx, "judge moved", logger.String("judge", judgeID), logger.Int("group", group))
	return j, nil
}

// Star sets the judge's private rating of a project they have seen. Zero
// clears it. Stars never touch the ranking.
func (s *Scheduler) Star(ctx context.Context, judgeID, projectID string, stars int) (model.Judge, error) {
	if stars < 0 || stars > model.MaxStars {
		return model.Judge{}, fmt.Errorf("%w: %d", ErrInvalidStars, stars)
	}
	unlock := s.lockJudge(judgeID)
	defer unlock()

	if _, err := s.activeJudge(ctx, judgeID); err != nil {
		return model.Judge{}, err
	}
	return s.store.UpdateJudge(ctx, judgeID, func(j *model.Judge) error {
		if !j.HasSeen(projectID) {
			return fmt.Errorf("%w: %q", ErrNotSeen, projectID)
		}
		j.SetStars(projectID, stars)
		return nil
	})
}

// HideJudge stops a judge from receiving assignments.
func (s *Scheduler) HideJudge(ctx context.Context, judgeID string) (model.Judge, error) {
	return s.setJudgeActive(ctx, judgeID, false)
}

// UnhideJudge re-enables a hidden judge.
func (s *Scheduler) UnhideJudge(ctx context.Context, judgeID string) (model.Judge, error) {
	return s.setJudgeActive(ctx, judgeID, true)
}

func (s *Scheduler) setJudgeActive(ctx context.Context, judgeID string, active bool) (model.Judge, error) {
	unlock := s.lockJudge(judgeID)
	defer unlock()

	return s.store.UpdateJudge(ctx, judgeID, func(j *model.Judge) error {
		j.Active = active
		return nil
	})
}

// HideProject removes a project from the assignable pool.
func (s *Scheduler) HideProject(ctx context.Context, projectID string) (model.Project, error) {
	return s.store.UpdateProject(ctx, projectID, func(p *model.Project) error {
		p.Active = false
		return nil
	})
}

// UnhideProject returns a project to the assignable pool.
func (s *Scheduler) UnhideProject(ctx context.Context, projectID string) (model.Project, error) {
	return s.store.UpdateProject(ctx, projectID, func(p *model.Project) error {
		p.Active = true
		return nil
	})
}

// PrioritizeProject sets or clears the prioritized override.
func (s *Scheduler) PrioritizeProject(ctx context.Context, projectID string, prioritized bool) (model.Project, error) {
	return s.store.UpdateProject(ctx, projectID, func(p *model.Project) error {
		p.Prioritized = prioritized
		return nil
	})
}
