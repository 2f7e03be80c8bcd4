// Package service wires the judging engine together and implements the
// dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	eventqueue "github.com/okian/jury/internal/adapters/mq/queue"
	workerpool "github.com/okian/jury/internal/adapters/mq/worker"
	"github.com/okian/jury/internal/adapters/repository"
	"github.com/okian/jury/internal/adapters/repository/sqlite"
	"github.com/okian/jury/internal/config"
	"github.com/okian/jury/internal/domain/assignment"
	"github.com/okian/jury/internal/domain/clock"
	"github.com/okian/jury/internal/domain/crowdbt"
	"github.com/okian/jury/internal/domain/dedupe"
	"github.com/okian/jury/internal/domain/flagging"
	"github.com/okian/jury/internal/domain/model"
	"github.com/okian/jury/internal/domain/types"
	"github.com/okian/jury/pkg/logger"
	"github.com/okian/jury/pkg/metrics"
)

// Service implements the API dependencies for one judging event.
type Service struct {
	mu sync.RWMutex

	// Engine
	store     repository.Store
	clock     *clock.Controller
	flags     *flagging.Handler
	scheduler *assignment.Scheduler
	votes     dedupe.Deduper[types.PointerState]

	// Projections
	leaderboard *repository.Leaderboard
	eventQueue  eventqueue.Queue
	workerPool  *workerpool.Pool
	archive     *sqlite.FlagArchive

	// Configuration
	workerCount  int
	queueSize    int
	dedupeSize   int
	groups       []model.Group
	groupSwitch  int
	judgingTimer time.Duration
	ignoreClock  bool
	maxRetries   int
	priors       priors
	maxMuStep    float64
	sigmaFloor   float64
	storeLatency time.Duration
	archivePath  string

	// State
	started bool

	logger logger.Logger
}

type priors struct {
	mu, sigmaSq, alpha, beta float64
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of projection workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the projection queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many vote request ids are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithGroups partitions judges into location ranges.
func WithGroups(groups []model.Group) Option {
	return func(s *Service) {
		s.groups = groups
	}
}

// WithGroupRotation moves judges to the next group after n assignments in
// their current one. 0 disables rotation.
func WithGroupRotation(n int) Option {
	return func(s *Service) {
		s.groupSwitch = n
	}
}

// WithJudgingTimer sets the suggested time a judge spends per project.
func WithJudgingTimer(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.judgingTimer = d
		}
	}
}

// WithIgnoreClock lets judges receive assignments while the clock is stopped.
func WithIgnoreClock(ignore bool) Option {
	return func(s *Service) {
		s.ignoreClock = ignore
	}
}

// WithMaxRetries bounds optimistic-conflict retries per operation.
func WithMaxRetries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// WithPriors sets the starting skill estimate for projects and the starting
// reliability for judges.
func WithPriors(mu, sigmaSq, alpha, beta float64) Option {
	return func(s *Service) {
		if sigmaSq > 0 && alpha > 0 && beta > 0 {
			s.priors = priors{mu: mu, sigmaSq: sigmaSq, alpha: alpha, beta: beta}
		}
	}
}

// WithRaterBounds sets the rater's per-vote mu step cap and variance floor.
func WithRaterBounds(maxMuStep, sigmaFloor float64) Option {
	return func(s *Service) {
		s.maxMuStep = maxMuStep
		s.sigmaFloor = sigmaFloor
	}
}

// WithStoreLatency simulates a storage round trip on every store call.
func WithStoreLatency(d time.Duration) Option {
	return func(s *Service) {
		s.storeLatency = d
	}
}

// WithFlagArchive enables the SQLite flag archive at path.
func WithFlagArchive(path string) Option {
	return func(s *Service) {
		s.archivePath = path
	}
}

// WithConfig applies every engine setting from cfg.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg == nil {
			return
		}
		for _, opt := range []Option{
			WithWorkerCount(cfg.WorkerCount),
			WithQueueSize(cfg.EventQueueSize),
			WithDedupeSize(cfg.DedupeSize),
			WithGroups(cfg.ActiveGroups()),
			WithGroupRotation(cfg.GroupSwitchAfter),
			WithJudgingTimer(time.Duration(cfg.JudgingTimerSeconds) * time.Second),
			WithIgnoreClock(cfg.IgnoreClock),
			WithMaxRetries(cfg.MaxRetries),
			WithPriors(cfg.MuPrior, cfg.SigmaSqPrior, cfg.AlphaPrior, cfg.BetaPrior),
			WithRaterBounds(cfg.MaxMuStep, cfg.SigmaFloor),
			WithStoreLatency(time.Duration(cfg.StoreLatencyMS) * time.Millisecond),
			WithFlagArchive(cfg.FlagArchivePath),
		} {
			opt(s)
		}
	}
}

// New constructs a Service. The engine is usable immediately; Start brings
// up the projection pipeline.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:  runtime.NumCPU(),
		queueSize:    10000,
		dedupeSize:   50000,
		maxRetries:   5,
		judgingTimer: 5 * time.Minute,
		priors:       priors{mu: crowdbt.MuPrior, sigmaSq: crowdbt.SigmaSqPrior, alpha: crowdbt.AlphaPrior, beta: crowdbt.BetaPrior},
		logger:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.store = repository.NewMemStore(repository.WithLatency(s.storeLatency))
	s.clock = clock.New()
	s.flags = flagging.New(s.store, flagging.WithLogger(s.logger.Named("flagging")))
	s.scheduler = assignment.New(s.store, s.clock, s.flags,
		crowdbt.New(crowdbt.WithMaxMuStep(s.maxMuStep), crowdbt.WithSigmaFloor(s.sigmaFloor)),
		assignment.WithGroups(s.groups),
		assignment.WithGroupRotation(s.groupSwitch),
		assignment.WithIgnoreClock(s.ignoreClock),
		assignment.WithMaxRetries(s.maxRetries),
		assignment.WithLogger(s.logger.Named("scheduler")),
	)
	s.votes = dedupe.NewInMemoryDeduper[types.PointerState](dedupe.WithMaxSize(s.dedupeSize))
	s.leaderboard = repository.NewLeaderboard()
	return s
}

// Start opens the flag archive, rebuilds the leaderboard from the store and
// starts the projection workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting jury service...")

	var archiver workerpool.Archiver
	if s.archivePath != "" {
		a, err := sqlite.Open(s.archivePath)
		if err != nil {
			return fmt.Errorf("flag archive: %w", err)
		}
		s.archive = a
		archiver = a
		s.logger.Info(ctx, "flag archive enabled", logger.String("path", s.archivePath))
	}

	if err := s.rebuildLeaderboard(ctx); err != nil {
		if s.archive != nil {
			_ = s.archive.Close()
			s.archive = nil
		}
		return err
	}

	s.eventQueue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.workerPool = workerpool.NewPool(s.workerCount, s.eventQueue, s.leaderboard, archiver, s.logger)
	s.workerPool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "jury service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Int("groups", len(s.groups)),
		logger.Int("groupSwitch", s.groupSwitch),
	)
	return nil
}

// Stop drains the projection queue and closes the flag archive.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping jury service...")

	if err := s.workerPool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown", logger.Error(err))
	}
	if s.archive != nil {
		if err := s.archive.Close(); err != nil {
			s.logger.Warn(ctx, "closing flag archive", logger.Error(err))
		}
		s.archive = nil
	}

	s.started = false
	s.logger.Info(ctx, "jury service stopped")
}

func (s *Service) rebuildLeaderboard(ctx context.Context) error {
	projects, err := s.store.ListActive(ctx, nil)
	if err != nil {
		return fmt.Errorf("rebuild leaderboard: %w", err)
	}
	for _, p := range projects {
		s.leaderboard.Set(ctx, p.ID, p.Mu, p.Version)
	}
	metrics.UpdateLeaderboardSize(s.leaderboard.Count())
	return nil
}

// publish hands a projection event to the workers. Events are dropped
// before Start and after Stop; Start rebuilds from the store.
func (s *Service) publish(ctx context.Context, e model.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return
	}
	e.TS = time.Now()
	if !s.eventQueue.Enqueue(ctx, e) {
		s.logger.Warn(ctx, "projection event dropped",
			logger.String("kind", string(e.Kind)),
			logger.String("project", e.ProjectID),
		)
	}
}

func (s *Service) publishProject(ctx context.Context, kind model.EventKind, p model.Project) {
	s.publish(ctx, model.Event{Kind: kind, ProjectID: p.ID, Mu: p.Mu, SigmaSq: p.SigmaSq, Active: p.Active, Version: p.Version})
}

// CreateProject registers a project with the configured priors. It starts active.
func (s *Service) CreateProject(ctx context.Context, p model.Project) (model.Project, error) {
	p.Mu, p.SigmaSq = s.priors.mu, s.priors.sigmaSq
	p.Votes, p.Seen = 0, 0
	p.Active = true
	p.LastActivity = time.Now()
	created, err := s.store.CreateProject(ctx, p)
	if err != nil {
		return model.Project{}, err
	}
	s.publishProject(ctx, model.EventVisibilityChanged, created)
	return created, nil
}

// CreateJudge registers an active, idle judge with the configured priors.
func (s *Service) CreateJudge(ctx context.Context, j model.Judge) (model.Judge, error) {
	if j.Group < 0 || j.Group >= max(len(s.groups), 1) {
		return model.Judge{}, fmt.Errorf("%w: %d", assignment.ErrInvalidGroup, j.Group)
	}
	j.Alpha, j.Beta = s.priors.alpha, s.priors.beta
	j.Votes = 0
	j.SeenProjects = nil
	j.Stars = nil
	j.VisitedGroups, j.CurrentGroupCount = nil, 0
	j.Next, j.Prev = "", ""
	j.NextVoted, j.PrevVoted = false, false
	j.Active = true
	j.State = model.StateIdle
	j.LastActivity = time.Now()
	return s.store.CreateJudge(ctx, j)
}

// GetNext returns the project the judge should visit.
func (s *Service) GetNext(ctx context.Context, judgeID string) (types.Assignment, error) {
	p, err := s.scheduler.GetNext(ctx, judgeID)
	if err != nil {
		return types.Assignment{}, err
	}
	return toAssignment(p), nil
}

// Vote records the judge's verdict. A non-empty requestID makes the call
// idempotent: a retried submission replays the first result.
func (s *Service) Vote(ctx context.Context, judgeID string, choice assignment.Choice, requestID string) (types.PointerState, error) {
	key := ""
	if requestID != "" {
		key = judgeID + "/" + requestID
		if st, ok := s.votes.Lookup(ctx, key); ok {
			metrics.RecordVoteDuplicate()
			return st, nil
		}
	}

	var hooks []func(assignment.VoteResult)
	if key != "" {
		// Recorded under the judge lock: a retry that queued behind this
		// vote finds the key once it gets the lock.
		hooks = append(hooks, func(r assignment.VoteResult) {
			s.votes.Record(ctx, key, r.Pointer)
		})
	}
	res, err := s.scheduler.Vote(ctx, judgeID, choice, hooks...)
	if err != nil {
		// A concurrent retry of the same request may have won the judge lock.
		if key != "" && errors.Is(err, assignment.ErrNotAssigned) {
			if st, ok := s.votes.Lookup(ctx, key); ok {
				metrics.RecordVoteDuplicate()
				return st, nil
			}
		}
		return types.PointerState{}, err
	}
	if res.Applied {
		s.publishProject(ctx, model.EventRatingChanged, res.Winner)
		s.publishProject(ctx, model.EventRatingChanged, res.Loser)
	}
	return res.Pointer, nil
}

// Flag flags the judge's current project.
func (s *Service) Flag(ctx context.Context, judgeID string, reason model.FlagReason) (model.Flag, error) {
	f, err := s.scheduler.Flag(ctx, judgeID, reason)
	if err != nil {
		return model.Flag{}, err
	}
	fc := f
	e := model.Event{Kind: model.EventFlagged, ProjectID: f.ProjectID, Flag: &fc}
	if p, err := s.store.GetProject(ctx, f.ProjectID); err == nil {
		e.Mu, e.SigmaSq, e.Active, e.Version = p.Mu, p.SigmaSq, p.Active, p.Version
	}
	s.publish(ctx, e)
	return f, nil
}

// Skip ends the judge's assignment without a comparison.
func (s *Service) Skip(ctx context.Context, judgeID string) (types.PointerState, error) {
	return s.scheduler.Skip(ctx, judgeID)
}

// Busy undoes the judge's assignment and returns a replacement.
func (s *Service) Busy(ctx context.Context, judgeID string) (types.Assignment, error) {
	p, err := s.scheduler.Busy(ctx, judgeID)
	if err != nil {
		return types.Assignment{}, err
	}
	return toAssignment(p), nil
}

// Advance ends the judge's first assignment.
func (s *Service) Advance(ctx context.Context, judgeID string) (types.PointerState, error) {
	return s.scheduler.Advance(ctx, judgeID)
}

// StartClock opens the judging window.
func (s *Service) StartClock(_ context.Context) model.ClockState {
	st := s.clock.Start()
	s.logger.Info(context.Background(), "clock started", logger.Float64("time", st.Time))
	return st
}

// StopClock closes the judging window.
func (s *Service) StopClock(_ context.Context) model.ClockState {
	st := s.clock.Stop()
	s.logger.Info(context.Background(), "clock stopped", logger.Float64("time", st.Time))
	return st
}

// ResetClock zeroes and stops the clock.
func (s *Service) ResetClock(_ context.Context) model.ClockState {
	return s.clock.Reset()
}

// Clock returns the current clock state.
func (s *Service) Clock(_ context.Context) model.ClockState {
	return s.clock.Get()
}

// Star sets the judge's private rating of a project they have seen.
func (s *Service) Star(ctx context.Context, judgeID, projectID string, stars int) error {
	_, err := s.scheduler.Star(ctx, judgeID, projectID, stars)
	return err
}

// JudgedProjects lists the projects the judge has finished with, in the
// order they were shown, along with the judge's stars.
func (s *Service) JudgedProjects(ctx context.Context, judgeID string) ([]types.JudgedProject, error) {
	j, err := s.store.GetJudge(ctx, judgeID)
	if err != nil {
		return nil, err
	}
	out := make([]types.JudgedProject, 0, len(j.SeenProjects))
	for _, id := range j.SeenProjects {
		if j.State == model.StateAssigned && id == j.Next {
			continue
		}
		p, err := s.store.GetProject(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, types.JudgedProject{
			ProjectID:   p.ID,
			Name:        p.Name,
			Location:    p.Location,
			Description: p.Description,
			Stars:       j.Stars[id],
		})
	}
	return out, nil
}

// JudgingTimer is the suggested time a judge spends per project.
func (s *Service) JudgingTimer() time.Duration {
	return s.judgingTimer
}

// MoveJudge moves a judge into another group.
func (s *Service) MoveJudge(ctx context.Context, judgeID string, group int) (model.Judge, error) {
	return s.scheduler.MoveJudge(ctx, judgeID, group)
}

// HideJudge stops a judge from receiving assignments.
func (s *Service) HideJudge(ctx context.Context, judgeID string) (model.Judge, error) {
	return s.scheduler.HideJudge(ctx, judgeID)
}

// UnhideJudge re-enables a judge.
func (s *Service) UnhideJudge(ctx context.Context, judgeID string) (model.Judge, error) {
	return s.scheduler.UnhideJudge(ctx, judgeID)
}

// HideProject removes a project from selection and the rankings.
func (s *Service) HideProject(ctx context.Context, projectID string) (model.Project, error) {
	p, err := s.scheduler.HideProject(ctx, projectID)
	if err != nil {
		return model.Project{}, err
	}
	s.publishProject(ctx, model.EventVisibilityChanged, p)
	return p, nil
}

// UnhideProject returns a project to selection and the rankings.
func (s *Service) UnhideProject(ctx context.Context, projectID string) (model.Project, error) {
	p, err := s.scheduler.UnhideProject(ctx, projectID)
	if err != nil {
		return model.Project{}, err
	}
	s.publishProject(ctx, model.EventVisibilityChanged, p)
	return p, nil
}

// PrioritizeProject marks a project to be assigned ahead of the others.
func (s *Service) PrioritizeProject(ctx context.Context, projectID string, prioritized bool) (model.Project, error) {
	return s.scheduler.PrioritizeProject(ctx, projectID, prioritized)
}

// Projects lists every project ordered by id.
func (s *Service) Projects(ctx context.Context) ([]model.Project, error) {
	return s.store.ListProjects(ctx)
}

// Judges lists every judge ordered by id.
func (s *Service) Judges(ctx context.Context) ([]model.Judge, error) {
	return s.store.ListJudges(ctx)
}

// Flags lists every recorded flag with display fields filled in.
func (s *Service) Flags(ctx context.Context) ([]model.Flag, error) {
	return s.flags.List(ctx)
}

// TopN returns the top n active projects by mu.
func (s *Service) TopN(ctx context.Context, n int) ([]types.Entry, error) {
	return s.leaderboard.TopN(ctx, n)
}

// Rank returns the rank and mu of one project.
func (s *Service) Rank(ctx context.Context, projectID string) (types.Entry, error) {
	return s.leaderboard.Rank(ctx, projectID)
}

// Stats summarizes project coverage and skill estimates.
func (s *Service) Stats(ctx context.Context) (types.Stats, error) {
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return types.Stats{}, err
	}
	judges, err := s.store.ListJudges(ctx)
	if err != nil {
		return types.Stats{}, err
	}

	st := types.Stats{Projects: len(projects), Judges: len(judges)}
	active := 0
	if len(projects) > 0 {
		st.MaxMu = math.Inf(-1)
		var seen, votes, sigma float64
		for _, p := range projects {
			seen += float64(p.Seen)
			votes += float64(p.Votes)
			sigma += p.SigmaSq
			st.MaxMu = math.Max(st.MaxMu, p.Mu)
			if p.Active {
				active++
			}
		}
		n := float64(len(projects))
		st.AvgSeen, st.AvgVotes, st.AvgSigma = seen/n, votes/n, sigma/n
	}
	metrics.UpdatePopulation(len(projects), active, len(judges))
	return st, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]any{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
		"votesCached": s.votes.Size(),
		"clock":       s.clock.Get(),
	}
	if s.started {
		queueLen := s.eventQueue.Len(ctx)
		ranked := s.leaderboard.Count()
		stats["queueLength"] = queueLen
		stats["rankedProjects"] = ranked

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateLeaderboardSize(ranked)
	}
	return stats
}

func toAssignment(p model.Project) types.Assignment {
	return types.Assignment{
		ProjectID:   p.ID,
		Name:        p.Name,
		Location:    p.Location,
		Description: p.Description,
	}
}
