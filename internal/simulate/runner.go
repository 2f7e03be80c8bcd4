package simulate

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	service "github.com/okian/jury/internal/app"
	"github.com/okian/jury/internal/domain/assignment"
	"github.com/okian/jury/internal/domain/model"
	"github.com/okian/jury/pkg/logger"
)

// Run executes one simulated event against an in-process engine.
// Judges run concurrently until every judge has exhausted its projects or
// reached MaxActions. opts are applied after the simulation's own options.
func Run(ctx context.Context, cfg Config, opts ...service.Option) (Report, error) {
	if err := cfg.validate(); err != nil {
		return Report{}, err
	}
	log := logger.Get().Named("simulate")
	stats := Stats{StartTime: time.Now()}

	log.Info(ctx, "starting judging simulation",
		logger.Int("projects", cfg.Projects),
		logger.Int("judges", cfg.Judges),
		logger.Int("groups", cfg.Groups),
		logger.Float64("accuracy", cfg.Accuracy),
		logger.Any("seed", cfg.Seed),
	)

	// Step 1: Bring up the engine
	svcOpts := []service.Option{
		service.WithLogger(log),
		service.WithGroups(groups(cfg)),
		service.WithGroupRotation(cfg.GroupSwitch),
		service.WithStoreLatency(cfg.StoreLatency),
	}
	svc := service.New(append(svcOpts, opts...)...)
	if err := svc.Start(ctx); err != nil {
		return Report{}, fmt.Errorf("start service: %w", err)
	}
	stopped := false
	defer func() {
		if !stopped {
			svc.Stop()
		}
	}()
	svc.StartClock(ctx)

	// Step 2: Seed projects with hidden quality and judges
	quality, err := seed(ctx, svc, cfg)
	if err != nil {
		return Report{}, err
	}

	// Step 3: Judge concurrently
	perJudge := make([]Stats, cfg.Judges)
	g, gctx := errgroup.WithContext(ctx)
	for i := range cfg.Judges {
		jd := &judge{
			id:      judgeID(i),
			svc:     svc,
			cfg:     cfg,
			quality: quality,
			rng:     rand.New(rand.NewPCG(cfg.Seed, uint64(i)+1)),
			stats:   &perJudge[i],
			log:     log,
		}
		g.Go(func() error { return jd.run(gctx) })
	}
	if err := g.Wait(); err != nil {
		return Report{}, fmt.Errorf("judging: %w", err)
	}
	for _, s := range perJudge {
		stats.add(s)
	}

	// Step 4: Drain projections
	svc.StopClock(ctx)
	svc.Stop()
	stopped = true

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	// Step 5: Verify
	report, err := verify(ctx, svc, cfg, quality)
	if err != nil {
		return Report{}, fmt.Errorf("verification: %w", err)
	}
	report.Stats = stats

	displayFinalStats(ctx, log, report)
	return report, nil
}

// groups splits the location range [0, Projects) into equal contiguous ranges.
func groups(cfg Config) []model.Group {
	if cfg.Groups < 2 {
		return nil
	}
	out := make([]model.Group, cfg.Groups)
	size := cfg.Projects / cfg.Groups
	for i := range out {
		out[i] = model.Group{Start: i * size, End: (i + 1) * size}
	}
	out[len(out)-1].End = cfg.Projects
	return out
}

func projectID(i int) string { return "p" + strconv.Itoa(i) }
func judgeID(i int) string   { return "j" + strconv.Itoa(i) }

// seed creates the projects and judges. Project i sits at location i; its
// hidden quality is drawn from a standard normal.
func seed(ctx context.Context, svc *service.Service, cfg Config) (map[string]float64, error) {
	rng := rand.New(rand.NewPCG(cfg.Seed, 0))
	quality := make(map[string]float64, cfg.Projects)
	for i := range cfg.Projects {
		id := projectID(i)
		if _, err := svc.CreateProject(ctx, model.Project{
			ID:       id,
			Name:     "Project " + strconv.Itoa(i),
			Location: i,
		}); err != nil {
			return nil, fmt.Errorf("create project %s: %w", id, err)
		}
		quality[id] = rng.NormFloat64()
	}
	for i := range cfg.Judges {
		group := 0
		if cfg.Groups > 1 {
			group = i % cfg.Groups
		}
		if _, err := svc.CreateJudge(ctx, model.Judge{
			ID:    judgeID(i),
			Name:  "Judge " + strconv.Itoa(i),
			Group: group,
		}); err != nil {
			return nil, fmt.Errorf("create judge %s: %w", judgeID(i), err)
		}
	}
	return quality, nil
}

// judge is one simulated judge. prev and next mirror the engine's pointers.
type judge struct {
	id      string
	svc     *service.Service
	cfg     Config
	quality map[string]float64
	rng     *rand.Rand
	stats   *Stats
	log     logger.Logger

	prev, next string
}

func (j *judge) run(ctx context.Context) error {
	for actions := 0; j.cfg.MaxActions == 0 || actions < j.cfg.MaxActions; actions++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		a, err := j.svc.GetNext(ctx, j.id)
		switch {
		case errors.Is(err, assignment.ErrNoEligibleProjects):
			return nil
		case err != nil:
			j.stats.Errors++
			return fmt.Errorf("judge %s get next: %w", j.id, err)
		}
		if a.ProjectID != j.next {
			if j.next != "" {
				j.prev = j.next
			}
			j.next = a.ProjectID
			j.stats.Assignments++
		}
		if err := j.act(ctx); err != nil {
			j.stats.Errors++
			return fmt.Errorf("judge %s: %w", j.id, err)
		}
	}
	return nil
}

// act performs one action on the current assignment.
func (j *judge) act(ctx context.Context) error {
	r := j.rng.Float64()
	switch {
	case r < j.cfg.FlagRate:
		reason := model.FlagReasons[j.rng.IntN(len(model.FlagReasons))]
		if _, err := j.svc.Flag(ctx, j.id, reason); err != nil {
			return fmt.Errorf("flag: %w", err)
		}
		j.stats.Flags++
		j.trace(ctx, "flag", logger.String("reason", string(reason)))
		j.next = ""
		return nil

	case r < j.cfg.FlagRate+j.cfg.SkipRate:
		if _, err := j.svc.Skip(ctx, j.id); err != nil {
			return fmt.Errorf("skip: %w", err)
		}
		j.stats.Skips++
		j.trace(ctx, "skip")
		j.next = ""
		return nil

	case r < j.cfg.FlagRate+j.cfg.SkipRate+j.cfg.BusyRate:
		a, err := j.svc.Busy(ctx, j.id)
		switch {
		case errors.Is(err, assignment.ErrNoEligibleProjects):
			// Rolled back; the judge asks again and may get it once more.
			j.next = ""
		case err != nil:
			return fmt.Errorf("busy: %w", err)
		default:
			j.next = a.ProjectID
			j.stats.Assignments++
		}
		j.stats.Busy++
		j.trace(ctx, "busy")
		return nil
	}

	if j.prev == "" {
		if _, err := j.svc.Advance(ctx, j.id); err != nil {
			return fmt.Errorf("advance: %w", err)
		}
		j.stats.Advances++
		j.trace(ctx, "advance")
		return nil
	}

	choice := assignment.ChoicePrevious
	if j.quality[j.next] > j.quality[j.prev] {
		choice = assignment.ChoiceCurrent
	}
	if j.rng.Float64() >= j.cfg.Accuracy {
		choice = flip(choice)
	}
	requestID := strconv.Itoa(j.stats.Votes)
	if _, err := j.svc.Vote(ctx, j.id, choice, requestID); err != nil {
		return fmt.Errorf("vote: %w", err)
	}
	j.stats.Votes++
	j.trace(ctx, "vote", logger.String("choice", string(choice)))
	return nil
}

func flip(c assignment.Choice) assignment.Choice {
	if c == assignment.ChoiceCurrent {
		return assignment.ChoicePrevious
	}
	return assignment.ChoiceCurrent
}

func (j *judge) trace(ctx context.Context, action string, fields ...logger.Field) {
	if !j.cfg.Verbose {
		return
	}
	j.log.Debug(ctx, action, append([]logger.Field{
		logger.String("judge", j.id),
		logger.String("prev", j.prev),
		logger.String("next", j.next),
	}, fields...)...)
}

// displayFinalStats logs the run summary.
func displayFinalStats(ctx context.Context, log logger.Logger, r Report) {
	var votesPerSecond float64
	if r.Stats.Duration > 0 {
		votesPerSecond = float64(r.Stats.Votes) / r.Stats.Duration.Seconds()
	}
	log.Info(ctx, "final statistics",
		logger.Int("assignments", r.Stats.Assignments),
		logger.Int("votes", r.Stats.Votes),
		logger.Int("advances", r.Stats.Advances),
		logger.Int("skips", r.Stats.Skips),
		logger.Int("busy", r.Stats.Busy),
		logger.Int("flags", r.Stats.Flags),
		logger.Int("errors", r.Stats.Errors),
		logger.Duration("duration", r.Stats.Duration),
		logger.Float64("votesPerSecond", votesPerSecond),
		logger.Float64("spearman", r.Spearman),
		logger.Float64("topOverlap", r.TopOverlap),
		logger.Int("violations", len(r.Violations)),
	)
}
