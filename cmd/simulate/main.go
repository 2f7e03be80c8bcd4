package main

import (
	"context"
	"flag"
	"os"
	"strconv"
	"time"

	"github.com/okian/jury/internal/simulate"
	"github.com/okian/jury/pkg/logger"
)

const defaultRunTimeout = 10 * time.Minute

func main() {
	os.Exit(run())
}

func run() int {
	def := simulate.DefaultConfig()
	var (
		projects   = flag.Int("projects", def.Projects, "Number of projects")
		judges     = flag.Int("judges", def.Judges, "Number of concurrent judges")
		groups     = flag.Int("groups", def.Groups, "Number of location groups (0 or 1 disables grouping)")
		switchN    = flag.Int("group-switch", def.GroupSwitch, "Rotate judges to the next group after this many projects (0 disables)")
		accuracy   = flag.Float64("accuracy", def.Accuracy, "Probability a judge picks the better project")
		skipRate   = flag.Float64("skip", def.SkipRate, "Probability of skipping an assignment")
		busyRate   = flag.Float64("busy", def.BusyRate, "Probability of finding a project busy")
		flagRate   = flag.Float64("flag", def.FlagRate, "Probability of flagging a project")
		maxActions = flag.Int("max-actions", def.MaxActions, "Per-judge action cap (0 runs until exhaustion)")
		latency    = flag.Duration("latency", def.StoreLatency, "Simulated store round trip")
		seed       = flag.Uint64("seed", def.Seed, "Random seed")
		topN       = flag.Int("top", def.TopN, "Top N used for the overlap score")
		timeout    = flag.Duration("timeout", defaultRunTimeout, "Overall run timeout")
		verbose    = flag.Bool("verbose", false, "Log every judge action")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return 1
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	report, err := simulate.Run(ctx, simulate.Config{
		Projects:     *projects,
		Judges:       *judges,
		Groups:       *groups,
		GroupSwitch:  *switchN,
		Accuracy:     *accuracy,
		SkipRate:     *skipRate,
		BusyRate:     *busyRate,
		FlagRate:     *flagRate,
		MaxActions:   *maxActions,
		StoreLatency: *latency,
		Seed:         *seed,
		TopN:         *topN,
		Verbose:      *verbose,
	})
	if err != nil {
		logger.Get().Error(ctx, "simulation failed", logger.Error(err))
		return 1
	}

	for _, v := range report.Violations {
		logger.Get().Error(ctx, "invariant violated", logger.String("detail", v))
	}
	if len(report.Violations) > 0 {
		os.Stderr.WriteString(strconv.Itoa(len(report.Violations)) + " invariant violations\n")
		return 1
	}
	return 0
}
