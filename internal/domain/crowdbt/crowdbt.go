// Package crowdbt implements the CrowdBT pairwise rating update: a Bradley-Terry
// model where every comparison is weighted by the judge's reliability.
//
// Skills are Gaussian (Mu, SigmaSq). A judge agrees with the "true" ordering with
// probability Alpha/(Alpha+Beta); the update moves the winner up and the loser down
// by the surprise of the outcome and shrinks both variances.
package crowdbt

import (
	"math"
)

// Priors and constants of the model.
const (
	Kappa        = 0.0001
	MuPrior      = 0.0
	SigmaSqPrior = 1.0
	AlphaPrior   = 10.0
	BetaPrior    = 1.0

	defaultMaxMuStep  = 10.0
	defaultSigmaFloor = 1e-6
)

// Skill is a project's skill distribution.
type Skill struct {
	Mu      float64
	SigmaSq float64
}

// Calibration is a judge's reliability distribution parameters.
type Calibration struct {
	Alpha float64
	Beta  float64
}

// Result holds every value changed by one comparison.
type Result struct {
	Winner Skill
	Loser  Skill
	Judge  Calibration
}

// Rater applies CrowdBT updates. The zero value is not usable; call New.
type Rater struct {
	maxMuStep  float64
	sigmaFloor float64
}

// Option applies a configuration option to the Rater.
type Option func(*Rater)

// WithMaxMuStep bounds how far a single vote may move a project's mu.
func WithMaxMuStep(step float64) Option {
	return func(r *Rater) {
		if step > 0 {
			r.maxMuStep = step
		}
	}
}

// WithSigmaFloor sets the smallest variance a project may reach.
func WithSigmaFloor(floor float64) Option {
	return func(r *Rater) {
		if floor > 0 {
			r.sigmaFloor = floor
		}
	}
}

// New creates a Rater.
func New(opts ...Option) *Rater {
	r := &Rater{
		maxMuStep:  defaultMaxMuStep,
		sigmaFloor: defaultSigmaFloor,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Update computes new skills for the winner and loser and the judge's new calibration.
// It is pure: inputs are not modified.
func (r *Rater) Update(judge Calibration, winner, loser Skill) Result {
	winner.SigmaSq = r.positive(winner.SigmaSq)
	loser.SigmaSq = r.positive(loser.SigmaSq)

	mw, ml := r.updatedMus(judge, winner, loser)
	sw, sl := r.updatedSigmaSqs(judge, winner, loser)
	return Result{
		Winner: Skill{Mu: mw, SigmaSq: sw},
		Loser:  Skill{Mu: ml, SigmaSq: sl},
		Judge:  r.updatedJudge(judge, winner, loser),
	}
}

// sigmoid is the logistic function, written to avoid overflow for large |x|.
func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// probabilities returns P(winner beats loser) without and with the judge's bias.
// Using the logistic of the mu difference keeps exp() bounded for any mu scale.
func probabilities(judge Calibration, winner, loser Skill) (plain, biased float64) {
	d := winner.Mu - loser.Mu
	plain = sigmoid(d)
	biased = sigmoid(d + math.Log(judge.Alpha/judge.Beta))
	return plain, biased
}

func (r *Rater) updatedMus(judge Calibration, winner, loser Skill) (float64, float64) {
	plain, biased := probabilities(judge, winner, loser)
	mult := biased - plain
	dw := clamp(winner.SigmaSq*mult, -r.maxMuStep, r.maxMuStep)
	dl := clamp(loser.SigmaSq*mult, -r.maxMuStep, r.maxMuStep)
	return winner.Mu + dw, loser.Mu - dl
}

func (r *Rater) updatedSigmaSqs(judge Calibration, winner, loser Skill) (float64, float64) {
	plain, biased := probabilities(judge, winner, loser)
	mult := biased*(1-biased) - plain*(1-plain)
	shrink := func(s float64) float64 {
		// The factor is capped at 1 so variance never grows from a vote.
		f := clamp(1+s*mult, Kappa, 1)
		return math.Max(s*f, r.sigmaFloor)
	}
	return shrink(winner.SigmaSq), shrink(loser.SigmaSq)
}

// updatedJudge moment-matches the posterior of the judge's reliability.
func (r *Rater) updatedJudge(judge Calibration, winner, loser Skill) Calibration {
	a, b := judge.Alpha, judge.Beta
	plain, _ := probabilities(judge, winner, loser)

	// Second-order expansion of E[P(winner > loser)] over both skill distributions.
	c1 := plain + 0.5*(winner.SigmaSq+loser.SigmaSq)*plain*(1-plain)*(1-2*plain)
	c1 = clamp(c1, 0, 1)
	c2 := 1 - c1
	c := (c1*a + c2*b) / (a + b)
	if !(c > 0) {
		return judge
	}

	expt := (c1*(a+1)*a + c2*a*b) / (c * (a + b + 1) * (a + b))
	exptSq := (c1*(a+2)*(a+1)*a + c2*(a+1)*a*b) / (c * (a + b + 2) * (a + b + 1) * (a + b))
	variance := exptSq - expt*expt
	if !(variance > 0) {
		return judge
	}

	na := (expt - exptSq) * expt / variance
	nb := (expt - exptSq) * (1 - expt) / variance
	if !(na > 0) || !(nb > 0) || math.IsInf(na, 0) || math.IsInf(nb, 0) {
		return judge
	}
	return Calibration{Alpha: na, Beta: nb}
}

func (r *Rater) positive(s float64) float64 {
	if !(s > 0) || math.IsNaN(s) {
		return r.sigmaFloor
	}
	return s
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

// Expected returns the probability that a beats b under the current estimates.
func Expected(a, b Skill) float64 {
	return sigmoid(a.Mu - b.Mu)
}
