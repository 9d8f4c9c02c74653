package sched

import (
	"context"
	"time"

	"kribdispatch/internal/metrics"
	"kribdispatch/internal/model"
	"kribdispatch/internal/travel"
)

// Evaluation is the result of scoring one candidate placement.
type Evaluation struct {
	Feasible   bool
	Score      float64
	TravelSec  int
	Violations []model.ConstraintViolation
}

// Evaluator scores (technician, job, slot) triples. Hard constraints
// run first and short-circuit; soft penalties are combined into a
// single scalar where higher is better (zero penalty scores 0).
// Evaluation is deterministic: identical inputs produce identical
// results.
type Evaluator struct {
	hard    []Constraint
	soft    []Constraint
	Weights Weights
	Travel  travel.Estimator
}

func NewEvaluator(w Weights, est travel.Estimator) *Evaluator {
	if est == nil {
		est = travel.Fallback{}
	}
	return &Evaluator{
		hard:    []Constraint{skillMatch{}, certMatch{}, withinWorkingHours{}, timeOffClear{}, assignmentClear{}},
		soft:    []Constraint{proximity{}, preferredWindow{}, workloadBalance{}, urgencySooner{}},
		Weights: w,
		Travel:  est,
	}
}

// Evaluate scores placing job j on technician t at start. pool is the
// technician pool under consideration (for workload balance); now is
// the injected clock.
func (e *Evaluator) Evaluate(ctx context.Context, pool []*model.Technician, t *model.Technician, j *model.Job, start time.Time, now time.Time) Evaluation {
	metrics.CandidatesEvaluated.Inc()
	ec := &EvalContext{Ctx: ctx, Now: now, Pool: pool, Weights: e.Weights}

	ev := Evaluation{Feasible: true}
	for _, c := range e.hard {
		ok, _, detail := c.Evaluate(ec, t, j, start)
		if !ok {
			ev.Feasible = false
			ev.Violations = append(ev.Violations, model.ConstraintViolation{Constraint: c.Name(), Hard: true, Detail: detail})
		}
	}
	if !ev.Feasible {
		// infeasible candidates never get soft scores; keeps the search cheap
		return ev
	}

	ec.TravelToSlot = e.travelToSlot(ctx, t, j, start)
	ev.TravelSec = int(ec.TravelToSlot / time.Second)
	for _, c := range e.soft {
		_, penalty, detail := c.Evaluate(ec, t, j, start)
		if penalty > 0 {
			ev.Score -= penalty
			ev.Violations = append(ev.Violations, model.ConstraintViolation{Constraint: c.Name(), Penalty: penalty, Detail: detail})
		}
	}
	return ev
}

// travelToSlot estimates drive time from wherever the technician will
// be just before start: the latest same-day assignment ending at or
// before start, or home base.
func (e *Evaluator) travelToSlot(ctx context.Context, t *model.Technician, j *model.Job, start time.Time) time.Duration {
	origin := t.HomeBase
	var bestEnd time.Time
	y, m, d := start.Date()
	for _, a := range t.Assignments {
		if a.JobID == j.ID {
			continue
		}
		ay, am, ad := a.Start.Date()
		if ay != y || am != m || ad != d {
			continue
		}
		end := a.End()
		if end.After(start) {
			continue
		}
		if end.After(bestEnd) {
			bestEnd = end
			origin = a.Location
		}
	}
	return e.Travel.Estimate(ctx, origin, j.Location)
}

// CandidateLess is the deterministic ranking order: score descending,
// then earlier start, then lower travel, then technician id.
func CandidateLess(a, b model.Candidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if !a.Start.Equal(b.Start) {
		return a.Start.Before(b.Start)
	}
	if a.TravelSec != b.TravelSec {
		return a.TravelSec < b.TravelSec
	}
	return a.TechnicianID < b.TechnicianID
}
