package sched

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"kribdispatch/internal/metrics"
	"kribdispatch/internal/model"
)

// infeasibleScore stands in for a current placement that no longer
// satisfies hard constraints, so any feasible alternative wins.
const infeasibleScore = -1e9

// scoreEpsilon guards against accepting float noise as improvement.
const scoreEpsilon = 1e-6

// Optimizer rebalances committed assignments with a bounded local
// search: adjacent reorders within one technician's day and pairwise
// swaps across technicians sharing the required tags. A swap is
// accepted only when every hard constraint still holds for both
// affected jobs and the total score strictly improves. This is a
// heuristic search, not a guaranteed optimum.
type Optimizer struct {
	Eval          *Evaluator
	MaxIterations int // sweep cap; keeps runtime bounded on large pools
}

func NewOptimizer(eval *Evaluator) *Optimizer {
	return &Optimizer{Eval: eval, MaxIterations: 50}
}

// Optimize proposes improvements over assignments starting inside
// dateRange. Cancellation is cooperative: on ctx done the proposal
// accumulated so far is returned rather than nothing.
func (o *Optimizer) Optimize(ctx context.Context, snap *Snapshot, dateRange model.TimeWindow) (*model.ScheduleProposal, error) {
	if err := ValidateWindow(dateRange); err != nil {
		return nil, err
	}
	work := snap.Clone()
	pool := work.Pool()

	proposal := &model.ScheduleProposal{
		ID:        uuid.New().String(),
		CreatedAt: snap.Now,
		Changes:   []model.ProposalChange{},
	}
	if len(pool) > 0 {
		proposal.TenantID = pool[0].TenantID
	}

	maxIter := o.MaxIterations
	if maxIter <= 0 {
		maxIter = 50
	}
	for iter := 0; iter < maxIter; iter++ {
		if ctx.Err() != nil {
			break // return best proposal found so far
		}
		improved := false
		for _, tech := range pool {
			if o.sweepWithin(ctx, work, pool, tech, dateRange, proposal) {
				improved = true
			}
		}
		if o.sweepAcross(ctx, work, pool, dateRange, proposal) {
			improved = true
		}
		if !improved {
			break
		}
	}
	return proposal, nil
}

// sweepWithin tries reversing each adjacent in-range assignment pair
// on one technician's calendar.
func (o *Optimizer) sweepWithin(ctx context.Context, work *Snapshot, pool []*model.Technician, tech *model.Technician, dateRange model.TimeWindow, proposal *model.ScheduleProposal) bool {
	improved := false
	for i := 0; i+1 < len(tech.Assignments); i++ {
		if ctx.Err() != nil {
			return improved
		}
		a1, a2 := tech.Assignments[i], tech.Assignments[i+1]
		if !dateRange.Contains(a1.Start, 0) || !dateRange.Contains(a2.Start, 0) {
			continue
		}
		j1, j2 := work.Jobs[a1.JobID], work.Jobs[a2.JobID]
		if j1 == nil || j2 == nil {
			continue
		}
		out := o.tryReorder(ctx, work, pool, tech, j1, j2, a1, a2)
		if !out.valid {
			continue
		}
		applySwap(work, out)
		o.record(proposal, out)
		improved = true
	}
	return improved
}

// sweepAcross tries exchanging one in-range job between each pair of
// technicians when both satisfy the other job's tag requirements.
func (o *Optimizer) sweepAcross(ctx context.Context, work *Snapshot, pool []*model.Technician, dateRange model.TimeWindow, proposal *model.ScheduleProposal) bool {
	improved := false
	for ai := 0; ai < len(pool); ai++ {
		for bi := ai + 1; bi < len(pool); bi++ {
			ta, tb := pool[ai], pool[bi]
			for _, aa := range append([]model.Assignment(nil), ta.Assignments...) {
				if !dateRange.Contains(aa.Start, 0) {
					continue
				}
				for _, ab := range append([]model.Assignment(nil), tb.Assignments...) {
					if ctx.Err() != nil {
						return improved
					}
					if !dateRange.Contains(ab.Start, 0) {
						continue
					}
					ja, jb := work.Jobs[aa.JobID], work.Jobs[ab.JobID]
					if ja == nil || jb == nil {
						continue
					}
					// swaps are limited to tag-compatible jobs
					if missingTags(ja.RequiredSkills, tb.Skills) != "" || missingTags(ja.RequiredCerts, tb.Certifications) != "" {
						continue
					}
					if missingTags(jb.RequiredSkills, ta.Skills) != "" || missingTags(jb.RequiredCerts, ta.Certifications) != "" {
						continue
					}
					out := o.tryCross(ctx, work, pool, ta, tb, ja, jb, aa, ab)
					if !out.valid {
						continue
					}
					applySwap(work, out)
					o.record(proposal, out)
					improved = true
				}
			}
		}
	}
	return improved
}

// swapOutcome captures an evaluated, not-yet-applied swap.
type swapOutcome struct {
	valid          bool
	reason         string
	scoreDelta     float64
	travelDeltaSec int
	moves          []jobMove
}

type jobMove struct {
	job        *model.Job
	fromTech   *model.Technician
	toTech     *model.Technician
	fromStart  time.Time
	toStart    time.Time
	scoreDelta float64
}

// tryReorder evaluates running j2 before j1 on the same technician:
// j2 takes j1's start, j1 follows after j2 plus the drive between them.
func (o *Optimizer) tryReorder(ctx context.Context, work *Snapshot, pool []*model.Technician, tech *model.Technician, j1, j2 *model.Job, a1, a2 model.Assignment) swapOutcome {
	before1 := o.placementScore(ctx, pool, tech, j1, a1.Start, work.Now)
	before2 := o.placementScore(ctx, pool, tech, j2, a2.Start, work.Now)

	cand := CloneTechnician(tech)
	unplace(cand, j1.ID)
	unplace(cand, j2.ID)

	start2 := a1.Start
	drive := o.Eval.Travel.Estimate(ctx, j2.Location, j1.Location)
	start1 := start2.Add(j2.Duration()).Add(drive)

	ev2 := o.Eval.Evaluate(ctx, pool, cand, j2, start2, work.Now)
	if !ev2.Feasible {
		return swapOutcome{reason: "reorder infeasible for " + j2.ID}
	}
	place(cand, CloneJob(j2), start2)
	ev1 := o.Eval.Evaluate(ctx, pool, cand, j1, start1, work.Now)
	if !ev1.Feasible {
		return swapOutcome{reason: "reorder infeasible for " + j1.ID}
	}

	delta := (ev1.Score + ev2.Score) - (before1.score + before2.score)
	if delta <= scoreEpsilon {
		return swapOutcome{reason: "no improvement"}
	}
	travelDelta := (before1.travelSec + before2.travelSec) - (ev1.TravelSec + ev2.TravelSec)
	return swapOutcome{
		valid:          true,
		scoreDelta:     delta,
		travelDeltaSec: travelDelta,
		moves: []jobMove{
			{job: j2, fromTech: tech, toTech: tech, fromStart: a2.Start, toStart: start2, scoreDelta: ev2.Score - before2.score},
			{job: j1, fromTech: tech, toTech: tech, fromStart: a1.Start, toStart: start1, scoreDelta: ev1.Score - before1.score},
		},
	}
}

// tryCross evaluates giving each technician the other's job at the
// other's committed start time.
func (o *Optimizer) tryCross(ctx context.Context, work *Snapshot, pool []*model.Technician, ta, tb *model.Technician, ja, jb *model.Job, aa, ab model.Assignment) swapOutcome {
	beforeA := o.placementScore(ctx, pool, ta, ja, aa.Start, work.Now)
	beforeB := o.placementScore(ctx, pool, tb, jb, ab.Start, work.Now)

	candA := CloneTechnician(ta)
	candB := CloneTechnician(tb)
	unplace(candA, ja.ID)
	unplace(candB, jb.ID)

	evA := o.Eval.Evaluate(ctx, pool, candB, ja, ab.Start, work.Now)
	if !evA.Feasible {
		return swapOutcome{reason: "swap infeasible for " + ja.ID}
	}
	evB := o.Eval.Evaluate(ctx, pool, candA, jb, aa.Start, work.Now)
	if !evB.Feasible {
		return swapOutcome{reason: "swap infeasible for " + jb.ID}
	}

	delta := (evA.Score + evB.Score) - (beforeA.score + beforeB.score)
	if delta <= scoreEpsilon {
		return swapOutcome{reason: "no improvement"}
	}
	travelDelta := (beforeA.travelSec + beforeB.travelSec) - (evA.TravelSec + evB.TravelSec)
	return swapOutcome{
		valid:          true,
		scoreDelta:     delta,
		travelDeltaSec: travelDelta,
		moves: []jobMove{
			{job: ja, fromTech: ta, toTech: tb, fromStart: aa.Start, toStart: ab.Start, scoreDelta: evA.Score - beforeA.score},
			{job: jb, fromTech: tb, toTech: ta, fromStart: ab.Start, toStart: aa.Start, scoreDelta: evB.Score - beforeB.score},
		},
	}
}

type placement struct {
	score     float64
	travelSec int
}

// placementScore scores a job's current committed slot. A placement
// that no longer passes hard constraints scores infeasibleScore so any
// feasible move away from it is an improvement.
func (o *Optimizer) placementScore(ctx context.Context, pool []*model.Technician, t *model.Technician, j *model.Job, start time.Time, now time.Time) placement {
	ev := o.Eval.Evaluate(ctx, pool, t, j, start, now)
	if !ev.Feasible {
		return placement{score: infeasibleScore}
	}
	return placement{score: ev.Score, travelSec: ev.TravelSec}
}

// applySwap mutates the working snapshot with the accepted moves.
func applySwap(work *Snapshot, out swapOutcome) {
	for _, mv := range out.moves {
		unplace(mv.fromTech, mv.job.ID)
	}
	for _, mv := range out.moves {
		place(mv.toTech, mv.job, mv.toStart)
	}
	metrics.OptimizerSwaps.Inc()
}

func (o *Optimizer) record(proposal *model.ScheduleProposal, out swapOutcome) {
	rationale := fmt.Sprintf("score improved by %.1f", out.scoreDelta)
	if out.travelDeltaSec > 0 {
		rationale = fmt.Sprintf("reduced travel by %d minutes", out.travelDeltaSec/60)
	}
	for _, mv := range out.moves {
		from := mv.fromStart
		to := mv.toStart
		proposal.Changes = append(proposal.Changes, model.ProposalChange{
			JobID:            mv.job.ID,
			FromTechnicianID: mv.fromTech.ID,
			FromStart:        &from,
			ToTechnicianID:   mv.toTech.ID,
			ToStart:          &to,
			ScoreDelta:       mv.scoreDelta,
			Rationale:        rationale,
		})
	}
	proposal.ScoreDelta += out.scoreDelta
}

// SimulateSwap answers "what if these two jobs traded places" without
// committing anything, so a dispatcher can sanity-check a manual swap.
func (o *Optimizer) SimulateSwap(ctx context.Context, snap *Snapshot, jobAID, jobBID string) (model.SwapResult, error) {
	work := snap.Clone()
	ja, jb := work.Jobs[jobAID], work.Jobs[jobBID]
	if ja == nil || ja.Assigned == nil {
		return model.SwapResult{}, invalid("jobA", "not found or unscheduled")
	}
	if jb == nil || jb.Assigned == nil {
		return model.SwapResult{}, invalid("jobB", "not found or unscheduled")
	}
	ta := work.Technicians[ja.Assigned.TechnicianID]
	tb := work.Technicians[jb.Assigned.TechnicianID]
	if ta == nil || tb == nil {
		return model.SwapResult{}, invalid("swap", "assigned technician missing from snapshot")
	}
	aa, okA := findAssignment(ta, jobAID)
	ab, okB := findAssignment(tb, jobBID)
	if !okA || !okB {
		return model.SwapResult{}, invalid("swap", "assignment records out of sync")
	}

	pool := work.Pool()
	var out swapOutcome
	if ta.ID == tb.ID {
		first, second := ja, jb
		fa, sa := aa, ab
		if sa.Start.Before(fa.Start) {
			first, second = jb, ja
			fa, sa = ab, aa
		}
		out = o.tryReorder(ctx, work, pool, ta, first, second, fa, sa)
	} else {
		if missingTags(ja.RequiredSkills, tb.Skills) != "" || missingTags(jb.RequiredSkills, ta.Skills) != "" ||
			missingTags(ja.RequiredCerts, tb.Certifications) != "" || missingTags(jb.RequiredCerts, ta.Certifications) != "" {
			return model.SwapResult{Valid: false, Reason: "required tags not interchangeable"}, nil
		}
		out = o.tryCross(ctx, work, pool, ta, tb, ja, jb, aa, ab)
	}
	if !out.valid {
		return model.SwapResult{Valid: false, Reason: out.reason}, nil
	}
	return model.SwapResult{Valid: true, ScoreDelta: out.scoreDelta}, nil
}

func findAssignment(t *model.Technician, jobID string) (model.Assignment, bool) {
	for _, a := range t.Assignments {
		if a.JobID == jobID {
			return a, true
		}
	}
	return model.Assignment{}, false
}
