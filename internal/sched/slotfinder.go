package sched

import (
	"context"
	"sort"
	"time"

	"kribdispatch/internal/metrics"
	"kribdispatch/internal/model"
)

// Finder searches a technician pool for the best placements of one
// job. An empty result means the search was exhausted, which is a
// normal outcome, not an error; callers commit a candidate separately.
type Finder struct {
	Eval      *Evaluator
	Increment time.Duration // candidate spacing inside an open window
	Limit     int           // max candidates returned; 0 means all
}

func NewFinder(eval *Evaluator) *Finder {
	return &Finder{Eval: eval, Increment: 30 * time.Minute}
}

// FindBestSlot returns feasible candidates ranked best-first. The
// search window bounds how far into the future slots are considered.
func (f *Finder) FindBestSlot(ctx context.Context, job *model.Job, pool []*model.Technician, window model.TimeWindow, now time.Time) ([]model.Candidate, error) {
	if err := ValidateJob(job); err != nil {
		return nil, err
	}
	if err := ValidateWindow(window); err != nil {
		return nil, err
	}
	start := time.Now()

	candidates := []model.Candidate{}
	for _, tech := range pool {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if tech.Archived {
			continue
		}
		// cheap tag pre-filter before the window search
		if missingTags(job.RequiredSkills, tech.Skills) != "" || missingTags(job.RequiredCerts, tech.Certifications) != "" {
			continue
		}
		candidates = append(candidates, f.searchTechnician(ctx, pool, tech, job, window, now)...)
	}

	sort.Slice(candidates, func(i, j int) bool { return CandidateLess(candidates[i], candidates[j]) })
	if f.Limit > 0 && len(candidates) > f.Limit {
		candidates = candidates[:f.Limit]
	}

	outcome := "found"
	if len(candidates) == 0 {
		outcome = "exhausted"
	}
	metrics.SlotSearchDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	return candidates, nil
}

func (f *Finder) searchTechnician(ctx context.Context, pool []*model.Technician, tech *model.Technician, job *model.Job, window model.TimeWindow, now time.Time) []model.Candidate {
	inc := f.Increment
	if inc <= 0 {
		inc = 30 * time.Minute
	}
	dur := job.Duration()
	out := []model.Candidate{}
	for day := window.Start; day.Before(window.End); day = nextDay(day) {
		for _, open := range OpenWindows(tech, day) {
			open = clip(open, window)
			if open.End.Sub(open.Start) < dur {
				continue
			}
			// window start first, then regular increments for finer
			// soft-constraint optimization
			for s := open.Start; !s.Add(dur).After(open.End); s = s.Add(inc) {
				ev := f.Eval.Evaluate(ctx, pool, tech, job, s, now)
				if !ev.Feasible {
					continue
				}
				out = append(out, model.Candidate{
					JobID:        job.ID,
					TechnicianID: tech.ID,
					Start:        s,
					Score:        ev.Score,
					TravelSec:    ev.TravelSec,
					Violations:   ev.Violations,
				})
			}
		}
	}
	return out
}

func nextDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location()).AddDate(0, 0, 1)
}
