package sched

import (
	"context"
	"fmt"
	"time"

	"kribdispatch/internal/model"
)

// EvalContext carries everything a constraint may consult when scoring
// a (technician, job, start) triple. Constraints are stateless pure
// functions of the snapshot; the context is assembled per evaluation.
type EvalContext struct {
	Ctx          context.Context
	Now          time.Time
	Pool         []*model.Technician
	Weights      Weights
	TravelToSlot time.Duration // from the technician's previous location, precomputed
}

// Constraint is one named scheduling rule. Hard rules disqualify a
// candidate outright; soft rules contribute a weighted penalty.
type Constraint interface {
	Name() string
	Hard() bool
	Evaluate(c *EvalContext, t *model.Technician, j *model.Job, start time.Time) (ok bool, penalty float64, detail string)
}

// ---- hard constraints ----

type skillMatch struct{}

func (skillMatch) Name() string { return "skill_match" }
func (skillMatch) Hard() bool   { return true }
func (skillMatch) Evaluate(_ *EvalContext, t *model.Technician, j *model.Job, _ time.Time) (bool, float64, string) {
	if missing := missingTags(j.RequiredSkills, t.Skills); missing != "" {
		return false, 0, "missing skill: " + missing
	}
	return true, 0, ""
}

type certMatch struct{}

func (certMatch) Name() string { return "certification_match" }
func (certMatch) Hard() bool   { return true }
func (certMatch) Evaluate(_ *EvalContext, t *model.Technician, j *model.Job, _ time.Time) (bool, float64, string) {
	if missing := missingTags(j.RequiredCerts, t.Certifications); missing != "" {
		return false, 0, "missing certification: " + missing
	}
	return true, 0, ""
}

type withinWorkingHours struct{}

func (withinWorkingHours) Name() string { return "working_hours" }
func (withinWorkingHours) Hard() bool   { return true }
func (withinWorkingHours) Evaluate(_ *EvalContext, t *model.Technician, j *model.Job, start time.Time) (bool, float64, string) {
	wh, ok := dayWindow(t, start)
	if !ok {
		return false, 0, "day off"
	}
	if !wh.Contains(start, j.Duration()) {
		return false, 0, "outside working hours"
	}
	return true, 0, ""
}

type timeOffClear struct{}

func (timeOffClear) Name() string { return "time_off" }
func (timeOffClear) Hard() bool   { return true }
func (timeOffClear) Evaluate(_ *EvalContext, t *model.Technician, j *model.Job, start time.Time) (bool, float64, string) {
	want := model.TimeWindow{Start: start, End: start.Add(j.Duration())}
	for _, off := range t.TimeOff {
		if want.Overlaps(off) {
			return false, 0, "overlaps time off"
		}
	}
	return true, 0, ""
}

type assignmentClear struct{}

func (assignmentClear) Name() string { return "assignment_overlap" }
func (assignmentClear) Hard() bool   { return true }
func (assignmentClear) Evaluate(_ *EvalContext, t *model.Technician, j *model.Job, start time.Time) (bool, float64, string) {
	want := model.TimeWindow{Start: start, End: start.Add(j.Duration())}
	for _, a := range t.Assignments {
		// the job's own current placement does not conflict with moving it
		if a.JobID == j.ID {
			continue
		}
		if want.Overlaps(a.Window()) {
			return false, 0, "overlaps assignment " + a.JobID
		}
	}
	return true, 0, ""
}

// ---- soft constraints ----

type proximity struct{}

func (proximity) Name() string { return "proximity" }
func (proximity) Hard() bool   { return false }
func (proximity) Evaluate(c *EvalContext, _ *model.Technician, _ *model.Job, _ time.Time) (bool, float64, string) {
	min := c.TravelToSlot.Minutes()
	if min <= 0 {
		return true, 0, ""
	}
	return true, min * c.Weights.Proximity, fmt.Sprintf("%.0f min travel to slot", min)
}

type preferredWindow struct{}

func (preferredWindow) Name() string { return "preferred_window" }
func (preferredWindow) Hard() bool   { return false }
func (preferredWindow) Evaluate(c *EvalContext, _ *model.Technician, j *model.Job, start time.Time) (bool, float64, string) {
	if len(j.PreferredWindows) == 0 {
		return true, 0, ""
	}
	for _, w := range j.PreferredWindows {
		if w.Contains(start, j.Duration()) {
			return true, 0, ""
		}
	}
	return true, c.Weights.PreferredWindow, "outside customer preferred window"
}

type workloadBalance struct{}

func (workloadBalance) Name() string { return "workload_balance" }
func (workloadBalance) Hard() bool   { return false }
func (workloadBalance) Evaluate(c *EvalContext, t *model.Technician, j *model.Job, start time.Time) (bool, float64, string) {
	if len(c.Pool) < 2 {
		return true, 0, ""
	}
	mine := sameDayAssignedSec(t, start, j.ID) + j.DurationSec
	total := 0
	active := 0
	for _, other := range c.Pool {
		if other.Archived {
			continue
		}
		total += sameDayAssignedSec(other, start, j.ID)
		active++
	}
	if active == 0 {
		return true, 0, ""
	}
	avg := float64(total) / float64(active)
	above := float64(mine) - avg
	if above <= 0 {
		return true, 0, ""
	}
	hours := above / 3600
	return true, hours * c.Weights.WorkloadBalance, fmt.Sprintf("%.1fh above pool average", hours)
}

type urgencySooner struct{}

func (urgencySooner) Name() string { return "urgency" }
func (urgencySooner) Hard() bool   { return false }
func (urgencySooner) Evaluate(c *EvalContext, _ *model.Technician, j *model.Job, start time.Time) (bool, float64, string) {
	if j.Priority <= 0 {
		return true, 0, ""
	}
	delay := start.Sub(c.Now)
	if delay <= 0 {
		return true, 0, ""
	}
	days := delay.Hours() / 24
	return true, days * float64(j.Priority) * c.Weights.Urgency, fmt.Sprintf("%.1f days out for priority %d", days, j.Priority)
}

// missingTags returns the first required tag absent from have, or "".
func missingTags(required, have []string) string {
	for _, r := range required {
		found := false
		for _, h := range have {
			if h == r {
				found = true
				break
			}
		}
		if !found {
			return r
		}
	}
	return ""
}

// sameDayAssignedSec totals assignment seconds on the calendar day of
// ref, skipping the job being placed.
func sameDayAssignedSec(t *model.Technician, ref time.Time, skipJobID string) int {
	y, m, d := ref.Date()
	total := 0
	for _, a := range t.Assignments {
		if a.JobID == skipJobID {
			continue
		}
		ay, am, ad := a.Start.Date()
		if ay == y && am == m && ad == d {
			total += a.DurationSec
		}
	}
	return total
}
