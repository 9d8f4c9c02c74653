package sched

import (
	"sort"
	"time"

	"kribdispatch/internal/model"
)

// Snapshot is an immutable in-memory view of the technician pool and
// job set, fetched in one batched read at the start of a top-level
// operation. All scheduling computation happens against it; only the
// store's commit step mutates shared state.
type Snapshot struct {
	Technicians map[string]*model.Technician
	Jobs        map[string]*model.Job
	Now         time.Time
}

// Clone deep-copies the snapshot so the optimizer and disruption
// handler can mutate working state freely.
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{
		Technicians: make(map[string]*model.Technician, len(s.Technicians)),
		Jobs:        make(map[string]*model.Job, len(s.Jobs)),
		Now:         s.Now,
	}
	for id, t := range s.Technicians {
		out.Technicians[id] = CloneTechnician(t)
	}
	for id, j := range s.Jobs {
		out.Jobs[id] = CloneJob(j)
	}
	return out
}

// Pool returns the active (non-archived) technicians in a stable order.
func (s *Snapshot) Pool() []*model.Technician {
	out := make([]*model.Technician, 0, len(s.Technicians))
	for _, t := range s.Technicians {
		if !t.Archived {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func CloneTechnician(t *model.Technician) *model.Technician {
	c := *t
	c.Skills = append([]string(nil), t.Skills...)
	c.Certifications = append([]string(nil), t.Certifications...)
	c.TimeOff = append([]model.TimeWindow(nil), t.TimeOff...)
	c.Assignments = append([]model.Assignment(nil), t.Assignments...)
	return &c
}

func CloneJob(j *model.Job) *model.Job {
	c := *j
	c.RequiredSkills = append([]string(nil), j.RequiredSkills...)
	c.RequiredCerts = append([]string(nil), j.RequiredCerts...)
	c.PreferredWindows = append([]model.TimeWindow(nil), j.PreferredWindows...)
	if j.Assigned != nil {
		a := *j.Assigned
		c.Assigned = &a
	}
	return &c
}

// place records a job placement on the working copies, keeping the
// technician's assignment list ordered by start.
func place(t *model.Technician, j *model.Job, start time.Time) {
	t.Assignments = append(t.Assignments, model.Assignment{
		JobID:       j.ID,
		Start:       start,
		DurationSec: j.DurationSec,
		Location:    j.Location,
	})
	sort.Slice(t.Assignments, func(i, k int) bool { return t.Assignments[i].Start.Before(t.Assignments[k].Start) })
	j.Status = model.JobScheduled
	j.Assigned = &model.JobAssignment{TechnicianID: t.ID, Start: start}
}

// unplace removes a job from a technician's calendar.
func unplace(t *model.Technician, jobID string) {
	out := t.Assignments[:0]
	for _, a := range t.Assignments {
		if a.JobID != jobID {
			out = append(out, a)
		}
	}
	t.Assignments = out
}
