package sched

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"kribdispatch/internal/metrics"
	"kribdispatch/internal/model"
)

// rescheduleHorizon bounds the second repair pass. Jobs that cannot
// land within it are left unscheduled for a dispatcher to handle.
const rescheduleHorizon = 48 * time.Hour

// Handler turns a disruption event into a repair proposal: it figures
// out which committed assignments the event breaks, then re-runs the
// slot search for each of them. Jobs are never cancelled here; what
// cannot be re-placed is flagged for manual review.
type Handler struct {
	Finder *Finder
}

func NewHandler(finder *Finder) *Handler {
	return &Handler{Finder: finder}
}

// Handle evaluates evt against a clone of snap and returns the repair
// proposal. The snapshot passed in is never mutated; callers apply the
// proposal through the store if they accept it.
func (h *Handler) Handle(ctx context.Context, snap *Snapshot, evt *model.DisruptionEvent) (*model.ScheduleProposal, error) {
	if err := ValidateEvent(evt); err != nil {
		return nil, err
	}
	work := snap.Clone()
	proposal := &model.ScheduleProposal{
		ID:        uuid.New().String(),
		TenantID:  evt.TenantID,
		CreatedAt: evt.OccurredAt,
		Changes:   []model.ProposalChange{},
	}

	var affected []displaced
	switch evt.Type {
	case model.DisruptionTechUnavailable:
		var err error
		affected, err = h.applyTimeOff(work, evt)
		if err != nil {
			return nil, err
		}
	case model.DisruptionJobOverrun:
		var err error
		affected, err = h.applyOverrun(work, evt)
		if err != nil {
			return nil, err
		}
	case model.DisruptionJobCancelled:
		change, err := h.applyCancellation(work, evt)
		if err != nil {
			return nil, err
		}
		if change != nil {
			proposal.Changes = append(proposal.Changes, *change)
			metrics.DisruptionsHandled.WithLabelValues(evt.Type, model.OutcomeUnscheduled).Inc()
		}
		return proposal, nil
	case model.DisruptionCustomerReschedule:
		var err error
		affected, err = h.applyReschedule(work, evt)
		if err != nil {
			return nil, err
		}
	}

	// Repair in original start order so earlier jobs get first pick and
	// the same event always yields the same proposal.
	sort.Slice(affected, func(i, j int) bool {
		if !affected[i].start.Equal(affected[j].start) {
			return affected[i].start.Before(affected[j].start)
		}
		return affected[i].job.ID < affected[j].job.ID
	})
	for _, d := range affected {
		change := h.reschedule(ctx, work, d, evt)
		proposal.Changes = append(proposal.Changes, change)
		proposal.ScoreDelta += change.ScoreDelta
		metrics.DisruptionsHandled.WithLabelValues(evt.Type, change.Outcome).Inc()
	}
	return proposal, nil
}

// displaced is a job knocked out of its committed slot.
type displaced struct {
	job      *model.Job
	fromTech string
	start    time.Time
}

func (h *Handler) applyTimeOff(work *Snapshot, evt *model.DisruptionEvent) ([]displaced, error) {
	tech := work.Technicians[evt.TechnicianID]
	if tech == nil {
		return nil, invalid("technicianId", "unknown technician")
	}
	off := *evt.TimeOff
	tech.TimeOff = append(tech.TimeOff, off)

	var out []displaced
	for _, a := range append([]model.Assignment(nil), tech.Assignments...) {
		if !a.Window().Overlaps(off) {
			continue
		}
		j := work.Jobs[a.JobID]
		if j == nil {
			continue
		}
		unplace(tech, j.ID)
		out = append(out, displaced{job: j, fromTech: tech.ID, start: a.Start})
	}
	return out, nil
}

func (h *Handler) applyOverrun(work *Snapshot, evt *model.DisruptionEvent) ([]displaced, error) {
	job := work.Jobs[evt.JobID]
	if job == nil {
		return nil, invalid("jobId", "unknown job")
	}
	if job.Assigned == nil {
		return nil, invalid("jobId", "job is not scheduled")
	}
	tech := work.Technicians[job.Assigned.TechnicianID]
	if tech == nil {
		return nil, invalid("jobId", "assigned technician missing from snapshot")
	}

	job.DurationSec += evt.OverrunSec
	var extendedEnd time.Time
	for i := range tech.Assignments {
		if tech.Assignments[i].JobID == job.ID {
			tech.Assignments[i].DurationSec = job.DurationSec
			extendedEnd = tech.Assignments[i].End()
			break
		}
	}

	// Later same-day jobs the extended visit now runs into get pushed
	// off the calendar and re-searched.
	dayEnd := nextDay(job.Assigned.Start)
	var out []displaced
	for _, a := range append([]model.Assignment(nil), tech.Assignments...) {
		if a.JobID == job.ID || !a.Start.After(job.Assigned.Start) || !a.Start.Before(dayEnd) {
			continue
		}
		if !a.Start.Before(extendedEnd) {
			continue
		}
		j := work.Jobs[a.JobID]
		if j == nil {
			continue
		}
		unplace(tech, j.ID)
		out = append(out, displaced{job: j, fromTech: tech.ID, start: a.Start})
	}
	return out, nil
}

func (h *Handler) applyCancellation(work *Snapshot, evt *model.DisruptionEvent) (*model.ProposalChange, error) {
	job := work.Jobs[evt.JobID]
	if job == nil {
		return nil, invalid("jobId", "unknown job")
	}
	var change *model.ProposalChange
	if job.Assigned != nil {
		start := job.Assigned.Start
		change = &model.ProposalChange{
			JobID:            job.ID,
			FromTechnicianID: job.Assigned.TechnicianID,
			FromStart:        &start,
			Outcome:          model.OutcomeUnscheduled,
			Rationale:        "job cancelled by customer",
		}
		if tech := work.Technicians[job.Assigned.TechnicianID]; tech != nil {
			unplace(tech, job.ID)
		}
	}
	job.Status = model.JobCancelled
	job.Assigned = nil
	return change, nil
}

func (h *Handler) applyReschedule(work *Snapshot, evt *model.DisruptionEvent) ([]displaced, error) {
	job := work.Jobs[evt.JobID]
	if job == nil {
		return nil, invalid("jobId", "unknown job")
	}
	nw := *evt.NewWindow
	job.PreferredWindows = []model.TimeWindow{nw}
	if job.Assigned == nil {
		return nil, nil
	}
	if nw.Contains(job.Assigned.Start, job.Duration()) {
		// current slot already satisfies the new window
		return nil, nil
	}
	tech := work.Technicians[job.Assigned.TechnicianID]
	if tech == nil {
		return nil, invalid("jobId", "assigned technician missing from snapshot")
	}
	start := job.Assigned.Start
	unplace(tech, job.ID)
	return []displaced{{job: job, fromTech: tech.ID, start: start}}, nil
}

// reschedule tries to re-place one displaced job: first in what is
// left of the disruption day, then anywhere inside the repair horizon.
// Placements land in the working snapshot so later repairs in the same
// proposal see them and cannot double-book a slot.
func (h *Handler) reschedule(ctx context.Context, work *Snapshot, d displaced, evt *model.DisruptionEvent) model.ProposalChange {
	from := d.start
	change := model.ProposalChange{
		JobID:            d.job.ID,
		FromTechnicianID: d.fromTech,
		FromStart:        &from,
	}

	// customer reschedules are bound to the requested window, not the
	// disruption day
	windows := []model.TimeWindow{
		{Start: evt.OccurredAt, End: nextDay(evt.OccurredAt)},
		{Start: evt.OccurredAt, End: evt.OccurredAt.Add(rescheduleHorizon)},
	}
	if evt.Type == model.DisruptionCustomerReschedule && evt.NewWindow != nil {
		windows = []model.TimeWindow{*evt.NewWindow}
	}

	pool := work.Pool()
	for _, w := range windows {
		ranked, err := h.Finder.FindBestSlot(ctx, d.job, pool, w, evt.OccurredAt)
		if err != nil || len(ranked) == 0 {
			continue
		}
		best := ranked[0]
		tech := work.Technicians[best.TechnicianID]
		place(tech, d.job, best.Start)
		to := best.Start
		change.ToTechnicianID = best.TechnicianID
		change.ToStart = &to
		change.Outcome = model.OutcomeRescheduled
		change.ScoreDelta = best.Score
		change.Rationale = fmt.Sprintf("rescheduled to %s at %s", best.TechnicianID, best.Start.Format(time.RFC3339))
		return change
	}

	d.job.Status = model.JobUnscheduled
	d.job.Assigned = nil
	change.Outcome = model.OutcomeManualReview
	change.Rationale = "no feasible slot within the repair horizon"
	return change
}
