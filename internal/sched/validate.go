package sched

import (
	"kribdispatch/internal/model"
)

// ValidateJob fails fast on malformed job data before any search runs.
func ValidateJob(j *model.Job) error {
	if j == nil || j.ID == "" {
		return invalid("job", "missing")
	}
	if j.DurationSec <= 0 {
		return invalid("job.durationSec", "must be positive")
	}
	for _, w := range j.PreferredWindows {
		if !w.End.After(w.Start) {
			return invalid("job.preferredWindows", "end must be after start")
		}
	}
	return nil
}

// ValidateTechnician checks interval sanity and the no-overlap
// invariant for an incoming technician record.
func ValidateTechnician(t *model.Technician) error {
	if t == nil || t.ID == "" {
		return invalid("technician", "missing")
	}
	for _, h := range t.WorkingHours {
		if h.Off() {
			continue
		}
		if h.StartMin < 0 || h.EndMin > 24*60 || h.EndMin <= h.StartMin {
			return invalid("technician.workingHours", "inverted or out-of-day span")
		}
	}
	for _, off := range t.TimeOff {
		if !off.End.After(off.Start) {
			return invalid("technician.timeOff", "end must be after start")
		}
	}
	for i, a := range t.Assignments {
		if a.DurationSec <= 0 {
			return invalid("technician.assignments", "non-positive duration")
		}
		for _, b := range t.Assignments[i+1:] {
			if a.Window().Overlaps(b.Window()) {
				return invalid("technician.assignments", "overlapping assignments "+a.JobID+"/"+b.JobID)
			}
		}
	}
	return nil
}

// ValidateWindow rejects empty or inverted search windows.
func ValidateWindow(w model.TimeWindow) error {
	if w.Start.IsZero() || w.End.IsZero() {
		return invalid("searchWindow", "missing bounds")
	}
	if !w.End.After(w.Start) {
		return invalid("searchWindow", "end must be after start")
	}
	return nil
}

// ValidateEvent checks a disruption event's shape for its type.
func ValidateEvent(e *model.DisruptionEvent) error {
	switch e.Type {
	case model.DisruptionTechUnavailable:
		if e.TechnicianID == "" {
			return invalid("event.technicianId", "required for "+e.Type)
		}
		if e.TimeOff == nil || !e.TimeOff.End.After(e.TimeOff.Start) {
			return invalid("event.timeOff", "valid interval required for "+e.Type)
		}
	case model.DisruptionJobOverrun:
		if e.JobID == "" {
			return invalid("event.jobId", "required for "+e.Type)
		}
		if e.OverrunSec <= 0 {
			return invalid("event.overrunSec", "must be positive")
		}
	case model.DisruptionJobCancelled:
		if e.JobID == "" {
			return invalid("event.jobId", "required for "+e.Type)
		}
	case model.DisruptionCustomerReschedule:
		if e.JobID == "" {
			return invalid("event.jobId", "required for "+e.Type)
		}
		if e.NewWindow == nil || !e.NewWindow.End.After(e.NewWindow.Start) {
			return invalid("event.newWindow", "valid interval required for "+e.Type)
		}
	default:
		return invalid("event.type", "unknown disruption type "+e.Type)
	}
	return nil
}
