package model

import "time"

// Core domain types for the dispatch engine.

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// TimeWindow is a half-open interval [Start, End).
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether two half-open intervals intersect.
func (w TimeWindow) Overlaps(o TimeWindow) bool {
	return w.Start.Before(o.End) && o.Start.Before(w.End)
}

// Contains reports whether [start, start+dur) lies entirely inside w.
func (w TimeWindow) Contains(start time.Time, dur time.Duration) bool {
	return !start.Before(w.Start) && !start.Add(dur).After(w.End)
}

// DayHours is a working-hours span for one weekday, in minutes from
// midnight in the technician's locale. A zero value means the day is off.
type DayHours struct {
	StartMin int `json:"startMin"`
	EndMin   int `json:"endMin"`
}

func (d DayHours) Off() bool { return d.StartMin == 0 && d.EndMin == 0 }

// Assignment is one committed job on a technician's calendar.
type Assignment struct {
	JobID       string    `json:"jobId"`
	Start       time.Time `json:"start"`
	DurationSec int       `json:"durationSec"`
	Location    GeoPoint  `json:"location"`
}

func (a Assignment) End() time.Time { return a.Start.Add(time.Duration(a.DurationSec) * time.Second) }

func (a Assignment) Window() TimeWindow { return TimeWindow{Start: a.Start, End: a.End()} }

// Technician is a snapshot of one field technician. Assignments are
// kept ordered by start time and never overlap.
type Technician struct {
	ID             string       `json:"id"`
	TenantID       string       `json:"tenantId"`
	Name           string       `json:"name,omitempty"`
	HomeBase       GeoPoint     `json:"homeBase"`
	WorkingHours   [7]DayHours  `json:"workingHours"` // indexed by time.Weekday
	Skills         []string     `json:"skills,omitempty"`
	Certifications []string     `json:"certifications,omitempty"`
	TimeOff        []TimeWindow `json:"timeOff,omitempty"`
	Assignments    []Assignment `json:"assignments,omitempty"`
	Archived       bool         `json:"archived,omitempty"`
	Version        int          `json:"version"`
}

// Job lifecycle statuses.
const (
	JobUnscheduled = "unscheduled"
	JobScheduled   = "scheduled"
	JobCompleted   = "completed"
	JobCancelled   = "cancelled"
)

// JobAssignment is the current placement of a scheduled job.
type JobAssignment struct {
	TechnicianID string    `json:"technicianId"`
	Start        time.Time `json:"start"`
}

type Job struct {
	ID               string         `json:"id"`
	TenantID         string         `json:"tenantId"`
	Address          string         `json:"address,omitempty"`
	Location         GeoPoint       `json:"location"`
	RequiredSkills   []string       `json:"requiredSkills,omitempty"`
	RequiredCerts    []string       `json:"requiredCerts,omitempty"`
	DurationSec      int            `json:"durationSec"`
	PreferredWindows []TimeWindow   `json:"preferredWindows,omitempty"`
	Priority         int            `json:"priority,omitempty"` // higher is more urgent
	Status           string         `json:"status"`
	Assigned         *JobAssignment `json:"assigned,omitempty"`
}

func (j Job) Duration() time.Duration { return time.Duration(j.DurationSec) * time.Second }

// ConstraintViolation names a constraint a candidate failed (hard) or
// was penalized by (soft).
type ConstraintViolation struct {
	Constraint string  `json:"constraint"`
	Hard       bool    `json:"hard"`
	Penalty    float64 `json:"penalty,omitempty"`
	Detail     string  `json:"detail,omitempty"`
}

// Candidate is one feasible (technician, start) placement for a job.
type Candidate struct {
	JobID        string                `json:"jobId"`
	TechnicianID string                `json:"technicianId"`
	Start        time.Time             `json:"start"`
	Score        float64               `json:"score"`
	TravelSec    int                   `json:"travelSec"`
	Violations   []ConstraintViolation `json:"violations,omitempty"` // soft penalties incurred
}

// Outcomes of a per-job proposal change.
const (
	OutcomeRescheduled  = "rescheduled"
	OutcomeUnscheduled  = "unscheduled"
	OutcomeManualReview = "manual_review"
)

// ProposalChange is one placement change inside a ScheduleProposal.
// FromTechnicianID is empty for initial placements; ToTechnicianID is
// empty when the job could not be placed.
type ProposalChange struct {
	JobID            string     `json:"jobId"`
	FromTechnicianID string     `json:"fromTechnicianId,omitempty"`
	FromStart        *time.Time `json:"fromStart,omitempty"`
	ToTechnicianID   string     `json:"toTechnicianId,omitempty"`
	ToStart          *time.Time `json:"toStart,omitempty"`
	Outcome          string     `json:"outcome,omitempty"`
	ScoreDelta       float64    `json:"scoreDelta"`
	Rationale        string     `json:"rationale"`
}

// ScheduleProposal is an unapplied, scored batch of placement changes.
// Apply is all-or-nothing.
type ScheduleProposal struct {
	ID         string           `json:"id"`
	TenantID   string           `json:"tenantId"`
	CreatedAt  time.Time        `json:"createdAt"`
	ScoreDelta float64          `json:"scoreDelta"`
	Changes    []ProposalChange `json:"changes"`
}

// Disruption event types.
const (
	DisruptionTechUnavailable    = "technician_unavailable"
	DisruptionJobOverrun         = "job_overrun"
	DisruptionJobCancelled       = "job_cancelled"
	DisruptionCustomerReschedule = "customer_reschedule"
)

type DisruptionEvent struct {
	Type         string      `json:"type"`
	TenantID     string      `json:"tenantId,omitempty"`
	TechnicianID string      `json:"technicianId,omitempty"`
	JobID        string      `json:"jobId,omitempty"`
	TimeOff      *TimeWindow `json:"timeOff,omitempty"`    // technician_unavailable
	OverrunSec   int         `json:"overrunSec,omitempty"` // job_overrun
	NewWindow    *TimeWindow `json:"newWindow,omitempty"`  // customer_reschedule
	OccurredAt   time.Time   `json:"occurredAt"`
}

// API request/response shapes.

type SearchRequest struct {
	TenantID      string     `json:"tenantId,omitempty"`
	JobID         string     `json:"jobId"`
	TechnicianIDs []string   `json:"technicianIds,omitempty"` // empty means whole active pool
	SearchWindow  TimeWindow `json:"searchWindow"`
	Limit         int        `json:"limit,omitempty"`
}

type CommitRequest struct {
	TenantID     string    `json:"tenantId,omitempty"`
	JobID        string    `json:"jobId"`
	TechnicianID string    `json:"technicianId"`
	Start        time.Time `json:"start"`
	Force        bool      `json:"force,omitempty"` // manual override; overlap is still rejected
}

type OptimizeRequest struct {
	TenantID      string     `json:"tenantId,omitempty"`
	TechnicianIDs []string   `json:"technicianIds,omitempty"`
	DateRange     TimeWindow `json:"dateRange"`
	MaxIterations int        `json:"maxIterations,omitempty"`
}

type SwapRequest struct {
	TenantID string `json:"tenantId,omitempty"`
	JobA     string `json:"jobA"`
	JobB     string `json:"jobB"`
}

type SwapResult struct {
	Valid      bool    `json:"valid"`
	ScoreDelta float64 `json:"scoreDelta"`
	Reason     string  `json:"reason,omitempty"`
}

type SubscriptionRequest struct {
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret"`
}

type Subscription struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret,omitempty"`
}
