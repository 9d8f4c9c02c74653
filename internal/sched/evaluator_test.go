package sched

import (
	"context"
	"math"
	"reflect"
	"testing"

	"kribdispatch/internal/model"
)

func TestEvaluateHardViolationShortCircuits(t *testing.T) {
	eval := newTestEval()
	tech := testTech("t1", 45, -73)
	job := testJob("j1", 45, -73, 60, "hvac")
	pool := []*model.Technician{tech}

	ev := eval.Evaluate(context.Background(), pool, tech, job, at(9, 0), at(8, 0))
	if ev.Feasible {
		t.Fatal("expected infeasible: technician lacks hvac")
	}
	if ev.Score != 0 {
		t.Fatalf("infeasible candidates are not soft-scored, got %f", ev.Score)
	}
	if len(ev.Violations) != 1 || ev.Violations[0].Constraint != "skill_match" || !ev.Violations[0].Hard {
		t.Fatalf("violations: got %+v, want single hard skill_match", ev.Violations)
	}
}

func TestEvaluateCertMissing(t *testing.T) {
	eval := newTestEval()
	tech := testTech("t1", 45, -73, "hvac")
	job := testJob("j1", 45, -73, 60, "hvac")
	job.RequiredCerts = []string{"epa-608"}

	ev := eval.Evaluate(context.Background(), []*model.Technician{tech}, tech, job, at(9, 0), at(8, 0))
	if ev.Feasible {
		t.Fatal("expected infeasible: missing certification")
	}
	if ev.Violations[0].Constraint != "certification_match" {
		t.Fatalf("got %+v", ev.Violations)
	}
}

func TestEvaluateOwnAssignmentDoesNotBlockMove(t *testing.T) {
	eval := newTestEval()
	tech := testTech("t1", 45, -73)
	job := testJob("j1", 45, -73, 60)
	place(tech, job, at(10, 0))

	// sliding the job half an hour overlaps only its own current slot
	ev := eval.Evaluate(context.Background(), []*model.Technician{tech}, tech, job, at(10, 30), at(8, 0))
	if !ev.Feasible {
		t.Fatalf("expected feasible, got violations %+v", ev.Violations)
	}
}

func TestEvaluatePreferredWindowPenalty(t *testing.T) {
	eval := newTestEval()
	tech := testTech("t1", 45, -73)
	job := testJob("j1", 45, -73, 60)
	job.PreferredWindows = []model.TimeWindow{{Start: at(13, 0), End: at(17, 0)}}
	pool := []*model.Technician{tech}

	miss := eval.Evaluate(context.Background(), pool, tech, job, at(9, 0), at(8, 0))
	if !miss.Feasible {
		t.Fatalf("expected feasible, got %+v", miss.Violations)
	}
	if math.Abs(miss.Score-(-DefaultWeights().PreferredWindow)) > 1e-9 {
		t.Fatalf("score outside preferred window: got %f, want %f", miss.Score, -DefaultWeights().PreferredWindow)
	}

	hit := eval.Evaluate(context.Background(), pool, tech, job, at(13, 0), at(8, 0))
	if hit.Score != 0 {
		t.Fatalf("score inside preferred window: got %f, want 0", hit.Score)
	}
}

func TestEvaluateUrgencyPenalizesDelay(t *testing.T) {
	eval := newTestEval()
	tech := testTech("t1", 45, -73)
	job := testJob("j1", 45, -73, 60)
	job.Priority = 2
	now := at(8, 0)

	tomorrow := eval.Evaluate(context.Background(), []*model.Technician{tech}, tech, job, at(8, 0).AddDate(0, 0, 1), now)
	want := 1.0 * 2 * DefaultWeights().Urgency
	if math.Abs(tomorrow.Score-(-want)) > 1e-9 {
		t.Fatalf("one-day delay for priority 2: got %f, want %f", tomorrow.Score, -want)
	}

	today := eval.Evaluate(context.Background(), []*model.Technician{tech}, tech, job, at(8, 0), now)
	if today.Score != 0 {
		t.Fatalf("immediate start should carry no urgency penalty, got %f", today.Score)
	}
}

func TestEvaluateProximityPenalty(t *testing.T) {
	eval := newTestEval()
	tech := testTech("t1", 45.0, -73.0)
	near := testJob("near", 45.0, -73.0, 60)
	far := testJob("far", 45.3, -73.0, 60)
	pool := []*model.Technician{tech}

	evNear := eval.Evaluate(context.Background(), pool, tech, near, at(9, 0), at(8, 0))
	evFar := eval.Evaluate(context.Background(), pool, tech, far, at(9, 0), at(8, 0))
	if evNear.TravelSec != 0 {
		t.Fatalf("zero-distance travel: got %d", evNear.TravelSec)
	}
	if evFar.TravelSec <= 0 || evFar.Score >= evNear.Score {
		t.Fatalf("farther job must score worse: near=%f far=%f travel=%d", evNear.Score, evFar.Score, evFar.TravelSec)
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	eval := newTestEval()
	tech := testTech("t1", 45, -73, "hvac")
	other := testTech("t2", 45.1, -73.1)
	other.Assignments = []model.Assignment{{JobID: "jx", Start: at(9, 0), DurationSec: 7200, Location: model.GeoPoint{Lat: 45.1, Lng: -73.1}}}
	job := testJob("j1", 45.05, -73.02, 90, "hvac")
	job.Priority = 3
	job.PreferredWindows = []model.TimeWindow{{Start: at(8, 0), End: at(12, 0)}}
	pool := []*model.Technician{tech, other}

	a := eval.Evaluate(context.Background(), pool, tech, job, at(14, 0), at(8, 0))
	b := eval.Evaluate(context.Background(), pool, tech, job, at(14, 0), at(8, 0))
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("evaluation not deterministic:\n%+v\n%+v", a, b)
	}
}

func TestCandidateLessOrdering(t *testing.T) {
	base := model.Candidate{TechnicianID: "t1", Start: at(9, 0), Score: -10, TravelSec: 600}
	cases := []struct {
		name string
		a, b model.Candidate
		want bool
	}{
		{"higher score wins", model.Candidate{Score: -5, Start: at(10, 0)}, base, true},
		{"earlier start breaks score tie", model.Candidate{Score: -10, Start: at(8, 30)}, base, true},
		{"lower travel breaks start tie", model.Candidate{Score: -10, Start: at(9, 0), TravelSec: 300}, base, true},
		{"technician id is the final tie-break", model.Candidate{Score: -10, Start: at(9, 0), TravelSec: 600, TechnicianID: "t0"}, base, true},
		{"equal candidates are not less", base, base, false},
	}
	for _, c := range cases {
		if got := CandidateLess(c.a, c.b); got != c.want {
			t.Errorf("%s: CandidateLess = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestValidateTechnicianRejectsOverlap(t *testing.T) {
	tech := testTech("t1", 45, -73)
	tech.Assignments = []model.Assignment{
		{JobID: "j1", Start: at(9, 0), DurationSec: 3600},
		{JobID: "j2", Start: at(9, 30), DurationSec: 3600},
	}
	if err := ValidateTechnician(tech); err == nil {
		t.Fatal("expected overlap rejection")
	}
}

func TestValidateWindow(t *testing.T) {
	if err := ValidateWindow(model.TimeWindow{Start: at(9, 0), End: at(8, 0)}); err == nil {
		t.Fatal("inverted window accepted")
	}
	if err := ValidateWindow(model.TimeWindow{}); err == nil {
		t.Fatal("zero window accepted")
	}
	if err := ValidateWindow(model.TimeWindow{Start: at(8, 0), End: at(9, 0)}); err != nil {
		t.Fatalf("valid window rejected: %v", err)
	}
}

func TestValidateEvent(t *testing.T) {
	off := model.TimeWindow{Start: at(8, 0), End: at(17, 0)}
	good := &model.DisruptionEvent{Type: model.DisruptionTechUnavailable, TechnicianID: "t1", TimeOff: &off, OccurredAt: at(7, 0)}
	if err := ValidateEvent(good); err != nil {
		t.Fatalf("valid event rejected: %v", err)
	}
	bad := []*model.DisruptionEvent{
		{Type: "volcano"},
		{Type: model.DisruptionTechUnavailable, TimeOff: &off},
		{Type: model.DisruptionJobOverrun, JobID: "j1"},
		{Type: model.DisruptionCustomerReschedule, JobID: "j1"},
	}
	for i, e := range bad {
		if err := ValidateEvent(e); err == nil {
			t.Errorf("case %d: invalid event accepted: %+v", i, e)
		}
	}
}
