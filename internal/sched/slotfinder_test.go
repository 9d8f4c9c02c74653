package sched

import (
	"context"
	"testing"

	"kribdispatch/internal/model"
)

func mondayWindow() model.TimeWindow {
	return model.TimeWindow{Start: at(0, 0), End: testDay.AddDate(0, 0, 1)}
}

func TestFindBestSlotEarliestWinsOnTie(t *testing.T) {
	f := NewFinder(newTestEval())
	tech := testTech("t1", 45, -73)
	job := testJob("j1", 45, -73, 60)

	cands, err := f.FindBestSlot(context.Background(), job, []*model.Technician{tech}, mondayWindow(), at(0, 0))
	if err != nil {
		t.Fatalf("FindBestSlot: %v", err)
	}
	// 30-minute increments, 08:00 through 16:00 inclusive
	if len(cands) != 17 {
		t.Fatalf("candidates: got %d, want 17", len(cands))
	}
	if !cands[0].Start.Equal(at(8, 0)) {
		t.Fatalf("best start: got %v, want 08:00", cands[0].Start)
	}
	if cands[0].TravelSec != 0 {
		t.Fatalf("travel from home base to same point: got %d", cands[0].TravelSec)
	}
}

func TestFindBestSlotFiltersByTags(t *testing.T) {
	f := NewFinder(newTestEval())
	skilled := testTech("t1", 45, -73, "hvac")
	unskilled := testTech("t2", 45, -73)
	job := testJob("j1", 45, -73, 60, "hvac")

	cands, err := f.FindBestSlot(context.Background(), job, []*model.Technician{skilled, unskilled}, mondayWindow(), at(0, 0))
	if err != nil {
		t.Fatalf("FindBestSlot: %v", err)
	}
	if len(cands) == 0 {
		t.Fatal("expected candidates for the skilled technician")
	}
	for _, c := range cands {
		if c.TechnicianID != "t1" {
			t.Fatalf("unskilled technician slipped through: %+v", c)
		}
	}
}

func TestFindBestSlotExhausted(t *testing.T) {
	f := NewFinder(newTestEval())
	tech := testTech("t1", 45, -73)
	job := testJob("j1", 45, -73, 60, "crane")

	cands, err := f.FindBestSlot(context.Background(), job, []*model.Technician{tech}, mondayWindow(), at(0, 0))
	if err != nil {
		t.Fatalf("an exhausted search is not an error, got %v", err)
	}
	if len(cands) != 0 {
		t.Fatalf("expected no candidates, got %d", len(cands))
	}
}

func TestFindBestSlotSkipsArchived(t *testing.T) {
	f := NewFinder(newTestEval())
	tech := testTech("t1", 45, -73)
	tech.Archived = true
	job := testJob("j1", 45, -73, 60)

	cands, err := f.FindBestSlot(context.Background(), job, []*model.Technician{tech}, mondayWindow(), at(0, 0))
	if err != nil || len(cands) != 0 {
		t.Fatalf("archived technician must not receive work: cands=%d err=%v", len(cands), err)
	}
}

func TestFindBestSlotLimit(t *testing.T) {
	f := NewFinder(newTestEval())
	f.Limit = 3
	tech := testTech("t1", 45, -73)
	job := testJob("j1", 45, -73, 60)

	cands, err := f.FindBestSlot(context.Background(), job, []*model.Technician{tech}, mondayWindow(), at(0, 0))
	if err != nil {
		t.Fatalf("FindBestSlot: %v", err)
	}
	if len(cands) != 3 {
		t.Fatalf("limit: got %d, want 3", len(cands))
	}
}

func TestFindBestSlotRoutesAroundBusyCalendar(t *testing.T) {
	f := NewFinder(newTestEval())
	tech := testTech("t1", 45, -73)
	blockerA := testJob("jx", 45, -73, 120)
	place(tech, blockerA, at(8, 0))
	tech.TimeOff = []model.TimeWindow{{Start: at(10, 0), End: at(12, 0)}}

	job := testJob("j1", 45, -73, 60)
	cands, err := f.FindBestSlot(context.Background(), job, []*model.Technician{tech}, mondayWindow(), at(0, 0))
	if err != nil {
		t.Fatalf("FindBestSlot: %v", err)
	}
	if len(cands) == 0 {
		t.Fatal("afternoon should still be open")
	}
	if !cands[0].Start.Equal(at(12, 0)) {
		t.Fatalf("best start: got %v, want 12:00", cands[0].Start)
	}
}

func TestFindBestSlotPrefersPreferredWindowOverEarliest(t *testing.T) {
	f := NewFinder(newTestEval())
	tech := testTech("t1", 45, -73)
	job := testJob("j1", 45, -73, 60)
	job.PreferredWindows = []model.TimeWindow{{Start: at(14, 0), End: at(17, 0)}}

	cands, err := f.FindBestSlot(context.Background(), job, []*model.Technician{tech}, mondayWindow(), at(0, 0))
	if err != nil {
		t.Fatalf("FindBestSlot: %v", err)
	}
	if !cands[0].Start.Equal(at(14, 0)) {
		t.Fatalf("best start: got %v, want 14:00 inside the preferred window", cands[0].Start)
	}
}

func TestFindBestSlotRejectsBadInput(t *testing.T) {
	f := NewFinder(newTestEval())
	tech := testTech("t1", 45, -73)

	bad := testJob("j1", 45, -73, 0)
	if _, err := f.FindBestSlot(context.Background(), bad, []*model.Technician{tech}, mondayWindow(), at(0, 0)); err == nil {
		t.Fatal("zero-duration job accepted")
	}
	good := testJob("j2", 45, -73, 60)
	if _, err := f.FindBestSlot(context.Background(), good, []*model.Technician{tech}, model.TimeWindow{Start: at(9, 0), End: at(8, 0)}, at(0, 0)); err == nil {
		t.Fatal("inverted window accepted")
	}
}
