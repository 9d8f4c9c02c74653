package sched

import (
	"testing"
	"time"

	"kribdispatch/internal/model"
)

func TestOpenWindowsFullDay(t *testing.T) {
	tech := testTech("t1", 45, -73)
	open := OpenWindows(tech, testDay)
	if len(open) != 1 {
		t.Fatalf("open windows: got %d, want 1", len(open))
	}
	if !open[0].Start.Equal(at(8, 0)) || !open[0].End.Equal(at(17, 0)) {
		t.Fatalf("window: got %v-%v, want 08:00-17:00", open[0].Start, open[0].End)
	}
}

func TestOpenWindowsSplitAroundBusy(t *testing.T) {
	tech := testTech("t1", 45, -73)
	tech.Assignments = []model.Assignment{{JobID: "j1", Start: at(10, 0), DurationSec: 3600}}
	tech.TimeOff = []model.TimeWindow{{Start: at(13, 0), End: at(14, 0)}}

	open := OpenWindows(tech, testDay)
	want := []model.TimeWindow{
		{Start: at(8, 0), End: at(10, 0)},
		{Start: at(11, 0), End: at(13, 0)},
		{Start: at(14, 0), End: at(17, 0)},
	}
	if len(open) != len(want) {
		t.Fatalf("open windows: got %d, want %d (%v)", len(open), len(want), open)
	}
	for i := range want {
		if !open[i].Start.Equal(want[i].Start) || !open[i].End.Equal(want[i].End) {
			t.Fatalf("window %d: got %v-%v, want %v-%v", i, open[i].Start, open[i].End, want[i].Start, want[i].End)
		}
	}
}

func TestOpenWindowsDayOff(t *testing.T) {
	tech := testTech("t1", 45, -73)
	sunday := testDay.AddDate(0, 0, -1)
	if open := OpenWindows(tech, sunday); len(open) != 0 {
		t.Fatalf("expected no windows on a day off, got %v", open)
	}
}

func TestOpenWindowsBusyClippedToHours(t *testing.T) {
	tech := testTech("t1", 45, -73)
	// time off straddling the start of the shift
	tech.TimeOff = []model.TimeWindow{{Start: at(6, 0), End: at(9, 0)}}
	open := OpenWindows(tech, testDay)
	if len(open) != 1 || !open[0].Start.Equal(at(9, 0)) || !open[0].End.Equal(at(17, 0)) {
		t.Fatalf("got %v, want single 09:00-17:00 window", open)
	}
}

func TestIsFree(t *testing.T) {
	tech := testTech("t1", 45, -73)
	tech.Assignments = []model.Assignment{{JobID: "j1", Start: at(10, 0), DurationSec: 3600}}
	tech.TimeOff = []model.TimeWindow{{Start: at(13, 0), End: at(14, 0)}}

	cases := []struct {
		name  string
		start time.Time
		dur   time.Duration
		want  bool
	}{
		{"open morning slot", at(8, 0), time.Hour, true},
		{"overlaps assignment", at(9, 30), time.Hour, false},
		{"back to back after assignment", at(11, 0), time.Hour, true},
		{"overlaps time off", at(13, 30), time.Hour, false},
		{"runs past end of shift", at(16, 30), time.Hour, false},
		{"before shift", at(7, 0), time.Hour, false},
		{"day off", at(8, 0).AddDate(0, 0, -1), time.Hour, false},
	}
	for _, c := range cases {
		if got := IsFree(tech, c.start, c.dur); got != c.want {
			t.Errorf("%s: IsFree(%v, %v) = %v, want %v", c.name, c.start, c.dur, got, c.want)
		}
	}
}
