package sched

import (
	"sort"
	"time"

	"kribdispatch/internal/model"
)

// dayWindow returns the working-hours window for a technician on the
// calendar day containing date, or a zero window when the day is off.
func dayWindow(t *model.Technician, date time.Time) (model.TimeWindow, bool) {
	h := t.WorkingHours[date.Weekday()]
	if h.Off() || h.EndMin <= h.StartMin {
		return model.TimeWindow{}, false
	}
	y, m, d := date.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, date.Location())
	return model.TimeWindow{
		Start: midnight.Add(time.Duration(h.StartMin) * time.Minute),
		End:   midnight.Add(time.Duration(h.EndMin) * time.Minute),
	}, true
}

// IsFree reports whether [start, start+dur) lies inside the weekday's
// working hours and intersects no time-off interval and no existing
// assignment.
func IsFree(t *model.Technician, start time.Time, dur time.Duration) bool {
	wh, ok := dayWindow(t, start)
	if !ok || !wh.Contains(start, dur) {
		return false
	}
	want := model.TimeWindow{Start: start, End: start.Add(dur)}
	for _, off := range t.TimeOff {
		if want.Overlaps(off) {
			return false
		}
	}
	for _, a := range t.Assignments {
		if want.Overlaps(a.Window()) {
			return false
		}
	}
	return true
}

// OpenWindows computes the complement of (time-off ∪ assignments)
// within the working-hours window for the given date, in chronological
// order. An empty result means the technician has no availability that
// day; it is not an error.
func OpenWindows(t *model.Technician, date time.Time) []model.TimeWindow {
	wh, ok := dayWindow(t, date)
	if !ok {
		return nil
	}
	busy := make([]model.TimeWindow, 0, len(t.TimeOff)+len(t.Assignments))
	for _, off := range t.TimeOff {
		if off.Overlaps(wh) {
			busy = append(busy, clip(off, wh))
		}
	}
	for _, a := range t.Assignments {
		if w := a.Window(); w.Overlaps(wh) {
			busy = append(busy, clip(w, wh))
		}
	}
	sort.Slice(busy, func(i, j int) bool { return busy[i].Start.Before(busy[j].Start) })

	open := []model.TimeWindow{}
	cursor := wh.Start
	for _, b := range busy {
		if b.Start.After(cursor) {
			open = append(open, model.TimeWindow{Start: cursor, End: b.Start})
		}
		if b.End.After(cursor) {
			cursor = b.End
		}
	}
	if cursor.Before(wh.End) {
		open = append(open, model.TimeWindow{Start: cursor, End: wh.End})
	}
	return open
}

func clip(w, bound model.TimeWindow) model.TimeWindow {
	if w.Start.Before(bound.Start) {
		w.Start = bound.Start
	}
	if w.End.After(bound.End) {
		w.End = bound.End
	}
	return w
}
