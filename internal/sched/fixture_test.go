package sched

import (
	"time"

	"kribdispatch/internal/model"
	"kribdispatch/internal/travel"
)

// testDay is a Monday. Fixture technicians work 08:00-17:00 Monday
// through Friday in UTC.
var testDay = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return testDay.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func weekdayHours() [7]model.DayHours {
	var wh [7]model.DayHours
	for d := time.Monday; d <= time.Friday; d++ {
		wh[d] = model.DayHours{StartMin: 8 * 60, EndMin: 17 * 60}
	}
	return wh
}

func testTech(id string, lat, lng float64, skills ...string) *model.Technician {
	return &model.Technician{
		ID:           id,
		TenantID:     "t_test",
		HomeBase:     model.GeoPoint{Lat: lat, Lng: lng},
		WorkingHours: weekdayHours(),
		Skills:       skills,
		Version:      1,
	}
}

func testJob(id string, lat, lng float64, durMin int, skills ...string) *model.Job {
	return &model.Job{
		ID:             id,
		TenantID:       "t_test",
		Location:       model.GeoPoint{Lat: lat, Lng: lng},
		RequiredSkills: skills,
		DurationSec:    durMin * 60,
		Status:         model.JobUnscheduled,
	}
}

func newTestEval() *Evaluator {
	return NewEvaluator(DefaultWeights(), travel.Fallback{})
}

func testSnapshot(now time.Time, techs []*model.Technician, jobs []*model.Job) *Snapshot {
	s := &Snapshot{
		Technicians: map[string]*model.Technician{},
		Jobs:        map[string]*model.Job{},
		Now:         now,
	}
	for _, t := range techs {
		s.Technicians[t.ID] = t
	}
	for _, j := range jobs {
		s.Jobs[j.ID] = j
	}
	return s
}
