// Package csvdrop parses job rows dropped as CSV files, the lowest
// common denominator for partner booking systems.
package csvdrop

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"kribdispatch/internal/integrations"
	"kribdispatch/internal/model"
)

// Columns: external_ref,address,lat,lng,duration_sec,priority,skills,certs
// skills and certs are semicolon separated; header row optional.
func ParseJobs(r io.Reader) ([]model.Job, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	jobs := []model.Job{}
	line := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "external_ref") {
			continue
		}
		if len(rec) < 5 {
			return nil, fmt.Errorf("line %d: expected at least 5 columns, got %d", line, len(rec))
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad lat: %w", line, err)
		}
		lng, err := strconv.ParseFloat(strings.TrimSpace(rec[3]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad lng: %w", line, err)
		}
		dur, err := strconv.Atoi(strings.TrimSpace(rec[4]))
		if err != nil || dur <= 0 {
			return nil, fmt.Errorf("line %d: bad duration_sec", line)
		}
		j := model.Job{
			ID:          strings.TrimSpace(rec[0]),
			Address:     strings.TrimSpace(rec[1]),
			Location:    model.GeoPoint{Lat: lat, Lng: lng},
			DurationSec: dur,
			Status:      model.JobUnscheduled,
		}
		if len(rec) > 5 && strings.TrimSpace(rec[5]) != "" {
			j.Priority, _ = strconv.Atoi(strings.TrimSpace(rec[5]))
		}
		if len(rec) > 6 {
			j.RequiredSkills = splitTags(rec[6])
		}
		if len(rec) > 7 {
			j.RequiredCerts = splitTags(rec[7])
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func splitTags(s string) []string {
	out := []string{}
	for _, t := range strings.Split(s, ";") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Adapter wraps a reader factory so the import pipeline can treat CSV
// drops like any other job source.
type Adapter struct {
	Open func() (io.ReadCloser, error)
}

func (a Adapter) Name() string { return "csv-drop" }

func (a Adapter) FetchJobs(since, cursor string) (integrations.JobBatch, error) {
	rc, err := a.Open()
	if err != nil {
		return integrations.JobBatch{}, err
	}
	defer func() { _ = rc.Close() }()
	jobs, err := ParseJobs(rc)
	return integrations.JobBatch{Jobs: jobs}, err
}

var _ integrations.JobSource = Adapter{}
