package integrations

import (
	"kribdispatch/internal/model"
)

// JobSource is the minimal interface for pulling jobs from an
// external system (CSV drops, partner booking APIs).
type JobSource interface {
	Name() string
	FetchJobs(since, cursor string) (JobBatch, error)
}

type JobBatch struct {
	Jobs   []model.Job
	Cursor string
}
