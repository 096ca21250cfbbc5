package model

import "time"

type JobStatus string

const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Job tracks one batch request to provision N accounts. Total is fixed at
// creation; Completed and Failed only ever grow, and Status moves from
// processing to exactly one terminal value.
type Job struct {
	ID         string    `json:"id"`
	Total      int       `json:"total"`
	Completed  int       `json:"completed"`
	Failed     int       `json:"failed"`
	Status     JobStatus `json:"status"`
	AccountIDs []string  `json:"accountIds"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (j Job) Progress() float64 {
	if j.Total <= 0 {
		return 0
	}
	return float64(j.Completed) / float64(j.Total) * 100
}

// JobProgress is the event shape published on the log bus while a job runs,
// so the websocket stream can show live progress without polling.
type JobProgress struct {
	JobID     string    `json:"jobId"`
	Total     int       `json:"total"`
	Completed int       `json:"completed"`
	Failed    int       `json:"failed"`
	Status    JobStatus `json:"status"`
}
