package notify

import "context"

// JobFinishedEvent summarizes one job that reached a terminal status.
type JobFinishedEvent struct {
	JobID     string `json:"jobId"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Status    string `json:"status"`
	At        int64  `json:"atMs"`
}

type Notifier interface {
	NotifyJobFinished(ctx context.Context, evt JobFinishedEvent)
}
