package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"account_factory/internal/model"
)

func (s *Store) CreateJob(ctx context.Context, total int) (model.Job, error) {
	if total <= 0 {
		return model.Job{}, errors.New("total must be positive")
	}
	now := time.Now()
	job := model.Job{
		ID:         uuid.NewString(),
		Total:      total,
		Status:     model.JobStatusProcessing,
		AccountIDs: []string{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, total, completed, failed, status, account_ids_json, created_at, updated_at)
		VALUES (?, ?, 0, 0, ?, '[]', ?, ?)
	`, job.ID, job.Total, string(job.Status), now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return model.Job{}, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

func (s *Store) GetJob(ctx context.Context, id string) (model.Job, error) {
	var row struct {
		id         string
		total      int
		completed  int
		failed     int
		status     string
		accountIDs string
		createdAt  int64
		updatedAt  int64
	}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, total, completed, failed, status, account_ids_json, created_at, updated_at
		FROM jobs WHERE id = ?
	`, id).Scan(&row.id, &row.total, &row.completed, &row.failed, &row.status, &row.accountIDs, &row.createdAt, &row.updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Job{}, ErrNotFound
	}
	if err != nil {
		return model.Job{}, err
	}
	ids := []string{}
	_ = json.Unmarshal([]byte(row.accountIDs), &ids)
	return model.Job{
		ID:         row.id,
		Total:      row.total,
		Completed:  row.completed,
		Failed:     row.failed,
		Status:     model.JobStatus(row.status),
		AccountIDs: ids,
		CreatedAt:  time.UnixMilli(row.createdAt),
		UpdatedAt:  time.UnixMilli(row.updatedAt),
	}, nil
}

// AppendJobAccount appends one account id to the job's ordered id list.
func (s *Store) AppendJobAccount(ctx context.Context, jobID, accountID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET account_ids_json = json_insert(account_ids_json, '$[#]', ?),
		    updated_at = ?
		WHERE id = ?
	`, accountID, time.Now().UnixMilli(), jobID)
	if err != nil {
		return fmt.Errorf("append job account: %w", err)
	}
	return nil
}

func (s *Store) IncrementJobCompleted(ctx context.Context, jobID string) error {
	return s.bumpJobCounter(ctx, jobID, "completed")
}

func (s *Store) IncrementJobFailed(ctx context.Context, jobID string) error {
	return s.bumpJobCounter(ctx, jobID, "failed")
}

func (s *Store) bumpJobCounter(ctx context.Context, jobID, column string) error {
	// column is one of two fixed names; never caller input.
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET `+column+` = `+column+` + 1, updated_at = ? WHERE id = ?
	`, time.Now().UnixMilli(), jobID)
	if err != nil {
		return fmt.Errorf("increment job %s: %w", column, err)
	}
	return nil
}

func (s *Store) SetJobStatus(ctx context.Context, jobID string, status model.JobStatus) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?
	`, string(status), time.Now().UnixMilli(), jobID)
	if err != nil {
		return fmt.Errorf("set job status: %w", err)
	}
	return nil
}
