package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"account_factory/internal/model"
)

const accountColumns = "id, username, password, email, phone, status, email_provider, session_json, created_at, updated_at"

func (s *Store) InsertAccount(ctx context.Context, acc model.Account) (model.Account, error) {
	if acc.Username == "" {
		return model.Account{}, errors.New("username is required")
	}
	if acc.Email == "" {
		return model.Account{}, errors.New("email is required")
	}
	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}
	if acc.Status == "" {
		acc.Status = model.AccountStatusCreated
	}
	now := time.Now()
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = now
	}
	acc.UpdatedAt = now

	sessionJSON, err := json.Marshal(acc.Session)
	if err != nil {
		return model.Account{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, acc.ID, acc.Username, acc.Password, acc.Email, acc.Phone, string(acc.Status),
		acc.EmailProvider, string(sessionJSON), acc.CreatedAt.UnixMilli(), acc.UpdatedAt.UnixMilli())
	if err != nil {
		return model.Account{}, fmt.Errorf("insert account: %w", err)
	}
	return acc, nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (model.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE id = ?
	`, id)
	acc, err := scanAccount(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, ErrNotFound
	}
	return acc, err
}

// ListAccounts returns up to limit accounts in creation order.
func (s *Store) ListAccounts(ctx context.Context, limit int) ([]model.Account, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+accountColumns+` FROM accounts ORDER BY created_at ASC, id ASC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Account
	for rows.Next() {
		acc, err := scanAccount(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, rows.Err()
}

// ListAccountsByIDs resolves a job's account id list, preserving the input
// order.
func (s *Store) ListAccountsByIDs(ctx context.Context, ids []string) ([]model.Account, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE id IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]model.Account, len(ids))
	for rows.Next() {
		acc, err := scanAccount(rows.Scan)
		if err != nil {
			return nil, err
		}
		byID[acc.ID] = acc
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]model.Account, 0, len(ids))
	for _, id := range ids {
		if acc, ok := byID[id]; ok {
			out = append(out, acc)
		}
	}
	return out, nil
}

func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAccounts removes the given ids and returns how many rows went away.
func (s *Store) DeleteAccounts(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) DeleteAllAccounts(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM accounts`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UpdateAccountCredentials replaces the credential set after a mailbox
// regeneration.
func (s *Store) UpdateAccountCredentials(ctx context.Context, id, username, password, email, provider string, session model.MailboxSession) error {
	sessionJSON, err := json.Marshal(session)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET username = ?, password = ?, email = ?, email_provider = ?, session_json = ?, updated_at = ?
		WHERE id = ?
	`, username, password, email, provider, string(sessionJSON), time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("update account credentials: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) SetAccountStatus(ctx context.Context, id string, status model.AccountStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET status = ?, updated_at = ? WHERE id = ?
	`, string(status), time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("set account status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAccount(scan func(dest ...any) error) (model.Account, error) {
	var row struct {
		id            string
		username      string
		password      string
		email         string
		phone         string
		status        string
		emailProvider string
		session       string
		createdAt     int64
		updatedAt     int64
	}
	if err := scan(&row.id, &row.username, &row.password, &row.email, &row.phone,
		&row.status, &row.emailProvider, &row.session, &row.createdAt, &row.updatedAt); err != nil {
		return model.Account{}, err
	}
	var session model.MailboxSession
	_ = json.Unmarshal([]byte(row.session), &session)
	return model.Account{
		ID:            row.id,
		Username:      row.username,
		Password:      row.password,
		Email:         row.email,
		Phone:         row.phone,
		Status:        model.AccountStatus(row.status),
		EmailProvider: row.emailProvider,
		Session:       session,
		CreatedAt:     time.UnixMilli(row.createdAt),
		UpdatedAt:     time.UnixMilli(row.updatedAt),
	}, nil
}
