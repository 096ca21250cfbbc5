package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"account_factory/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenSecondHandleOnLiveFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	ctx := context.Background()

	first, err := Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = first.Close() })

	acc, err := first.InsertAccount(ctx, testAccount("first"))
	require.NoError(t, err)

	// Opening again re-runs the migrations while the first handle is live;
	// the busy timeout has to be in effect for that to succeed.
	second, err := Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	got, err := second.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Username)
}

func TestJobLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job, err := s.CreateJob(ctx, 3)
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)
	assert.Equal(t, model.JobStatusProcessing, job.Status)
	assert.Empty(t, job.AccountIDs)

	require.NoError(t, s.AppendJobAccount(ctx, job.ID, "acc-1"))
	require.NoError(t, s.AppendJobAccount(ctx, job.ID, "acc-2"))
	require.NoError(t, s.IncrementJobCompleted(ctx, job.ID))
	require.NoError(t, s.IncrementJobCompleted(ctx, job.ID))
	require.NoError(t, s.IncrementJobFailed(ctx, job.ID))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Completed)
	assert.Equal(t, 1, got.Failed)
	assert.Equal(t, []string{"acc-1", "acc-2"}, got.AccountIDs)
	assert.LessOrEqual(t, got.Completed+got.Failed, got.Total)

	require.NoError(t, s.SetJobStatus(ctx, job.ID, model.JobStatusCompleted))
	got, err = s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, got.Status)
}

func TestGetJobNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetJob(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func testAccount(username string) model.Account {
	return model.Account{
		Username: username,
		Password: "Pa5sw0rd!@#x",
		Email:    username + "@mail.tm",
		Phone:    "+84-031-234-5678",
		Status:   model.AccountStatusCreated,
		Session: model.MailboxSession{
			Email:     username + "@mail.tm",
			Password:  "boxpw",
			Token:     "tok-" + username,
			CreatedAt: time.Now(),
		},
	}
}

func TestAccountRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	acc, err := s.InsertAccount(ctx, testAccount("alpha"))
	require.NoError(t, err)
	require.NotEmpty(t, acc.ID)

	got, err := s.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "alpha", got.Username)
	assert.Equal(t, "tok-alpha", got.Session.Token)
	assert.True(t, got.Session.Valid())
}

func TestListAccountsOrderAndLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		acc := testAccount(name)
		acc.CreatedAt = time.Now().Add(time.Duration(len(name)) * time.Millisecond)
		_, err := s.InsertAccount(ctx, acc)
		require.NoError(t, err)
	}

	all, err := s.ListAccounts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, all, 3)

	two, err := s.ListAccounts(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestListAccountsByIDsPreservesOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a, _ := s.InsertAccount(ctx, testAccount("a"))
	b, _ := s.InsertAccount(ctx, testAccount("b"))

	got, err := s.ListAccountsByIDs(ctx, []string{b.ID, "ghost", a.ID})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, b.ID, got[0].ID)
	assert.Equal(t, a.ID, got[1].ID)
}

func TestDeleteAccountNotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	acc, err := s.InsertAccount(ctx, testAccount("solo"))
	require.NoError(t, err)

	require.NoError(t, s.DeleteAccount(ctx, acc.ID))
	assert.ErrorIs(t, s.DeleteAccount(ctx, acc.ID), ErrNotFound)
}

func TestDeleteAccountsBulk(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a, _ := s.InsertAccount(ctx, testAccount("a"))
	b, _ := s.InsertAccount(ctx, testAccount("b"))
	_, _ = s.InsertAccount(ctx, testAccount("c"))

	n, err := s.DeleteAccounts(ctx, []string{a.ID, b.ID, "ghost"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	remaining, err := s.ListAccounts(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)

	n, err = s.DeleteAllAccounts(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestUpdateAccountCredentials(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	acc, err := s.InsertAccount(ctx, testAccount("old"))
	require.NoError(t, err)

	session := model.MailboxSession{Email: "new@mail.tm", Password: "np", Token: "newtok", CreatedAt: time.Now()}
	require.NoError(t, s.UpdateAccountCredentials(ctx, acc.ID, "newuser", "NewPass1!ab", "new@mail.tm", "mail.tm", session))

	got, err := s.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "newuser", got.Username)
	assert.Equal(t, "new@mail.tm", got.Email)
	assert.Equal(t, "newtok", got.Session.Token)

	assert.ErrorIs(t,
		s.UpdateAccountCredentials(ctx, "ghost", "u", "p", "e@mail.tm", "mail.tm", session),
		ErrNotFound)
}

func TestSetAccountStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	acc, err := s.InsertAccount(ctx, testAccount("v"))
	require.NoError(t, err)

	require.NoError(t, s.SetAccountStatus(ctx, acc.ID, model.AccountStatusPendingVerification))
	got, err := s.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AccountStatusPendingVerification, got.Status)
}

func TestEmailSettingsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, ok, err := s.GetEmailSettings(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	saved, err := s.UpsertEmailSettings(ctx, model.EmailSettings{Enabled: true, Email: "ops@qq.com", AuthCode: "code"})
	require.NoError(t, err)
	assert.True(t, saved.Enabled)

	got, ok, err := s.GetEmailSettings(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ops@qq.com", got.Email)
}
