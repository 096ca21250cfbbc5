// Package worker runs provisioning jobs: for each requested unit it
// generates credentials, provisions a mailbox, attempts the target-system
// signup and records the outcome on the job. Units run strictly one at a
// time within a job; pacing and the shared rate-limit governor keep the
// process as a whole below the mailbox provider's limit.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"account_factory/internal/generator"
	"account_factory/internal/logbus"
	"account_factory/internal/mailtm"
	"account_factory/internal/model"
	"account_factory/internal/notify"
	"account_factory/internal/ratelimit"
	"account_factory/internal/signup"
	"account_factory/internal/store/sqlite"
)

// Store is the slice of persistence the pipeline needs. *sqlite.Store
// satisfies it; tests inject fakes.
type Store interface {
	GetJob(ctx context.Context, id string) (model.Job, error)
	AppendJobAccount(ctx context.Context, jobID, accountID string) error
	IncrementJobCompleted(ctx context.Context, jobID string) error
	IncrementJobFailed(ctx context.Context, jobID string) error
	SetJobStatus(ctx context.Context, jobID string, status model.JobStatus) error
	InsertAccount(ctx context.Context, acc model.Account) (model.Account, error)
}

// Mailbox is the provisioning slice of the mailbox provider adapter.
type Mailbox interface {
	CreateMailbox(ctx context.Context, username, password string) (model.MailboxSession, error)
}

// retryPolicy pairs an attempt budget with a backoff schedule. The two
// failure classes use different schedules: ordinary failures get a short
// flat wait, rate-limit hits back off progressively.
type retryPolicy struct {
	maxAttempts int
	backoff     func(attempt int) time.Duration
}

var (
	ordinaryRetry = retryPolicy{
		maxAttempts: 3,
		backoff:     func(int) time.Duration { return 3 * time.Second },
	}
	rateLimitRetry = retryPolicy{
		maxAttempts: 3,
		backoff:     func(attempt int) time.Duration { return time.Duration(attempt) * 10 * time.Second },
	}
)

// interUnitDelay spaces consecutive units; smaller batches may go faster.
func interUnitDelay(quantity int) time.Duration {
	switch {
	case quantity <= 2:
		return 5 * time.Second
	case quantity <= 5:
		return 8 * time.Second
	default:
		return 10 * time.Second
	}
}

type Options struct {
	Store     Store
	Mailbox   Mailbox
	Registrar signup.Registrar
	Governor  *ratelimit.Governor
	Bus       *logbus.Bus
	Notifier  notify.Notifier

	// Provider labels the mailbox provider on persisted accounts.
	Provider string

	// MaxUnitRetries overrides the per-unit attempt budget when positive.
	MaxUnitRetries int

	// Sleep replaces all waits; tests use it to skip real time.
	Sleep func(ctx context.Context, d time.Duration) error
}

type Runner struct {
	store     Store
	mailbox   Mailbox
	registrar signup.Registrar
	governor  *ratelimit.Governor
	bus       *logbus.Bus
	notifier  notify.Notifier
	provider  string
	unitRetry retryPolicy
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewRunner(opts Options) *Runner {
	unitRetry := ordinaryRetry
	if opts.MaxUnitRetries > 0 {
		unitRetry.maxAttempts = opts.MaxUnitRetries
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	provider := opts.Provider
	if provider == "" {
		provider = "mail.tm"
	}
	return &Runner{
		store:     opts.Store,
		mailbox:   opts.Mailbox,
		registrar: opts.Registrar,
		governor:  opts.Governor,
		bus:       opts.Bus,
		notifier:  opts.Notifier,
		provider:  provider,
		unitRetry: unitRetry,
		sleep:     sleep,
	}
}

type Params struct {
	Quantity  int
	Prefix    string
	Separator string
}

// Run drives one job to a terminal status. It is meant to be launched in
// its own goroutine right after the job record is created; every wait
// inside suspends only this job.
func (r *Runner) Run(ctx context.Context, jobID string, p Params) {
	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		// The submission path creates the record just before launching us;
		// a missing job means there is nothing to account against.
		if !errors.Is(err, sqlite.ErrNotFound) {
			r.log("error", "job load failed", map[string]any{"jobId": jobID, "error": err.Error()})
		}
		return
	}

	if st := r.governor.Status(); st.InCooldown {
		r.log("info", "provider cooldown active, waiting before first unit", map[string]any{
			"jobId":            jobID,
			"remainingSeconds": st.RemainingSeconds(),
		})
		if err := r.sleep(ctx, st.Remaining); err != nil {
			return
		}
	}

	progress := model.JobProgress{JobID: jobID, Total: job.Total, Status: model.JobStatusProcessing}

	for i := 0; i < p.Quantity; i++ {
		if err := r.provisionUnit(ctx, jobID, i, p, &progress); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				// Process shutdown; the job is abandoned as processing.
				return
			}
			r.log("error", "job aborted", map[string]any{"jobId": jobID, "error": err.Error()})
			r.finish(ctx, jobID, model.JobStatusFailed, &progress)
			return
		}

		if i < p.Quantity-1 {
			if err := r.sleep(ctx, interUnitDelay(p.Quantity)); err != nil {
				return
			}
		}
	}

	r.finish(ctx, jobID, model.JobStatusCompleted, &progress)
}

// provisionUnit runs the full retry loop for one unit. A non-nil return
// means the store is unusable and the whole job must abort; provisioning
// failures are absorbed into the failed counter.
func (r *Runner) provisionUnit(ctx context.Context, jobID string, index int, p Params, progress *model.JobProgress) error {
	counter := 0
	if p.Prefix != "" {
		counter = index + 1
	}

	for attempt := 1; attempt <= r.unitRetry.maxAttempts; attempt++ {
		username := generator.Username(p.Prefix, p.Separator, counter)

		session, err := r.createMailboxWithRetry(ctx)
		if err == nil {
			phone := generator.Phone()
			password := generator.Password()

			res, rerr := r.registrar.Register(ctx, signup.Request{
				Username: username,
				Email:    session.Email,
				Phone:    phone,
				Password: password,
			})
			switch {
			case rerr != nil && (errors.Is(rerr, context.Canceled) || errors.Is(rerr, context.DeadlineExceeded)):
				return rerr
			case rerr == nil && res.Success:
				acc, serr := r.store.InsertAccount(ctx, model.Account{
					Username:      username,
					Password:      password,
					Email:         session.Email,
					Phone:         phone,
					Status:        model.AccountStatusCreated,
					EmailProvider: r.provider,
					Session:       session,
				})
				if serr != nil {
					return fmt.Errorf("persist account: %w", serr)
				}
				if err := r.store.AppendJobAccount(ctx, jobID, acc.ID); err != nil {
					return fmt.Errorf("append account to job: %w", err)
				}
				if err := r.store.IncrementJobCompleted(ctx, jobID); err != nil {
					return fmt.Errorf("increment completed: %w", err)
				}
				progress.Completed++
				r.publishProgress(*progress)
				r.log("info", "unit provisioned", map[string]any{
					"jobId": jobID,
					"unit":  index + 1,
					"email": session.Email,
				})
				return nil
			default:
				err = errors.New("target signup failed")
			}
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		r.log("warn", "unit attempt failed", map[string]any{
			"jobId":   jobID,
			"unit":    index + 1,
			"attempt": attempt,
			"error":   err.Error(),
		})
		if attempt < r.unitRetry.maxAttempts {
			if serr := r.sleep(ctx, r.unitRetry.backoff(attempt)); serr != nil {
				return serr
			}
		}
	}

	if err := r.store.IncrementJobFailed(ctx, jobID); err != nil {
		return fmt.Errorf("increment failed: %w", err)
	}
	progress.Failed++
	r.publishProgress(*progress)
	return nil
}

// createMailboxWithRetry retries only rate-limit-classified failures; any
// ordinary provider failure is handed straight back so it consumes the
// unit-retry budget instead.
func (r *Runner) createMailboxWithRetry(ctx context.Context) (model.MailboxSession, error) {
	var lastErr error
	for attempt := 1; attempt <= rateLimitRetry.maxAttempts; attempt++ {
		session, err := r.mailbox.CreateMailbox(ctx, "", "")
		if err == nil {
			return session, nil
		}
		if !mailtm.IsRateLimited(err) {
			return model.MailboxSession{}, err
		}
		lastErr = err
		r.governor.RecordLimited()
		wait := rateLimitRetry.backoff(attempt)
		r.log("warn", "mailbox provider rate limited", map[string]any{
			"attempt":     attempt,
			"waitSeconds": int(wait / time.Second),
		})
		if attempt < rateLimitRetry.maxAttempts {
			if serr := r.sleep(ctx, wait); serr != nil {
				return model.MailboxSession{}, serr
			}
		}
	}
	return model.MailboxSession{}, fmt.Errorf("mailbox provisioning exhausted: %w", lastErr)
}

func (r *Runner) finish(ctx context.Context, jobID string, status model.JobStatus, progress *model.JobProgress) {
	if err := r.store.SetJobStatus(ctx, jobID, status); err != nil {
		r.log("error", "terminal status write failed", map[string]any{"jobId": jobID, "error": err.Error()})
		return
	}
	progress.Status = status
	r.publishProgress(*progress)
	r.log("info", "job finished", map[string]any{
		"jobId":     jobID,
		"status":    string(status),
		"completed": progress.Completed,
		"failed":    progress.Failed,
	})
	if r.notifier != nil {
		r.notifier.NotifyJobFinished(ctx, notify.JobFinishedEvent{
			JobID:     jobID,
			Total:     progress.Total,
			Completed: progress.Completed,
			Failed:    progress.Failed,
			Status:    string(status),
			At:        time.Now().UnixMilli(),
		})
	}
}

func (r *Runner) publishProgress(p model.JobProgress) {
	if r.bus != nil {
		r.bus.Publish("job", p)
	}
}

func (r *Runner) log(level, msg string, fields map[string]any) {
	if r.bus != nil {
		r.bus.Log(level, msg, fields)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
