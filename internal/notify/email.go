package notify

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"gopkg.in/gomail.v2"

	"account_factory/internal/logbus"
	"account_factory/internal/model"
	"account_factory/internal/store/sqlite"
)

// EmailNotifier mails a short summary whenever a job finishes. Settings
// come from the store at send time, so an operator can flip the feature on
// without a restart. Sending is best-effort and never blocks the pipeline.
type EmailNotifier struct {
	store *sqlite.Store
	bus   *logbus.Bus

	mu     sync.Mutex
	queue  chan JobFinishedEvent
	ctx    context.Context
	cancel func()
	wg     sync.WaitGroup
}

func NewEmailNotifier(store *sqlite.Store, bus *logbus.Bus) *EmailNotifier {
	ctx, cancel := context.WithCancel(context.Background())
	n := &EmailNotifier{
		store:  store,
		bus:    bus,
		queue:  make(chan JobFinishedEvent, 64),
		ctx:    ctx,
		cancel: cancel,
	}
	n.wg.Add(1)
	go n.loop()
	return n
}

func (n *EmailNotifier) Close(ctx context.Context) error {
	n.mu.Lock()
	cancel := n.cancel
	n.cancel = nil
	n.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *EmailNotifier) NotifyJobFinished(_ context.Context, evt JobFinishedEvent) {
	select {
	case n.queue <- evt:
	default:
		if n.bus != nil {
			n.bus.Log("warn", "notification dropped, queue full", map[string]any{
				"jobId": evt.JobID,
			})
		}
	}
}

func (n *EmailNotifier) loop() {
	defer n.wg.Done()
	for {
		select {
		case <-n.ctx.Done():
			return
		case evt := <-n.queue:
			n.handle(evt)
		}
	}
}

func (n *EmailNotifier) handle(evt JobFinishedEvent) {
	if n.store == nil {
		return
	}
	settings, ok, err := n.store.GetEmailSettings(n.ctx)
	if err != nil {
		n.log("warn", "email settings read failed", map[string]any{"error": err.Error()})
		return
	}
	if !ok || !settings.Enabled {
		return
	}
	if err := validateEmailSettings(settings); err != nil {
		n.log("warn", "email settings invalid", map[string]any{"error": err.Error()})
		return
	}
	if err := SendJobFinishedEmail(n.ctx, settings, evt); err != nil {
		n.log("warn", "notification email failed", map[string]any{
			"jobId": evt.JobID,
			"error": err.Error(),
		})
		return
	}
	n.log("info", "notification email sent", map[string]any{
		"jobId": evt.JobID,
		"to":    strings.TrimSpace(settings.Email),
	})
}

func (n *EmailNotifier) log(level, msg string, fields map[string]any) {
	if n.bus != nil {
		n.bus.Log(level, msg, fields)
	}
}

func validateEmailSettings(s model.EmailSettings) error {
	email := strings.TrimSpace(s.Email)
	if email == "" {
		return errors.New("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return errors.New("invalid email")
	}
	if strings.TrimSpace(s.AuthCode) == "" {
		return errors.New("authCode is required")
	}
	return nil
}

func SendJobFinishedEmail(ctx context.Context, settings model.EmailSettings, evt JobFinishedEvent) error {
	if err := validateEmailSettings(settings); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	email := strings.TrimSpace(settings.Email)
	host, port, useSSL, err := smtpConfigForEmail(email)
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("Provisioning job %s: %d/%d accounts created", evt.Status, evt.Completed, evt.Total)
	body := fmt.Sprintf(
		"Job %s finished with status %s at %s.\n\nTotal: %d\nCreated: %d\nFailed: %d\n",
		evt.JobID, evt.Status, time.UnixMilli(evt.At).Format("02-01-06 15:04"),
		evt.Total, evt.Completed, evt.Failed,
	)

	msg := gomail.NewMessage()
	msg.SetHeader("From", msg.FormatAddress(email, "Account Factory"))
	msg.SetHeader("To", email)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	d := gomail.NewDialer(host, port, email, strings.TrimSpace(settings.AuthCode))
	d.SSL = useSSL
	return d.DialAndSend(msg)
}

func smtpConfigForEmail(email string) (host string, port int, useSSL bool, err error) {
	parts := strings.Split(strings.TrimSpace(email), "@")
	if len(parts) != 2 || strings.TrimSpace(parts[1]) == "" {
		return "", 0, false, errors.New("invalid email format")
	}
	domain := strings.ToLower(strings.TrimSpace(parts[1]))

	switch {
	case domain == "qq.com" || strings.HasSuffix(domain, ".qq.com") || domain == "foxmail.com":
		return "smtp.qq.com", 465, true, nil
	case domain == "163.com" || domain == "126.com" || domain == "yeah.net":
		return "smtp.163.com", 465, true, nil
	case domain == "gmail.com":
		return "smtp.gmail.com", 587, false, nil
	case domain == "outlook.com" || domain == "hotmail.com" || domain == "live.com":
		return "smtp.office365.com", 587, false, nil
	default:
		// Fall back to the domain's own submission endpoint.
		return "smtp." + domain, 587, false, nil
	}
}
