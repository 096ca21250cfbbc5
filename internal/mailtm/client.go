// Package mailtm wraps a mail.tm-style disposable mailbox API: domain
// discovery, mailbox creation with token retrieval, inbox listing and
// single-message fetch.
package mailtm

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"account_factory/internal/config"
	"account_factory/internal/generator"
	"account_factory/internal/logbus"
	"account_factory/internal/model"
)

// Senders from this suffix are test noise injected by the provider itself.
const spamDomainSuffix = "@example.com"

const fallbackDomain = "mail.tm"

// ProvisionError reports a failed create-account or token call together
// with the provider's HTTP status, so callers can treat 429 specially.
type ProvisionError struct {
	StatusCode int
	Op         string
	Body       string
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("mailtm: %s failed with status %d", e.Op, e.StatusCode)
}

// IsRateLimited reports whether err is a provider "too many requests"
// signal.
func IsRateLimited(err error) bool {
	var pe *ProvisionError
	if errors.As(err, &pe) {
		if pe.StatusCode == 429 {
			return true
		}
		return strings.Contains(pe.Body, "Too Many")
	}
	return false
}

type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
	bus     *logbus.Bus
}

func New(cfg config.MailboxConfig, limits config.LimitsConfig, bus *logbus.Bus) *Client {
	httpc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout()).
		SetHeader("Accept", "application/json")

	return &Client{
		http:    httpc,
		limiter: rate.NewLimiter(rate.Limit(limits.ProviderQPS), limits.ProviderBurst),
		bus:     bus,
	}
}

type hydraDomains struct {
	Member []struct {
		Domain string `json:"domain"`
	} `json:"hydra:member"`
}

// Domains lists the provider's available mailbox domains. It degrades to a
// single-element fallback on any failure; callers must never stall on
// domain discovery.
func (c *Client) Domains(ctx context.Context) []string {
	if err := c.limiter.Wait(ctx); err != nil {
		return []string{fallbackDomain}
	}
	var out hydraDomains
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/domains")
	if err != nil || !resp.IsSuccess() {
		c.log("warn", "domain discovery failed, using fallback", map[string]any{
			"error": errString(err, resp),
		})
		return []string{fallbackDomain}
	}
	domains := make([]string, 0, len(out.Member))
	for _, m := range out.Member {
		if m.Domain != "" {
			domains = append(domains, m.Domain)
		}
	}
	if len(domains) == 0 {
		return []string{fallbackDomain}
	}
	return domains
}

type credentialsPayload struct {
	Address  string `json:"address"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// CreateMailbox provisions a mailbox and retrieves its auth token. Empty
// username/password are filled with random alphanumerics. Failures carry
// the provider status via *ProvisionError.
func (c *Client) CreateMailbox(ctx context.Context, username, password string) (model.MailboxSession, error) {
	domains := c.Domains(ctx)
	domain := domains[0]
	if len(domains) > 1 {
		domain = domains[pickIndex(len(domains))]
	}

	if username == "" {
		username = generator.RandomString(10, generator.Alnum)
	}
	if password == "" {
		password = generator.RandomString(12, generator.Alnum+"ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	}
	email := username + "@" + domain
	payload := credentialsPayload{Address: email, Password: password}

	if err := c.limiter.Wait(ctx); err != nil {
		return model.MailboxSession{}, err
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(payload).
		Post("/accounts")
	if err != nil {
		return model.MailboxSession{}, fmt.Errorf("mailtm: create account: %w", err)
	}
	if !resp.IsSuccess() {
		return model.MailboxSession{}, &ProvisionError{
			StatusCode: resp.StatusCode(),
			Op:         "create account",
			Body:       string(resp.Body()),
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return model.MailboxSession{}, err
	}
	var tok tokenResponse
	resp, err = c.http.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&tok).
		Post("/token")
	if err != nil {
		return model.MailboxSession{}, fmt.Errorf("mailtm: get token: %w", err)
	}
	if !resp.IsSuccess() {
		return model.MailboxSession{}, &ProvisionError{
			StatusCode: resp.StatusCode(),
			Op:         "get token",
			Body:       string(resp.Body()),
		}
	}

	c.log("info", "mailbox provisioned", map[string]any{"email": email})
	return model.MailboxSession{
		Email:     email,
		Password:  password,
		Token:     tok.Token,
		CreatedAt: time.Now(),
	}, nil
}

type hydraMessages struct {
	Member []wireMessage `json:"hydra:member"`
}

type wireMessage struct {
	ID        string      `json:"id"`
	From      wireAddress `json:"from"`
	Subject   string      `json:"subject"`
	Intro     string      `json:"intro"`
	Text      string      `json:"text"`
	HTML      []string    `json:"html"`
	Seen      bool        `json:"seen"`
	CreatedAt string      `json:"createdAt"`
}

type wireAddress struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

func (m wireMessage) toModel() model.Message {
	html := ""
	if len(m.HTML) > 0 {
		html = strings.Join(m.HTML, "")
	}
	return model.Message{
		ID:        m.ID,
		From:      m.From.Address,
		Subject:   m.Subject,
		Intro:     m.Intro,
		Text:      m.Text,
		HTML:      html,
		Seen:      m.Seen,
		CreatedAt: m.CreatedAt,
	}
}

// Messages lists the inbox for token, dropping provider test mail. A failed
// fetch yields an empty list, never an error; inbox absence must not abort
// provisioning flows.
func (c *Client) Messages(ctx context.Context, token string) []model.Message {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil
	}
	var out hydraMessages
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&out).
		Get("/messages")
	if err != nil || !resp.IsSuccess() {
		c.log("warn", "inbox fetch failed", map[string]any{
			"error": errString(err, resp),
		})
		return nil
	}

	msgs := make([]model.Message, 0, len(out.Member))
	for _, m := range out.Member {
		if strings.HasSuffix(m.From.Address, spamDomainSuffix) {
			continue
		}
		msgs = append(msgs, m.toModel())
	}
	return msgs
}

// Message fetches one message body. Returns false on failure or not-found.
func (c *Client) Message(ctx context.Context, id, token string) (model.Message, bool) {
	if err := c.limiter.Wait(ctx); err != nil {
		return model.Message{}, false
	}
	var out wireMessage
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&out).
		Get("/messages/" + id)
	if err != nil || !resp.IsSuccess() {
		return model.Message{}, false
	}
	return out.toModel(), true
}

func (c *Client) log(level, msg string, fields map[string]any) {
	if c.bus != nil {
		c.bus.Log(level, msg, fields)
	}
}

func pickIndex(n int) int {
	return rand.Intn(n)
}

func errString(err error, resp *resty.Response) string {
	if err != nil {
		return err.Error()
	}
	if resp != nil {
		return fmt.Sprintf("status %d", resp.StatusCode())
	}
	return "unknown"
}
