package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"account_factory/internal/config"
	"account_factory/internal/generator"
	"account_factory/internal/logbus"
	"account_factory/internal/mailtm"
	"account_factory/internal/model"
	"account_factory/internal/ratelimit"
	"account_factory/internal/store/sqlite"
	"account_factory/internal/worker"
	"account_factory/internal/ws"
)

const accountListLimit = 1000

type Options struct {
	Cfg      config.Config
	Bus      *logbus.Bus
	Store    *sqlite.Store
	Mailbox  *mailtm.Client
	Governor *ratelimit.Governor
	Runner   *worker.Runner
}

type Server struct {
	cfg      config.Config
	bus      *logbus.Bus
	store    *sqlite.Store
	mailbox  *mailtm.Client
	governor *ratelimit.Governor
	runner   *worker.Runner
	ws       *ws.Handler
}

func New(opts Options) *Server {
	return &Server{
		cfg:      opts.Cfg,
		bus:      opts.Bus,
		store:    opts.Store,
		mailbox:  opts.Mailbox,
		governor: opts.Governor,
		runner:   opts.Runner,
		ws:       ws.NewHandler(opts.Bus, opts.Cfg.Server.Cors.AllowOrigins),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("/ws", s.ws)

	api := http.NewServeMux()
	api.HandleFunc("GET /api/v1/debug/mailtm", s.handleDebugMailtm)
	api.HandleFunc("GET /api/v1/rate-limit-status", s.handleRateLimitStatus)

	api.HandleFunc("POST /api/v1/accounts/create", s.handleCreateAccounts)
	// Job polling lives outside the /accounts/{id} subtree; a pattern like
	// accounts/job/{id} would collide with accounts/{id}/inbox on ServeMux
	// registration.
	api.HandleFunc("GET /api/v1/jobs/{id}", s.handleJobStatus)

	api.HandleFunc("GET /api/v1/accounts", s.handleListAccounts)
	api.HandleFunc("DELETE /api/v1/accounts", s.handleDeleteAllAccounts)
	api.HandleFunc("DELETE /api/v1/accounts/{id}", s.handleDeleteAccount)
	api.HandleFunc("POST /api/v1/accounts/delete-multiple", s.handleDeleteMultiple)
	api.HandleFunc("POST /api/v1/accounts/{id}/verify-login", s.handleVerifyLogin)
	api.HandleFunc("PUT /api/v1/accounts/{id}/regenerate", s.handleRegenerate)
	api.HandleFunc("GET /api/v1/accounts/{id}/inbox", s.handleInbox)
	api.HandleFunc("GET /api/v1/accounts/{id}/inbox/{msgId}", s.handleInboxMessage)

	api.HandleFunc("GET /api/v1/accounts/export/txt", s.handleExportTXT)
	api.HandleFunc("GET /api/v1/accounts/export/csv", s.handleExportCSV)
	api.HandleFunc("GET /api/v1/accounts/export/xlsx", s.handleExportXLSX)

	api.HandleFunc("GET /api/v1/settings/email", s.handleGetEmailSettings)
	api.HandleFunc("POST /api/v1/settings/email", s.handleSetEmailSettings)

	mux.Handle("/api/", corsMiddleware(s.cfg.Server.Cors, api))
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleDebugMailtm(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"domains": s.mailbox.Domains(r.Context())})
}

func (s *Server) handleRateLimitStatus(w http.ResponseWriter, _ *http.Request) {
	st := s.governor.Status()
	out := map[string]any{
		"in_cooldown":       st.InCooldown,
		"remaining_seconds": st.RemainingSeconds(),
	}
	if st.InCooldown {
		out["status"] = "rate_limited"
		out["message"] = "Provider cooldown active, new provisioning will be delayed"
	} else {
		out["status"] = "ready"
		out["message"] = "Ready to provision accounts"
	}
	writeJSON(w, http.StatusOK, out)
}

type createAccountsPayload struct {
	Quantity          int    `json:"quantity"`
	EmailProvider     string `json:"email_provider,omitempty"`
	UsernamePrefix    string `json:"username_prefix,omitempty"`
	UsernameSeparator string `json:"username_separator,omitempty"`
}

func (s *Server) handleCreateAccounts(w http.ResponseWriter, r *http.Request) {
	var body createAccountsPayload
	if err := readJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	if body.Quantity < 1 || body.Quantity > 100 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "quantity must be between 1 and 100"})
		return
	}
	provider := strings.TrimSpace(body.EmailProvider)
	if provider == "" {
		provider = s.cfg.Mailbox.Provider
	}
	separator := body.UsernameSeparator
	if separator == "" {
		separator = "."
	}

	job, err := s.store.CreateJob(r.Context(), body.Quantity)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	// The pipeline owns the job from here; the submitter never waits.
	go s.runner.Run(context.Background(), job.ID, worker.Params{
		Quantity:  body.Quantity,
		Prefix:    strings.TrimSpace(body.UsernamePrefix),
		Separator: separator,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":         job.ID,
		"status":         string(model.JobStatusProcessing),
		"email_provider": provider,
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.store.GetJob(r.Context(), r.PathValue("id"))
	if errors.Is(err, sqlite.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "job not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	accounts, err := s.store.ListAccountsByIDs(r.Context(), job.AccountIDs)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	if accounts == nil {
		accounts = []model.Account{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":              job.ID,
		"total":               job.Total,
		"completed":           job.Completed,
		"failed":              job.Failed,
		"status":              string(job.Status),
		"progress_percentage": job.Progress(),
		"accounts":            accounts,
	})
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.store.ListAccounts(r.Context(), accountListLimit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	if accounts == nil {
		accounts = []model.Account{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeleteAccount(r.Context(), r.PathValue("id"))
	if errors.Is(err, sqlite.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "account not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "account deleted"})
}

func (s *Server) handleDeleteAllAccounts(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.DeleteAllAccounts(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted_count": n})
}

func (s *Server) handleDeleteMultiple(w http.ResponseWriter, r *http.Request) {
	var ids []string
	if err := readJSON(r, &ids); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	if len(ids) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "no account ids provided"})
		return
	}
	n, err := s.store.DeleteAccounts(r.Context(), ids)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	if n == 0 {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "no accounts found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted_count": n})
}

func (s *Server) handleVerifyLogin(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	acc, err := s.store.GetAccount(r.Context(), id)
	if errors.Is(err, sqlite.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "account not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	if err := s.store.SetAccountStatus(r.Context(), id, model.AccountStatusPendingVerification); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "account ready for verification",
		"login_url": "https://sso.garena.com/universal/login?app_id=10100&redirect_uri=https://account.garena.com/?locale_name=SG&locale=vi-VN",
		"account": map[string]any{
			"username": acc.Username,
			"email":    acc.Email,
			"phone":    acc.Phone,
			"password": acc.Password,
		},
	})
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	acc, err := s.store.GetAccount(r.Context(), id)
	if errors.Is(err, sqlite.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "account not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	// Ad-hoc provisioning obeys the same governor as batch jobs.
	if st := s.governor.Status(); st.InCooldown {
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":             "rate limited, retry later",
			"remaining_seconds": st.RemainingSeconds(),
		})
		return
	}

	username := generator.Username("", ".", 0)
	password := generator.Password()

	session, err := s.mailbox.CreateMailbox(r.Context(), username, password)
	if err != nil {
		if mailtm.IsRateLimited(err) {
			s.governor.RecordLimited()
			writeJSON(w, http.StatusTooManyRequests, map[string]any{"error": "mailbox provider rate limit reached"})
			return
		}
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
		return
	}

	if err := s.store.UpdateAccountCredentials(r.Context(), id, username, password, session.Email, s.cfg.Mailbox.Provider, session); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":      "mailbox regenerated",
		"account_id":   id,
		"old_email":    acc.Email,
		"new_email":    session.Email,
		"new_username": username,
	})
}

func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request) {
	acc, err := s.store.GetAccount(r.Context(), r.PathValue("id"))
	if errors.Is(err, sqlite.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "account not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	if !acc.Session.Valid() {
		writeJSON(w, http.StatusOK, map[string]any{
			"account_id": acc.ID,
			"email":      acc.Email,
			"messages":   []model.Message{},
			"error":      "no mailbox session available",
		})
		return
	}

	msgs := s.mailbox.Messages(r.Context(), acc.Session.Token)
	if msgs == nil {
		msgs = []model.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account_id": acc.ID,
		"email":      acc.Email,
		"provider":   acc.EmailProvider,
		"messages":   msgs,
		"count":      len(msgs),
	})
}

func (s *Server) handleInboxMessage(w http.ResponseWriter, r *http.Request) {
	acc, err := s.store.GetAccount(r.Context(), r.PathValue("id"))
	if errors.Is(err, sqlite.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "account not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	if !acc.Session.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "no mailbox session available"})
		return
	}

	msg, ok := s.mailbox.Message(r.Context(), r.PathValue("msgId"), acc.Session.Token)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "message not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account_id": acc.ID,
		"message":    msg,
	})
}

type emailSettingsPayload struct {
	Enabled  *bool   `json:"enabled,omitempty"`
	Email    *string `json:"email,omitempty"`
	AuthCode *string `json:"authCode,omitempty"`
}

func (s *Server) handleGetEmailSettings(w http.ResponseWriter, r *http.Request) {
	val, ok, err := s.store.GetEmailSettings(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"data": model.EmailSettings{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": val})
}

func (s *Server) handleSetEmailSettings(w http.ResponseWriter, r *http.Request) {
	var body emailSettingsPayload
	if err := readJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	current, _, err := s.store.GetEmailSettings(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	next := current
	if body.Enabled != nil {
		next.Enabled = *body.Enabled
	}
	if body.Email != nil {
		next.Email = strings.TrimSpace(*body.Email)
	}
	if body.AuthCode != nil {
		next.AuthCode = strings.TrimSpace(*body.AuthCode)
	}

	saved, err := s.store.UpsertEmailSettings(r.Context(), next)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": saved})
}
