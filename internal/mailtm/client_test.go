package mailtm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"account_factory/internal/config"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(
		config.MailboxConfig{BaseURL: srv.URL, TimeoutMs: 2000},
		config.LimitsConfig{ProviderQPS: 1000, ProviderBurst: 100},
		nil,
	)
}

// replyJSON sets the content type explicitly; without it the handler body is
// sniffed as text/plain and the client refuses to unmarshal it.
func replyJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestDomainsSuccess(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/domains", r.URL.Path)
		replyJSON(w, http.StatusOK, map[string]any{
			"hydra:member": []map[string]string{
				{"domain": "mail.tm"},
				{"domain": "indigobook.com"},
			},
		})
	}))

	domains := c.Domains(context.Background())
	assert.Equal(t, []string{"mail.tm", "indigobook.com"}, domains)
}

func TestDomainsFallbackOnFailure(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	assert.Equal(t, []string{"mail.tm"}, c.Domains(context.Background()))
}

func TestCreateMailbox(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/domains":
			replyJSON(w, http.StatusOK, map[string]any{
				"hydra:member": []map[string]string{{"domain": "mail.tm"}},
			})
		case "/accounts":
			var body struct {
				Address  string `json:"address"`
				Password string `json:"password"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.True(t, strings.HasSuffix(body.Address, "@mail.tm"))
			require.NotEmpty(t, body.Password)
			replyJSON(w, http.StatusCreated, map[string]string{"id": "a1", "address": body.Address})
		case "/token":
			replyJSON(w, http.StatusOK, map[string]string{"token": "tok123"})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))

	session, err := c.CreateMailbox(context.Background(), "boxuser", "pw12345678")
	require.NoError(t, err)
	assert.Equal(t, "boxuser@mail.tm", session.Email)
	assert.Equal(t, "tok123", session.Token)
	assert.True(t, session.Valid())
	assert.False(t, session.CreatedAt.IsZero())
}

func TestCreateMailboxRateLimited(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/domains" {
			replyJSON(w, http.StatusOK, map[string]any{
				"hydra:member": []map[string]string{{"domain": "mail.tm"}},
			})
			return
		}
		replyJSON(w, http.StatusTooManyRequests, map[string]string{"detail": "Too Many Requests"})
	}))

	_, err := c.CreateMailbox(context.Background(), "", "")
	require.Error(t, err)
	assert.True(t, IsRateLimited(err))

	var pe *ProvisionError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusTooManyRequests, pe.StatusCode)
}

func TestCreateMailboxOrdinaryFailure(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/domains" {
			replyJSON(w, http.StatusOK, map[string]any{
				"hydra:member": []map[string]string{{"domain": "mail.tm"}},
			})
			return
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))

	_, err := c.CreateMailbox(context.Background(), "", "")
	require.Error(t, err)
	assert.False(t, IsRateLimited(err))
}

func TestMessagesFiltersTestSenders(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		replyJSON(w, http.StatusOK, map[string]any{
			"hydra:member": []map[string]any{
				{
					"id":      "m1",
					"from":    map[string]string{"address": "noreply@example.com"},
					"subject": "ignore me",
				},
				{
					"id":      "m2",
					"from":    map[string]string{"address": "alerts@realmail.tm"},
					"subject": "keep me",
				},
			},
		})
	}))

	msgs := c.Messages(context.Background(), "tok")
	require.Len(t, msgs, 1)
	assert.Equal(t, "m2", msgs[0].ID)
	assert.Equal(t, "alerts@realmail.tm", msgs[0].From)
}

func TestMessagesEmptyOnFailure(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	assert.Empty(t, c.Messages(context.Background(), "bad"))
}

func TestMessageFetch(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/messages/m2", r.URL.Path)
		replyJSON(w, http.StatusOK, map[string]any{
			"id":        "m2",
			"from":      map[string]string{"address": "alerts@realmail.tm"},
			"subject":   "Welcome",
			"text":      "hello",
			"html":      []string{"<p>hello</p>"},
			"seen":      true,
			"createdAt": "2026-08-30T10:00:00Z",
		})
	}))

	msg, ok := c.Message(context.Background(), "m2", "tok")
	require.True(t, ok)
	assert.Equal(t, "Welcome", msg.Subject)
	assert.Equal(t, "<p>hello</p>", msg.HTML)
	assert.True(t, msg.Seen)
	assert.Equal(t, "2026-08-30T10:00:00Z", msg.CreatedAt)
}

func TestMessageAbsent(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, ok := c.Message(context.Background(), "missing", "tok")
	assert.False(t, ok)
}
