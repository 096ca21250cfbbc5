package model

import "time"

type AccountStatus string

const (
	AccountStatusCreated             AccountStatus = "created"
	AccountStatusPendingVerification AccountStatus = "pending_verification"
)

// MailboxSession is the credential bundle needed to query a provisioned
// mailbox later. It is owned exclusively by one account record.
type MailboxSession struct {
	Email     string    `json:"email"`
	Password  string    `json:"password"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s MailboxSession) Valid() bool {
	return s.Token != ""
}

type Account struct {
	ID            string         `json:"id"`
	Username      string         `json:"username"`
	Password      string         `json:"password"`
	Email         string         `json:"email"`
	Phone         string         `json:"phone,omitempty"`
	Status        AccountStatus  `json:"status"`
	EmailProvider string         `json:"emailProvider,omitempty"`
	Session       MailboxSession `json:"session"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}
