package model

// EmailSettings configures the job-completion notification mail.
type EmailSettings struct {
	Enabled  bool   `json:"enabled"`
	Email    string `json:"email"`
	AuthCode string `json:"authCode"`
}
