package model

// Message is one inbox entry as returned by the mailbox provider.
type Message struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Subject   string `json:"subject"`
	Intro     string `json:"intro,omitempty"`
	Text      string `json:"text,omitempty"`
	HTML      string `json:"html,omitempty"`
	Seen      bool   `json:"seen"`
	CreatedAt string `json:"createdAt,omitempty"`
}
