// Package mail renders and delivers the account security emails.
package mail

import "context"

// Message is one email with an HTML body and a plain-text fallback.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}
