package mail

import (
	"context"

	"github.com/dmitrijs2005/folioguard/internal/logging"
)

// LogSender stands in for SMTP in development. Only the subject is logged;
// bodies carry live tokens.
type LogSender struct {
	log logging.Logger
}

func NewLogSender(log logging.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.log.Info(ctx, "mail delivery skipped, no SMTP host configured", "subject", msg.Subject)
	return nil
}
