// Package mailer delivers account emails.
package mailer

import (
	"context"

	"go.uber.org/zap"
)

// Mailer sends the email-verification message.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, to, link string) error
}

// LogMailer writes the verification link to the log instead of sending it.
// Intended for local development.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendVerificationEmail(_ context.Context, to, link string) error {
	m.logger.Info("verification email", zap.String("to", to), zap.String("link", link))
	return nil
}
