package mailer

import (
	"context"
	"fmt"
	"html"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

const verificationSubject = "Verify your MatchMage account"

// SendGridMailer sends mail through the SendGrid v3 API.
type SendGridMailer struct {
	client     *sendgrid.Client
	senderName string
	senderAddr string
	logger     *zap.Logger
}

func NewSendGridMailer(apiKey, senderAddr, senderName string, logger *zap.Logger) *SendGridMailer {
	return &SendGridMailer{
		client:     sendgrid.NewSendClient(apiKey),
		senderName: senderName,
		senderAddr: senderAddr,
		logger:     logger,
	}
}

// SendVerificationEmail fails on transport errors and on any non-2xx answer.
func (m *SendGridMailer) SendVerificationEmail(ctx context.Context, to, link string) error {
	message := m.verificationMessage(to, link)

	response, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send verification email to %s: %w", to, err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return fmt.Errorf("sendgrid rejected verification email to %s: status %d: %s", to, response.StatusCode, response.Body)
	}

	m.logger.Info("verification email sent", zap.String("to", to), zap.Int("status", response.StatusCode))
	return nil
}

func (m *SendGridMailer) verificationMessage(to, link string) *mail.SGMailV3 {
	from := mail.NewEmail(m.senderName, m.senderAddr)
	recipient := mail.NewEmail("", to)

	plainTextContent := fmt.Sprintf("Welcome to MatchMage!\n\nConfirm your email address by opening this link:\n%s\n", link)
	escaped := html.EscapeString(link)
	htmlContent := fmt.Sprintf(`<p>Welcome to MatchMage!</p><p><a href="%s">Confirm your email address</a></p><p>%s</p>`, escaped, escaped)

	return mail.NewSingleEmail(from, verificationSubject, recipient, plainTextContent, htmlContent)
}
