package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/bankauth/internal/models"
	pkglogger "github.com/BradenHooton/bankauth/pkg/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"gopkg.in/gomail.v2"
)

const lockoutSubject = "Your account has been temporarily locked"

// LockoutNotifier tells an account holder that their account was locked
type LockoutNotifier interface {
	NotifyLocked(ctx context.Context, user *models.User, lockedUntil time.Time) error
}

func lockoutBodies(user *models.User, lockedUntil time.Time) (htmlBody, textBody string) {
	until := lockedUntil.UTC().Format("15:04 MST on Jan 2, 2006")

	htmlBody = fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h1>Account temporarily locked</h1>
        <p>Hello %s,</p>
        <p>We locked online banking access for <strong>%s</strong> after several failed login attempts.</p>
        <p>You can try again after <strong>%s</strong>.</p>
        <p>If these attempts were not made by you, contact our support team and change your password.</p>
        <p style="color: #666; font-size: 12px;">This is an automated message. Please do not reply to this email.</p>
    </div>
</body>
</html>
`, user.Name, user.Username, until)

	textBody = fmt.Sprintf(`Account temporarily locked

Hello %s,

We locked online banking access for %s after several failed login attempts.
You can try again after %s.

If these attempts were not made by you, contact our support team and change your password.

This is an automated message. Please do not reply to this email.
`, user.Name, user.Username, until)

	return htmlBody, textBody
}

// SESClient is the subset of the SES API used to send mail
type SESClient interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESLockoutNotifier sends lockout notices through AWS SES
type SESLockoutNotifier struct {
	client      SESClient
	fromAddress string
	logger      *slog.Logger
}

// NewSESLockoutNotifier loads the default AWS config for region
func NewSESLockoutNotifier(ctx context.Context, region, fromAddress string, logger *slog.Logger) (*SESLockoutNotifier, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewSESLockoutNotifierWithClient(ses.NewFromConfig(cfg), fromAddress, logger), nil
}

// NewSESLockoutNotifierWithClient creates a notifier over an existing SES client
func NewSESLockoutNotifierWithClient(client SESClient, fromAddress string, logger *slog.Logger) *SESLockoutNotifier {
	return &SESLockoutNotifier{
		client:      client,
		fromAddress: fromAddress,
		logger:      logger,
	}
}

func (n *SESLockoutNotifier) NotifyLocked(ctx context.Context, user *models.User, lockedUntil time.Time) error {
	htmlBody, textBody := lockoutBodies(user, lockedUntil)

	input := &ses.SendEmailInput{
		Source: aws.String(n.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{user.Email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(lockoutSubject),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(htmlBody),
				},
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := n.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send lockout email via SES: %w", err)
	}

	n.logger.Info("lockout notification sent",
		slog.String("email", pkglogger.SanitizedEmail(user.Email)),
		slog.String("message_id", aws.ToString(result.MessageId)))

	return nil
}

// MailDialer delivers composed messages
type MailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPLockoutNotifier sends lockout notices through an SMTP relay
type SMTPLockoutNotifier struct {
	dialer      MailDialer
	fromAddress string
	logger      *slog.Logger
}

// NewSMTPLockoutNotifier creates a notifier that dials host:port for every message
func NewSMTPLockoutNotifier(host string, port int, username, password, fromAddress string, logger *slog.Logger) *SMTPLockoutNotifier {
	return NewSMTPLockoutNotifierWithDialer(gomail.NewDialer(host, port, username, password), fromAddress, logger)
}

// NewSMTPLockoutNotifierWithDialer creates a notifier over an existing dialer
func NewSMTPLockoutNotifierWithDialer(dialer MailDialer, fromAddress string, logger *slog.Logger) *SMTPLockoutNotifier {
	return &SMTPLockoutNotifier{
		dialer:      dialer,
		fromAddress: fromAddress,
		logger:      logger,
	}
}

// NotifyLocked sends the notice. gomail has no context support, so ctx is
// only checked before dialing.
func (n *SMTPLockoutNotifier) NotifyLocked(ctx context.Context, user *models.User, lockedUntil time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	htmlBody, textBody := lockoutBodies(user, lockedUntil)

	m := gomail.NewMessage()
	m.SetHeader("From", n.fromAddress)
	m.SetHeader("To", user.Email)
	m.SetHeader("Subject", lockoutSubject)
	m.SetBody("text/plain", textBody)
	m.AddAlternative("text/html", htmlBody)

	if err := n.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send lockout email via SMTP: %w", err)
	}

	n.logger.Info("lockout notification sent", slog.String("email", pkglogger.SanitizedEmail(user.Email)))
	return nil
}
