package services

import (
	"context"
	"crypto/tls"
	"fmt"
	"html"
	"log/slog"

	"github.com/BradenHooton/consensus/internal/config"
	pkglogger "github.com/BradenHooton/consensus/pkg/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	mail "github.com/go-mail/mail"
)

// Mailer delivers account emails
type Mailer interface {
	SendPasswordReset(ctx context.Context, to, name, tempPassword string) error
}

const passwordResetSubject = "Your new consensus password"

// NewMailer returns the mailer selected by MAIL_DRIVER
func NewMailer(ctx context.Context, cfg config.MailConfig, logger *slog.Logger) (Mailer, error) {
	switch cfg.Driver {
	case config.MailDriverSES:
		return NewSESMailer(ctx, cfg.AWSRegion, cfg.FromAddress, logger)
	case config.MailDriverSMTP:
		return NewSMTPMailer(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown mail driver %q", cfg.Driver)
	}
}

func passwordResetBodies(name, tempPassword string) (htmlBody, textBody string) {
	if name == "" {
		name = "there"
	}

	htmlBody = fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
    <p>Hi %s,</p>
    <p>A password reset was requested for your account. Your temporary password is:</p>
    <p style="font-size: 18px;"><code>%s</code></p>
    <p>Sign in with it and change it from your profile straight away.</p>
    <p style="color: #666; font-size: 12px;">If you did not ask for this, contact your administrator.</p>
</body>
</html>
`, html.EscapeString(name), html.EscapeString(tempPassword))

	textBody = fmt.Sprintf(`Hi %s,

A password reset was requested for your account. Your temporary password is:

%s

Sign in with it and change it from your profile straight away.

If you did not ask for this, contact your administrator.
`, name, tempPassword)

	return htmlBody, textBody
}

// sesAPI is the part of the SES client used by SESMailer
type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESMailer sends mail through AWS SES
type SESMailer struct {
	client      sesAPI
	fromAddress string
	logger      *slog.Logger
}

func NewSESMailer(ctx context.Context, region, fromAddress string, logger *slog.Logger) (*SESMailer, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESMailer{
		client:      ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

func (m *SESMailer) SendPasswordReset(ctx context.Context, to, name, tempPassword string) error {
	htmlBody, textBody := passwordResetBodies(name, tempPassword)

	input := &ses.SendEmailInput{
		Source: aws.String(m.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(passwordResetSubject),
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

	result, err := m.client.SendEmail(ctx, input)
	if err != nil {
		m.logger.Error("failed to send password reset email via SES",
			slog.String("email", pkglogger.SanitizedEmail(to)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	m.logger.Info("password reset email sent",
		slog.String("email", pkglogger.SanitizedEmail(to)),
		slog.String("message_id", aws.ToString(result.MessageId)))
	return nil
}

// smtpDialer is satisfied by *mail.Dialer
type smtpDialer interface {
	DialAndSend(m ...*mail.Message) error
}

// SMTPMailer sends mail through an SMTP relay. TLS mode is "auto",
// "starttls", "ssl" or "none".
type SMTPMailer struct {
	dialer smtpDialer
	from   string
	logger *slog.Logger
}

func NewSMTPMailer(cfg config.MailConfig, logger *slog.Logger) *SMTPMailer {
	d := mail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword)
	d.TLSConfig = &tls.Config{ServerName: cfg.SMTPHost}

	switch cfg.SMTPTLSMode {
	case "ssl":
		d.SSL = true
	case "starttls":
		d.StartTLSPolicy = mail.MandatoryStartTLS
	case "none":
		d.StartTLSPolicy = mail.NoStartTLS
	default:
		// auto: upgrade when the server offers STARTTLS
	}

	return &SMTPMailer{dialer: d, from: cfg.FromAddress, logger: logger}
}

func (m *SMTPMailer) SendPasswordReset(ctx context.Context, to, name, tempPassword string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	htmlBody, textBody := passwordResetBodies(name, tempPassword)

	msg := mail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", passwordResetSubject)
	msg.SetBody("text/plain", textBody)
	msg.AddAlternative("text/html", htmlBody)

	if err := m.dialer.DialAndSend(msg); err != nil {
		m.logger.Error("failed to send password reset email via SMTP",
			slog.String("email", pkglogger.SanitizedEmail(to)),
			slog.Any("error", err))
		return fmt.Errorf("smtp send: %w", err)
	}

	m.logger.Info("password reset email sent", slog.String("email", pkglogger.SanitizedEmail(to)))
	return nil
}
