package mailer

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/AnchalDevBytes/challan-maker/pkg/config"
)

// Sender delivers transactional email. Satisfied by Mailer and by test fakes.
type Sender interface {
	Send(ctx context.Context, to, subject, text string) error
}

// Mailer sends plain-text transactional mail over SMTP.
type Mailer struct {
	client *mail.Client
	cfg    config.MailConfig
	logger *zap.Logger
}

// New builds an SMTP mailer from configuration.
func New(cfg config.MailConfig, logger *zap.Logger) (*Mailer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FromAddress == "" {
		return nil, fmt.Errorf("MAIL_FROM_ADDRESS is required")
	}

	opts := []mail.Option{mail.WithPort(cfg.Port)}

	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	switch cfg.Encryption {
	case "ssl":
		opts = append(opts, mail.WithSSL())
	case "none":
		opts = append(opts, mail.WithTLSPortPolicy(mail.NoTLS))
	default:
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create mail client: %w", err)
	}

	return &Mailer{client: client, cfg: cfg, logger: logger}, nil
}

// Send delivers a plain-text message to a single recipient.
func (m *Mailer) Send(ctx context.Context, to, subject, text string) error {
	msg := mail.NewMsg()
	if err := msg.FromFormat(m.cfg.FromName, m.cfg.FromAddress); err != nil {
		return fmt.Errorf("set from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("set recipient: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, text)

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		m.logger.Error("failed to send email", zap.String("to", to), zap.Error(err))
		return fmt.Errorf("send email: %w", err)
	}

	m.logger.Info("email sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}
