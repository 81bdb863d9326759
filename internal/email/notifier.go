package email

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	gomail "gopkg.in/gomail.v2"
)

// Notifier alerts the compliance team. Break-glass access bypasses normal
// consent, so every use triggers an out-of-band notification in addition
// to the audit entry.
type Notifier interface {
	SendEmergencyAccessAlert(ctx context.Context, identityNumber string, found bool, requestRef string) error
}

type Config struct {
	Host            string
	Port            int
	Username        string
	Password        string
	From            string
	ComplianceInbox string
}

type smtpNotifier struct {
	dialer *gomail.Dialer
	cfg    Config
	logger zerolog.Logger
}

func NewSMTPNotifier(cfg Config, logger zerolog.Logger) Notifier {
	return &smtpNotifier{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		cfg:    cfg,
		logger: logger,
	}
}

func (n *smtpNotifier) SendEmergencyAccessAlert(ctx context.Context, identityNumber string, found bool, requestRef string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.From)
	m.SetHeader("To", n.cfg.ComplianceInbox)
	m.SetHeader("Subject", "Emergency access alert")
	m.SetBody("text/plain", fmt.Sprintf(
		"Break-glass access at %s\nIdentity: %s\nProfile found: %t\nRequest: %s\n",
		time.Now().UTC().Format(time.RFC3339), identityNumber, found, requestRef,
	))

	if err := n.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send emergency access alert: %w", err)
	}
	return nil
}

// NewNoopNotifier is used when email alerting is disabled; alerts are
// logged instead.
func NewNoopNotifier(logger zerolog.Logger) Notifier {
	return &noopNotifier{logger: logger}
}

type noopNotifier struct {
	logger zerolog.Logger
}

func (n *noopNotifier) SendEmergencyAccessAlert(_ context.Context, identityNumber string, found bool, requestRef string) error {
	n.logger.Info().
		Str("identity_number", identityNumber).
		Bool("found", found).
		Str("request_ref", requestRef).
		Msg("emergency access alert (email disabled)")
	return nil
}
