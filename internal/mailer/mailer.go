package mailer

import (
	"fmt"
	"net/smtp"

	"github.com/rs/zerolog"
)

// Config carries the SMTP account used for organizer notifications.
type Config struct {
	Host      string
	Port      string
	From      string
	Password  string
	Organizer string
}

// SendApprovalNotification tells the organizer that a supplier submitted a
// change that is waiting for a decision.
func SendApprovalNotification(log *zerolog.Logger, cfg Config, eventName, supplierName, kind string) error {
	if cfg.Host == "" || cfg.Organizer == "" {
		log.Debug().Msg("mailer not configured, skipping notification")
		return nil
	}

	var subject, body string
	switch kind {
	case "registration":
		subject = "New registration awaiting approval"
		body = fmt.Sprintf("Supplier %q submitted a new guest registration for event %q.\nIt is waiting for your approval in the dashboard.", supplierName, eventName)
	case "removal":
		subject = "Removal request awaiting approval"
		body = fmt.Sprintf("Supplier %q asked to remove one of their guests from event %q.\nIt is waiting for your approval in the dashboard.", supplierName, eventName)
	case "substitution":
		subject = "Substitution request awaiting approval"
		body = fmt.Sprintf("Supplier %q proposed a guest substitution for event %q.\nIt is waiting for your approval in the dashboard.", supplierName, eventName)
	default:
		subject = "Change awaiting approval"
		body = fmt.Sprintf("Supplier %q submitted a change for event %q.", supplierName, eventName)
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		cfg.From, cfg.Organizer, subject, body,
	)

	addr := cfg.Host + ":" + cfg.Port
	a := smtp.PlainAuth("", cfg.From, cfg.Password, cfg.Host)

	if err := smtp.SendMail(addr, a, cfg.From, []string{cfg.Organizer}, []byte(msg)); err != nil {
		log.Warn().Msgf("failed to send notification to %s: %v", cfg.Organizer, err)
		return fmt.Errorf("send email: %w", err)
	}

	log.Info().Msgf("notification sent to %s (%s)", cfg.Organizer, kind)
	return nil
}
