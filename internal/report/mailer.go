package report

import (
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/tlpi-group/marketing-cli/internal/config"
)

// Mailer delivers the weekly report over SMTP. An unconfigured transport is
// not an error: Send logs a warning and skips, so report generation never
// fails on delivery setup.
type Mailer struct {
	cfg config.SMTPConfig
}

// NewMailer creates a mailer from SMTP settings.
func NewMailer(cfg config.SMTPConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

// Configured reports whether the transport has enough settings to send.
func (m *Mailer) Configured() bool {
	return m.cfg.Host != "" && m.cfg.User != "" && m.cfg.Password != "" && m.cfg.To != ""
}

// Send mails the summary to the configured recipients. Returns (false, nil)
// when the transport is unconfigured.
func (m *Mailer) Send(subject, body string) (bool, error) {
	log := zap.L().With(zap.String("component", "report.mailer"))

	if !m.Configured() {
		log.Warn("email transport not configured, skipping send")
		return false, nil
	}

	port := m.cfg.Port
	if port == 0 {
		port = 587
	}
	from := m.cfg.From
	if from == "" {
		from = m.cfg.User
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", splitRecipients(m.cfg.To)...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	dialer := gomail.NewDialer(m.cfg.Host, port, m.cfg.User, m.cfg.Password)
	if err := dialer.DialAndSend(msg); err != nil {
		return false, eris.Wrap(err, "report: send email")
	}

	log.Info("report emailed", zap.String("to", m.cfg.To))
	return true, nil
}

func splitRecipients(to string) []string {
	parts := strings.Split(to, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
