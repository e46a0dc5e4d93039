// Package notify sends invitations by email, WhatsApp and SMS links, and
// tells the couple about new responses.
package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"time"

	"github.com/domodwyer/mailyak/v3"

	"wedding-rsvp/internal/config"
)

// Email is a fully rendered message
type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"-"`
}

// Mailer delivers emails
type Mailer interface {
	Send(ctx context.Context, e Email) error
	// Verify checks that the server accepts a connection and our credentials
	Verify(ctx context.Context) error
}

// SMTPMailer sends mail through an SMTP relay
type SMTPMailer struct {
	cfg     config.SMTP
	timeout time.Duration
}

// NewSMTPMailer returns a mailer for cfg
func NewSMTPMailer(cfg config.SMTP) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, timeout: 30 * time.Second}
}

func (m *SMTPMailer) auth() smtp.Auth {
	if m.cfg.User == "" {
		return nil
	}
	return smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)
}

func (m *SMTPMailer) tlsConfig() *tls.Config {
	return &tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12}
}

// Send delivers e. mailyak has no context support, so ctx is only checked
// before the message goes out.
func (m *SMTPMailer) Send(ctx context.Context, e Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var mail *mailyak.MailYak
	if m.cfg.TLS {
		var err error
		mail, err = mailyak.NewWithTLS(m.cfg.Addr(), m.auth(), m.tlsConfig())
		if err != nil {
			return fmt.Errorf("failed to create mail: %w", err)
		}
	} else {
		mail = mailyak.New(m.cfg.Addr(), m.auth())
	}

	mail.To(e.To)
	mail.From(m.cfg.From)
	if m.cfg.FromName != "" {
		mail.FromName(m.cfg.FromName)
	}
	mail.Subject(e.Subject)
	mail.HTML().Set(e.HTML)
	if e.Text != "" {
		mail.Plain().Set(e.Text)
	}

	if err := mail.Send(); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", e.To, err)
	}
	return nil
}

// Verify opens a session, upgrades to TLS when offered, authenticates and quits
func (m *SMTPMailer) Verify(ctx context.Context) error {
	if !m.cfg.Configured() {
		return fmt.Errorf("smtp is not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", m.cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", m.cfg.Addr(), err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	if m.cfg.TLS {
		conn = tls.Client(conn, m.tlsConfig())
	}

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake failed: %w", err)
	}
	defer c.Close()

	if !m.cfg.TLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(m.tlsConfig()); err != nil {
				return fmt.Errorf("starttls failed: %w", err)
			}
		}
	}
	if auth := m.auth(); auth != nil {
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp authentication failed: %w", err)
		}
	}
	return c.Quit()
}
