// Package email delivers notification and recovery emails over SMTP. It
// implements the narrow Send contract the authenticator depends on; template
// rendering and richer addressing live with the caller.
package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// EncryptionMode selects the SMTP transport security.
type EncryptionMode string

const (
	EncNone     EncryptionMode = "NONE"
	EncStartTLS EncryptionMode = "STARTTLS"
	EncSSLTLS   EncryptionMode = "SSL/TLS"
)

const defaultDialTimeout = 15 * time.Second

// SMTPMailer sends HTML emails through a single SMTP relay.
type SMTPMailer struct {
	host     string
	port     int
	username string
	password string
	fromAddr string
	fromName string
	enc      EncryptionMode
}

// New constructs a mailer. Unknown encryption modes fall back to STARTTLS.
func New(host string, port int, username, password, fromAddr, fromName, enc string) *SMTPMailer {
	mode := EncryptionMode(strings.ToUpper(strings.TrimSpace(enc)))
	if mode != EncNone && mode != EncStartTLS && mode != EncSSLTLS {
		mode = EncStartTLS
	}
	return &SMTPMailer{
		host:     host,
		port:     port,
		username: username,
		password: password,
		fromAddr: fromAddr,
		fromName: fromName,
		enc:      mode,
	}
}

// Send delivers one HTML email. The context deadline bounds the dial.
func (m *SMTPMailer) Send(ctx context.Context, recipient, subject, body string) error {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return fmt.Errorf("email: recipient is required")
	}

	var dialer net.Dialer
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Timeout = time.Until(deadline)
		if dialer.Timeout <= 0 {
			return context.DeadlineExceeded
		}
	} else {
		dialer.Timeout = defaultDialTimeout
	}

	address := fmt.Sprintf("%s:%d", m.host, m.port)
	msg := m.buildMessage(recipient, subject, body)

	switch m.enc {
	case EncSSLTLS:
		conn, err := tls.DialWithDialer(&dialer, "tcp", address, &tls.Config{ServerName: m.host})
		if err != nil {
			return fmt.Errorf("email: tls dial: %w", err)
		}
		defer conn.Close()
		client, err := smtp.NewClient(conn, m.host)
		if err != nil {
			return fmt.Errorf("email: new client: %w", err)
		}
		defer client.Quit()
		return m.deliver(client, recipient, msg)

	case EncStartTLS:
		conn, err := dialer.DialContext(ctx, "tcp", address)
		if err != nil {
			return fmt.Errorf("email: dial: %w", err)
		}
		client, err := smtp.NewClient(conn, m.host)
		if err != nil {
			conn.Close()
			return fmt.Errorf("email: new client: %w", err)
		}
		defer client.Quit()
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: m.host}); err != nil {
				return fmt.Errorf("email: starttls: %w", err)
			}
		}
		return m.deliver(client, recipient, msg)

	default:
		auth := m.auth()
		if err := smtp.SendMail(address, auth, m.fromAddr, []string{recipient}, msg); err != nil {
			return fmt.Errorf("email: sendmail: %w", err)
		}
		return nil
	}
}

func (m *SMTPMailer) auth() smtp.Auth {
	if m.username == "" {
		return nil
	}
	return smtp.PlainAuth("", m.username, m.password, m.host)
}

func (m *SMTPMailer) deliver(client *smtp.Client, recipient string, msg []byte) error {
	if auth := m.auth(); auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("email: auth: %w", err)
		}
	}
	if err := client.Mail(m.fromAddr); err != nil {
		return fmt.Errorf("email: MAIL FROM: %w", err)
	}
	if err := client.Rcpt(recipient); err != nil {
		return fmt.Errorf("email: RCPT TO: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("email: DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return fmt.Errorf("email: write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("email: close data: %w", err)
	}
	return nil
}

func (m *SMTPMailer) buildMessage(recipient, subject, htmlBody string) []byte {
	from := m.fromAddr
	if m.fromName != "" {
		from = fmt.Sprintf("%s <%s>", m.fromName, m.fromAddr)
	}
	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", recipient)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)
	msg.WriteString("\r\n")
	return msg.Bytes()
}
