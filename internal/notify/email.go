package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// SMTPConfig holds SMTP connection parameters.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	TLS      bool
}

// Enabled reports whether enough is configured to send mail.
func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.From != ""
}

// EmailSender sends notifications via SMTP.
type EmailSender struct {
	config SMTPConfig
	logger *zap.Logger

	// send is swapped in tests.
	send func(ctx context.Context, addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailSender creates an SMTP-based email sender.
func NewEmailSender(cfg SMTPConfig, logger *zap.Logger) *EmailSender {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	s := &EmailSender{config: cfg, logger: logger.With(zap.String("component", "notify"))}
	s.send = s.deliver
	return s
}

// Notify sends one plain-text message. to may hold a comma separated list.
// A send that outlives ctx is torn down, so it cannot complete later.
func (s *EmailSender) Notify(ctx context.Context, to, subject, body string) error {
	recipients := splitRecipients(to)
	if len(recipients) == 0 {
		return fmt.Errorf("no recipients in %q", to)
	}

	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))

	var auth smtp.Auth
	if s.config.Username != "" && s.config.Password != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}

	msg := buildEmailBody(s.config.From, recipients, subject, body, time.Now())

	if err := s.send(ctx, addr, auth, s.config.From, recipients, msg); err != nil {
		// The socket deadline can fire a moment before ctx's own timer.
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return fmt.Errorf("smtp send to %s: %w", strings.Join(recipients, ","), context.DeadlineExceeded)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("smtp send to %s: %w", strings.Join(recipients, ","), ctxErr)
		}
		return fmt.Errorf("smtp send to %s: %w", strings.Join(recipients, ","), err)
	}
	s.logger.Debug("email sent", zap.Strings("to", recipients), zap.String("subject", subject))
	return nil
}

// deliver runs one SMTP session on a connection bound to ctx: the deadline
// applies to every read and write, and cancellation closes the socket.
func (s *EmailSender) deliver(ctx context.Context, addr string, auth smtp.Auth, from string, to []string, body []byte) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return fmt.Errorf("set deadline: %w", err)
		}
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	tlsConfig := &tls.Config{
		ServerName: s.config.Host,
		MinVersion: tls.VersionTLS12,
	}

	if s.config.TLS {
		tlsConn := tls.Client(conn, tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			return fmt.Errorf("tls handshake %s: %w", addr, err)
		}
		conn = tlsConn
	}

	client, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	defer client.Close()

	if !s.config.TLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("smtp STARTTLS: %w", err)
			}
		}
	}

	if auth != nil {
		if ok, _ := client.Extension("AUTH"); !ok {
			return fmt.Errorf("smtp: server doesn't support AUTH")
		}
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp RCPT TO %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("smtp write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}

	return client.Quit()
}

func splitRecipients(to string) []string {
	var out []string
	for _, r := range strings.Split(to, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

func buildEmailBody(from string, to []string, subject, text string, now time.Time) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	b.WriteString("Subject: " + sanitizeHeader(subject) + "\r\n")
	b.WriteString("Date: " + now.Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(text)
	return []byte(b.String())
}

// sanitizeHeader strips line breaks so rendered template values cannot
// inject extra headers.
func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}
