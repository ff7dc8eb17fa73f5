// Package mailer sends plain-text email over SMTP.
package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// ErrNotConfigured is returned by Send when no SMTP account is set up.
var ErrNotConfigured = errors.New("smtp not configured")

// ErrInvalidRecipient is returned by Send when the recipient is not a
// parseable address.
var ErrInvalidRecipient = errors.New("invalid recipient")

type Config struct {
	Server   string
	Port     int
	Username string
	Password string
	FromName string
	// Aliases maps short recipient names such as "boss" to addresses.
	Aliases map[string]string
	// InsecureSkipStartTLS sends without upgrading the connection. Only
	// used against local test servers.
	InsecureSkipStartTLS bool
}

// SMTP sends mail through one SMTP account.
type SMTP struct {
	cfg    Config
	now    func() time.Time
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *SMTP {
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTP{cfg: cfg, now: time.Now, logger: logger}
}

// Configured reports whether a server and account are set.
func (m *SMTP) Configured() bool {
	return m.cfg.Server != "" && m.cfg.Username != ""
}

// Resolve maps an alias to its address; other recipients are returned as is.
func (m *SMTP) Resolve(recipient string) string {
	if addr, ok := m.cfg.Aliases[strings.ToLower(recipient)]; ok {
		return addr
	}
	return recipient
}

// Send delivers a plain-text message to a single recipient.
func (m *SMTP) Send(ctx context.Context, to, subject, body string) error {
	if !m.Configured() {
		return ErrNotConfigured
	}
	rcpt, err := mail.ParseAddress(to)
	if err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidRecipient, to, err)
	}

	c, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	from := m.cfg.Username
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	if err := c.Rcpt(rcpt.Address); err != nil {
		return fmt.Errorf("smtp RCPT TO: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	msg := BuildMessage(m.fromHeader(), rcpt.Address, subject, body, m.now())
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp finishing message: %w", err)
	}
	if err := c.Quit(); err != nil {
		m.logger.Debug("smtp quit failed", "error", err)
	}

	m.logger.Info("email sent", "to", rcpt.Address, "subject", subject)
	return nil
}

// TestConnection connects, upgrades to TLS and authenticates without
// sending anything.
func (m *SMTP) TestConnection(ctx context.Context) error {
	if !m.Configured() {
		return ErrNotConfigured
	}
	c, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Quit()
}

func (m *SMTP) connect(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(m.cfg.Server, strconv.Itoa(m.cfg.Port))

	var d net.Dialer
	dialCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	conn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("smtp connect %s: %w", addr, err)
	}
	deadline := time.Now().Add(defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	conn.SetDeadline(deadline)

	c, err := smtp.NewClient(conn, m.cfg.Server)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("smtp handshake: %w", err)
	}

	if !m.cfg.InsecureSkipStartTLS {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			c.Close()
			return nil, fmt.Errorf("smtp server %s does not support STARTTLS", addr)
		}
		if err := c.StartTLS(&tls.Config{ServerName: m.cfg.Server}); err != nil {
			c.Close()
			return nil, fmt.Errorf("smtp STARTTLS: %w", err)
		}
	}

	if ok, _ := c.Extension("AUTH"); ok {
		auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Server)
		if err := c.Auth(auth); err != nil {
			c.Close()
			return nil, fmt.Errorf("smtp auth: %w", err)
		}
	}
	return c, nil
}

func (m *SMTP) fromHeader() string {
	name := m.cfg.FromName
	if name == "" {
		name = "Chat Hub"
	}
	return (&mail.Address{Name: name, Address: m.cfg.Username}).String()
}

// BuildMessage renders an RFC 5322 plain-text message. Non-ASCII subjects
// are Q-encoded.
func BuildMessage(from, to, subject, body string, date time.Time) []byte {
	var sb strings.Builder
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	fmt.Fprintf(&sb, "From: %s\r\n", from)
	fmt.Fprintf(&sb, "To: %s\r\n", to)
	fmt.Fprintf(&sb, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&sb, "Date: %s\r\n", date.UTC().Format(time.RFC1123Z))
	sb.WriteString("\r\n")
	sb.WriteString(strings.ReplaceAll(strings.ReplaceAll(body, "\r\n", "\n"), "\n", "\r\n"))
	return []byte(sb.String())
}

// ParseAliases reads "name=addr,name=addr". Names are case-insensitive.
func ParseAliases(s string) (map[string]string, error) {
	aliases := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, addr, ok := strings.Cut(pair, "=")
		name, addr = strings.ToLower(strings.TrimSpace(name)), strings.TrimSpace(addr)
		if !ok || name == "" || addr == "" {
			return nil, fmt.Errorf("invalid alias %q: want name=address", pair)
		}
		if _, err := mail.ParseAddress(addr); err != nil {
			return nil, fmt.Errorf("invalid alias %q: %w", pair, err)
		}
		aliases[name] = addr
	}
	return aliases, nil
}
