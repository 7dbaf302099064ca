// Package emailer delivers the HTML run report over SMTP. Port 465 speaks
// implicit TLS, anything else dials plain and upgrades with STARTTLS when
// the server offers it.
package emailer

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/smtp"
	"os"
	"strings"

	"igmonitor/pkg/config"
	"igmonitor/pkg/errors"
	"igmonitor/pkg/logger"
)

// Sender sends HTML mail through a configured SMTP relay
type Sender struct {
	cfg    config.SMTPConfig
	logger logger.Logger
}

// NewSender creates an SMTP sender
func NewSender(cfg config.SMTPConfig, log logger.Logger) *Sender {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Sender{cfg: cfg, logger: log}
}

// Send delivers one HTML message to the recipients
func (s *Sender) Send(recipients []string, subject, htmlBody string) error {
	if len(recipients) == 0 {
		return errors.New(errors.ErrorTypeNotification, "no recipients configured")
	}

	fromHeader := s.cfg.FromEmail
	if strings.TrimSpace(s.cfg.FromName) != "" {
		fromHeader = fmt.Sprintf("%s <%s>", s.cfg.FromName, s.cfg.FromEmail)
	}

	headers := []string{
		"From: " + sanitizeHeader(fromHeader),
		"To: " + sanitizeHeader(strings.Join(recipients, ", ")),
		"Subject: " + sanitizeHeader(subject),
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
		"",
		htmlBody,
	}
	msg := []byte(strings.Join(headers, "\r\n"))

	client, err := s.connect()
	if err != nil {
		return err
	}
	defer client.Close()

	if s.cfg.Username != "" && s.cfg.Password != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Server)
		if err := client.Auth(auth); err != nil {
			return errors.Wrap(errors.ErrorTypeNotification, err, "smtp authentication failed")
		}
	}

	if err := client.Mail(s.cfg.FromEmail); err != nil {
		return errors.Wrap(errors.ErrorTypeNotification, err, "smtp mail from failed")
	}
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return errors.Wrap(errors.ErrorTypeNotification, err, "smtp rcpt to failed")
		}
	}

	w, err := client.Data()
	if err != nil {
		return errors.Wrap(errors.ErrorTypeNotification, err, "smtp data failed")
	}
	if _, err := w.Write(msg); err != nil {
		return errors.Wrap(errors.ErrorTypeNotification, err, "smtp write failed")
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(errors.ErrorTypeNotification, err, "smtp close failed")
	}

	if err := client.Quit(); err != nil {
		s.logger.WithError(err).Debug("smtp quit failed")
	}

	s.logger.InfoWithFields("report email sent", map[string]interface{}{
		"recipients": len(recipients),
		"subject":    subject,
	})

	return nil
}

// connect dials the relay, implicit TLS on 465, STARTTLS otherwise
func (s *Sender) connect() (*smtp.Client, error) {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server, s.cfg.Port)

	if s.cfg.Port == 465 {
		conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: s.cfg.Server})
		if err != nil {
			return nil, errors.Wrap(errors.ErrorTypeNotification, err, "smtp tls dial failed")
		}
		client, err := smtp.NewClient(conn, s.cfg.Server)
		if err != nil {
			conn.Close()
			return nil, errors.Wrap(errors.ErrorTypeNotification, err, "smtp handshake failed")
		}
		return client, nil
	}

	client, err := smtp.Dial(addr)
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeNotification, err, "smtp dial failed")
	}
	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Server}); err != nil {
			client.Close()
			return nil, errors.Wrap(errors.ErrorTypeNotification, err, "starttls failed")
		}
	}
	return client, nil
}

func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	return s
}

// subscribersFile matches the subscribers.json layout
type subscribersFile struct {
	Subscribers []string `json:"subscribers"`
}

// LoadSubscribers reads the recipient list from a subscribers.json file
func LoadSubscribers(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeNotification, err, "failed to read subscribers file")
	}

	var parsed subscribersFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, errors.Wrap(errors.ErrorTypeNotification, err, "failed to parse subscribers file")
	}

	var out []string
	for _, addr := range parsed.Subscribers {
		addr = strings.TrimSpace(addr)
		if addr != "" {
			out = append(out, addr)
		}
	}
	return out, nil
}
