// Package mail delivers price notifications over SMTP.
package mail

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
	"go.uber.org/zap"

	"github.com/JakeFAU/pricewatch/internal/notify"
)

// Config describes the SMTP relay and sender.
type Config struct {
	Sender   string
	Host     string
	Port     int
	Username string
	Password string
}

// Addr returns host:port.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type sendFunc func(e *email.Email, addr string, auth smtp.Auth) error

// Channel sends one message per change and recipient.
type Channel struct {
	cfg    Config
	send   sendFunc
	logger *zap.Logger
}

// New validates cfg and returns an SMTP channel.
func New(cfg Config, logger *zap.Logger) (*Channel, error) {
	if strings.TrimSpace(cfg.Sender) == "" {
		return nil, errors.New("mail sender is required")
	}
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("smtp host is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{
		cfg:    cfg,
		send:   func(e *email.Email, addr string, auth smtp.Auth) error { return e.Send(addr, auth) },
		logger: logger,
	}, nil
}

// Deliver implements notify.Channel, sending a separate message to each
// recipient. net/smtp has no context support, so ctx is checked before each
// dial.
func (c *Channel) Deliver(ctx context.Context, payload notify.Payload, recipients []string) error {
	if len(recipients) == 0 {
		return errors.New("no recipients")
	}

	var auth smtp.Auth
	if c.cfg.Username != "" {
		auth = smtp.PlainAuth("", c.cfg.Username, c.cfg.Password, c.cfg.Host)
	}

	var errs []error
	for _, to := range recipients {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("send mail: %w", err)
		}
		if err := c.send(c.message(payload, to), c.cfg.Addr(), auth); err != nil {
			errs = append(errs, fmt.Errorf("send mail to %s via %s: %w", to, c.cfg.Addr(), err))
			continue
		}
		c.logger.Debug("mail sent", zap.String("to", to), zap.String("subject", payload.Subject))
	}
	return errors.Join(errs...)
}

func (c *Channel) message(payload notify.Payload, to string) *email.Email {
	msg := email.NewEmail()
	msg.From = fmt.Sprintf("Pricewatch <%s>", c.cfg.Sender)
	msg.To = []string{to}
	msg.Subject = payload.Subject
	msg.Text = []byte(payload.Text)
	msg.HTML = []byte(payload.HTML)
	return msg
}
