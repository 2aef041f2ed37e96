// Package notify delivers short messages, such as confirmation codes, to an
// email address.
package notify

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/wneessen/go-mail"
)

// Notifier delivers one message. A nil error means the message was handed
// to the delivery channel.
type Notifier interface {
	Send(ctx context.Context, address, subject, body string) error
}

// SMTPConfig identifies the sender and the relay.
type SMTPConfig struct {
	SenderName  string
	SenderEmail string
	Host        string
	Port        int
	Password    string
}

// SMTPNotifier sends plain-text mail through an SMTP relay, opening a new
// connection per message.
type SMTPNotifier struct {
	cfg  SMTPConfig
	send func(ctx context.Context, msg *mail.Msg) error
}

func NewSMTPNotifier(cfg SMTPConfig) (*SMTPNotifier, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.SenderEmail),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}

	return &SMTPNotifier{
		cfg: cfg,
		send: func(ctx context.Context, msg *mail.Msg) error {
			return client.DialAndSendWithContext(ctx, msg)
		},
	}, nil
}

func (n *SMTPNotifier) Send(ctx context.Context, address, subject, body string) error {
	msg := mail.NewMsg()
	if err := msg.FromFormat(n.cfg.SenderName, n.cfg.SenderEmail); err != nil {
		return fmt.Errorf("sender: %w", err)
	}
	if err := msg.To(address); err != nil {
		return fmt.Errorf("recipient: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	if err := n.send(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// LogNotifier writes messages to the log instead of sending them. It is used
// when no SMTP relay is configured.
type LogNotifier struct {
	logger logging.Logger
}

func NewLogNotifier(logger logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, address, subject, body string) error {
	n.logger.Info(ctx, "notification", "to", address, "subject", subject, "body", body)
	return nil
}
