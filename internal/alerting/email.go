package alerting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"

	"price-threshold-alerts/internal/alert"
)

// MailSender is the part of *mail.Client the e-mail channel uses.
type MailSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// EmailOptions configures SMTP delivery.
type EmailOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	TLS      string
	Timeout  time.Duration
}

// EmailChannel sends plain text mails over SMTP.
type EmailChannel struct {
	sender MailSender
	from   string
	to     []string
	logger zerolog.Logger
}

// NewSMTPClient builds a go-mail client from options.
func NewSMTPClient(opts EmailOptions) (*mail.Client, error) {
	clientOpts := []mail.Option{
		mail.WithTLSPolicy(tlsPolicy(opts.TLS)),
	}
	if opts.Port > 0 {
		clientOpts = append(clientOpts, mail.WithPort(opts.Port))
	}
	if opts.Timeout > 0 {
		clientOpts = append(clientOpts, mail.WithTimeout(opts.Timeout))
	}
	if opts.Username != "" {
		clientOpts = append(clientOpts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(opts.Username),
			mail.WithPassword(opts.Password),
		)
	}

	client, err := mail.NewClient(opts.Host, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return client, nil
}

func tlsPolicy(raw string) mail.TLSPolicy {
	switch strings.ToLower(raw) {
	case "none", "off":
		return mail.NoTLS
	case "opportunistic":
		return mail.TLSOpportunistic
	default:
		return mail.TLSMandatory
	}
}

// NewEmailChannel wires a sender; pass NewSMTPClient's result in production.
func NewEmailChannel(sender MailSender, from string, to []string, logger zerolog.Logger) *EmailChannel {
	return &EmailChannel{
		sender: sender,
		from:   from,
		to:     append([]string(nil), to...),
		logger: logger.With().Str("component", "alert_email").Logger(),
	}
}

func (e *EmailChannel) Name() string { return "email" }

func (e *EmailChannel) Deliver(ctx context.Context, c alert.Crossing) error {
	msg := mail.NewMsg()
	if err := msg.From(e.from); err != nil {
		return fmt.Errorf("set mail sender: %w", err)
	}
	if err := msg.To(e.to...); err != nil {
		return fmt.Errorf("set mail recipients: %w", err)
	}
	msg.Subject("[pricewatch] " + Subject(c))
	msg.SetBodyString(mail.TypeTextPlain, RenderMessage(c))

	if err := e.sender.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}

	e.logger.Debug().Strs("to", e.to).Str("symbol", c.Alert.Symbol).Msg("mail sent")
	return nil
}

var _ Channel = (*EmailChannel)(nil)
