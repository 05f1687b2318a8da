package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/wneessen/go-mail"
)

// Mailer sends the two notifications of a contact submission.
type Mailer interface {
	// SendToVisitor confirms receipt to the person who filled in the form.
	SendToVisitor(ctx context.Context, name, email string) error
	// SendToOwner forwards the submission to the site owner.
	SendToOwner(ctx context.Context, in ContactInput, meta ContactMetadata) error
}

// NewMailer returns an SMTP mailer, or a mailer that always fails with
// ErrMailerNotConfigured when credentials are missing.
func NewMailer(cfg MailConfig) Mailer {
	if cfg.Username == "" || cfg.Password == "" {
		log.Warn().Msg("mail relay credentials not set, contact emails are disabled")
		return disabledMailer{}
	}
	log.Info().Str("host", cfg.Host).Int("port", cfg.Port).Msg("mail relay configured")
	return &SMTPMailer{cfg: cfg}
}

type disabledMailer struct{}

func (disabledMailer) SendToVisitor(context.Context, string, string) error {
	return ErrMailerNotConfigured
}

func (disabledMailer) SendToOwner(context.Context, ContactInput, ContactMetadata) error {
	return ErrMailerNotConfigured
}

// SMTPMailer delivers mail through an authenticated SMTP relay.
type SMTPMailer struct {
	cfg MailConfig
}

func (m *SMTPMailer) from() string {
	if m.cfg.From != "" {
		return m.cfg.From
	}
	return m.cfg.Username
}

func (m *SMTPMailer) owner() string {
	if m.cfg.OwnerAddress != "" {
		return m.cfg.OwnerAddress
	}
	return m.cfg.Username
}

func (m *SMTPMailer) SendToVisitor(ctx context.Context, name, email string) error {
	body := fmt.Sprintf(`Hi %s,

Thank you for reaching out! Your message has been received and I will get back to you as soon as possible, usually within two business days.

Best regards`, name)

	return m.send(ctx, email, "", "Thanks for getting in touch!", body)
}

func (m *SMTPMailer) SendToOwner(ctx context.Context, in ContactInput, meta ContactMetadata) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "New contact form submission\n\n")
	fmt.Fprintf(&sb, "Name: %s\nEmail: %s\n\n", in.Name, in.Email)
	fmt.Fprintf(&sb, "Message:\n%s\n\n", in.Message)
	fmt.Fprintf(&sb, "IP: %s\nUser agent: %s\nReceived: %s\n", meta.IP, meta.UserAgent, time.Now().UTC().Format(time.RFC3339))

	return m.send(ctx, m.owner(), in.Email, "New contact from "+in.Name, sb.String())
}

func (m *SMTPMailer) send(ctx context.Context, to, replyTo, subject, body string) error {
	msg := mail.NewMsg()
	if err := msg.From(m.from()); err != nil {
		return errors.Wrap(err, "set sender")
	}
	if err := msg.To(to); err != nil {
		return errors.Wrap(err, "set recipient")
	}
	if replyTo != "" {
		if err := msg.ReplyTo(replyTo); err != nil {
			return errors.Wrap(err, "set reply-to")
		}
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	client, err := m.client()
	if err != nil {
		return err
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return errors.Wrapf(err, "send %q", subject)
	}
	return nil
}

// client builds a fresh SMTP client per message so concurrent sends never
// share a connection.
func (m *SMTPMailer) client() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.cfg.Username),
		mail.WithPassword(m.cfg.Password),
		mail.WithTimeout(15 * time.Second),
	}
	if m.cfg.Port == 465 {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}

	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "create smtp client")
	}
	return client, nil
}
