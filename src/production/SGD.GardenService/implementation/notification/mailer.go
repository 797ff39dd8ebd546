package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
	config "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Config"
	logger "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Logger"
)

const (
	mailSubject = "AI Notification"
	mailTimeout = 15 * time.Second
)

// ErrMailDisabled is returned when no SMTP server is configured
var ErrMailDisabled = errors.New("mail is not configured")

type sendFunc func(ctx context.Context, msg *mail.Msg) error

// Mailer emails operator notifications over SMTP
type Mailer struct {
	cfg    config.MailConfig
	logger *logger.Logger
	send   sendFunc
	now    func() time.Time
}

func NewMailer(cfg config.MailConfig, log *logger.Logger) *Mailer {
	m := &Mailer{
		cfg:    cfg,
		logger: log.WithComponent("mailer"),
		now:    time.Now,
	}
	m.send = m.dialAndSend
	return m
}

// NotifyOperator emails message to the configured recipients
func (m *Mailer) NotifyOperator(message string) error {
	if !m.cfg.Enabled() {
		m.logger.Logger.Warn().Str("message", message).Msg("Mail not configured, notification skipped")
		return ErrMailDisabled
	}

	msg, err := m.compose(message)
	if err != nil {
		return fmt.Errorf("failed to compose notification email: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), mailTimeout)
	defer cancel()
	if err := m.send(ctx, msg); err != nil {
		m.logger.ErrorWithError(err, "Failed to send notification email")
		return fmt.Errorf("failed to send notification email: %w", err)
	}
	m.logger.Logger.Info().Strs("to", m.cfg.To).Msg("Notification email sent")
	return nil
}

func (m *Mailer) compose(message string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return nil, err
	}
	if err := msg.To(m.cfg.To...); err != nil {
		return nil, err
	}
	msg.Subject(mailSubject)
	msg.SetDateWithValue(m.now())
	msg.SetBodyString(mail.TypeTextPlain,
		"Hello,\n\nThis is a notification from the smart garden assistant:\n"+
			strings.TrimSpace(message)+
			"\n\nRegards,\nSmart Garden\n")
	return msg, nil
}

// clientOptions upgrades to STARTTLS when offered; PLAIN auth only with a username
func (m *Mailer) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(mailTimeout),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}
	return opts
}

func (m *Mailer) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	client, err := mail.NewClient(m.cfg.Host, m.clientOptions()...)
	if err != nil {
		return err
	}
	return client.DialAndSendWithContext(ctx, msg)
}
