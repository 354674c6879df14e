package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"time"

	"github.com/cuemby/leadercheck/pkg/log"
	"github.com/cuemby/leadercheck/pkg/types"
	"github.com/rs/zerolog"
)

// SendFunc hands a rendered message to the relay at addr
type SendFunc func(ctx context.Context, addr, from string, to []string, msg []byte) error

// MailNotifier delivers alerts through an SMTP relay, usually the local MTA.
// Delivery is attempted once; failures are returned, never retried.
type MailNotifier struct {
	// Relay is the SMTP relay address (default: localhost:25)
	Relay string

	// Sender is the local part of the From address
	Sender string

	// Domain is appended to the host part of the From address
	Domain string

	ChangeRecipients   []string
	NoLeaderRecipients []string

	send   SendFunc
	now    func() time.Time
	logger zerolog.Logger
}

// NewMailNotifier creates a notifier sending through relay
func NewMailNotifier(relay string) *MailNotifier {
	return &MailNotifier{
		Relay:  relay,
		Sender: "leadercheck",
		send:   sendMail,
		now:    time.Now,
		logger: log.WithComponent("notify"),
	}
}

// Compose builds the message for n
func (m *MailNotifier) Compose(n types.Notification) *Message {
	subject, body := subjectAndBody(n)

	to := m.NoLeaderRecipients
	if n.Kind == types.NotifyLeaderChanged {
		to = m.ChangeRecipients
	}

	return &Message{
		From:    SenderAddress(m.Sender, n.SenderHost(), m.Domain),
		To:      to,
		Subject: subject,
		Body:    body,
		Date:    m.now(),
	}
}

// Notify sends the alert for n
func (m *MailNotifier) Notify(ctx context.Context, n types.Notification) error {
	msg := m.Compose(n)

	if len(msg.To) == 0 {
		return &types.DeliveryError{Kind: n.Kind, Err: errors.New("no recipients configured")}
	}

	if err := m.send(ctx, m.Relay, msg.From, msg.To, msg.Bytes()); err != nil {
		return &types.DeliveryError{Kind: n.Kind, To: msg.To, Err: err}
	}

	m.logger.Info().
		Str("kind", string(n.Kind)).
		Str("cluster", n.Cluster.String()).
		Str("from", msg.From).
		Strs("to", msg.To).
		Msg("Notification sent")
	return nil
}

// WithRecipients sets the recipients of change and no-leader alerts
func (m *MailNotifier) WithRecipients(change, noLeader []string) *MailNotifier {
	m.ChangeRecipients = change
	m.NoLeaderRecipients = noLeader
	return m
}

// WithSender sets the From address parts
func (m *MailNotifier) WithSender(sender, domain string) *MailNotifier {
	m.Sender = sender
	m.Domain = domain
	return m
}

// WithSendFunc replaces the SMTP transport
func (m *MailNotifier) WithSendFunc(send SendFunc) *MailNotifier {
	m.send = send
	return m
}

const smtpTimeout = 30 * time.Second

// sendMail is smtp.SendMail with a cancellable dial and an overall deadline.
// STARTTLS is not attempted: the relay is expected to be local.
func sendMail(ctx context.Context, addr, from string, to []string, msg []byte) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid relay address %q: %w", addr, err)
	}

	dialer := &net.Dialer{Timeout: smtpTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connect to relay: %w", err)
	}

	deadline := time.Now().Add(smtpTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp greeting: %w", err)
	}
	defer c.Close()

	if err := c.Mail(from); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp RCPT TO %s: %w", rcpt, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp end of data: %w", err)
	}

	return c.Quit()
}
