// Package notify delivers user-facing notifications after a transaction has
// committed. Delivery is fire-and-forget: failures are logged and never
// reported back to the operation that produced the message.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-aid-backend/pkg/models"
	"github.com/aldoetobex/legal-aid-backend/pkg/sanitize"
)

// Message is addressed to a user; the dispatcher resolves the address.
type Message struct {
	UserID  uuid.UUID
	Subject string
	Body    string
}

// Notifier is what the case and service request components depend on.
type Notifier interface {
	Notify(msgs ...Message)
}

// Sender is one delivery channel (SMTP, log, ...).
type Sender interface {
	Send(ctx context.Context, toEmail, subject, body string) error
}

// Nop drops every message.
type Nop struct{}

func (Nop) Notify(...Message) {}

const sendTimeout = 20 * time.Second

type Dispatcher struct {
	db     *gorm.DB
	sender Sender
	log    *zap.Logger
	wg     sync.WaitGroup
}

func NewDispatcher(db *gorm.DB, sender Sender, log *zap.Logger) *Dispatcher {
	return &Dispatcher{db: db, sender: sender, log: log}
}

// Notify returns immediately; each message is delivered on its own goroutine
// with a context detached from the request.
func (d *Dispatcher) Notify(msgs ...Message) {
	for _, m := range msgs {
		if m.UserID == uuid.Nil {
			continue
		}
		d.wg.Add(1)
		go func(m Message) {
			defer d.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			defer cancel()
			if err := d.deliver(ctx, m); err != nil {
				d.log.Warn("notification not delivered",
					zap.String("user_id", m.UserID.String()),
					zap.String("subject", m.Subject),
					zap.Error(err),
				)
			}
		}(m)
	}
}

// Wait blocks until in-flight deliveries finish. Called at shutdown.
func (d *Dispatcher) Wait() { d.wg.Wait() }

func (d *Dispatcher) deliver(ctx context.Context, m Message) error {
	var u models.User
	if err := d.db.WithContext(ctx).Select("id", "email").First(&u, "id = ?", m.UserID).Error; err != nil {
		return err
	}
	return d.sender.Send(ctx, u.Email, m.Subject, sanitize.RedactPII(m.Body))
}

// LogSender writes messages to the log instead of delivering them. Used when
// SMTP is not configured.
type LogSender struct{ Log *zap.Logger }

func (s LogSender) Send(_ context.Context, toEmail, subject, body string) error {
	s.Log.Info("notification (email disabled)",
		zap.String("to", toEmail),
		zap.String("subject", subject),
		zap.String("body", body),
	)
	return nil
}
