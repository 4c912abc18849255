// Package mail waits for letters to arrive in a mailbox.
//
// The mailbox itself is a collaborator: anything that can list the messages of
// a folder satisfies Mailbox. Waiting goes through the generic poller with the
// mailbox as the polled context, so no browser state is involved.
package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-ui/pkg/wait"
)

// ErrNoLetter is returned when no matching letter arrived in time.
var ErrNoLetter = errors.New("no matching letter")

// Message is one letter in a folder.
type Message struct {
	ID       string
	From     string
	To       []string
	Subject  string
	Body     string
	Received time.Time
}

// Mailbox lists the messages in a folder.
type Mailbox interface {
	Messages(ctx context.Context, folder string) ([]Message, error)
}

// Deleter is implemented by mailboxes that can remove a message.
type Deleter interface {
	Delete(ctx context.Context, folder, id string) error
}

// Query selects a letter: the subject must contain Subject and, when Text is
// set, the body must contain Text.
type Query struct {
	Folder  string
	Subject string
	Text    string
}

func (q Query) matches(m Message) bool {
	if !strings.Contains(m.Subject, q.Subject) {
		return false
	}
	return q.Text == "" || strings.Contains(m.Body, q.Text)
}

// Waiter polls a mailbox for letters.
type Waiter struct {
	box      Mailbox
	folder   string
	timeout  time.Duration
	interval time.Duration
	logger   *zap.Logger
}

// Option configures a Waiter.
type Option func(*Waiter)

// WithFolder sets the folder used when a query leaves it empty.
func WithFolder(folder string) Option {
	return func(w *Waiter) { w.folder = folder }
}

// WithTimeout sets how long to wait for a letter.
func WithTimeout(d time.Duration) Option {
	return func(w *Waiter) { w.timeout = d }
}

// WithInterval sets the pause between two mailbox reads.
func WithInterval(d time.Duration) Option {
	return func(w *Waiter) { w.interval = d }
}

// NewWaiter returns a Waiter reading box. It defaults to INBOX and a one
// minute timeout.
func NewWaiter(box Mailbox, logger *zap.Logger, opts ...Option) *Waiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Waiter{
		box:     box,
		folder:  "INBOX",
		timeout: time.Minute,
		logger:  logger.Named("mail"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// letter is satisfied by the first message matching q. Read errors are
// transient.
func letter(q Query) wait.Condition[Mailbox, *Message] {
	return wait.Value(func(ctx context.Context, box Mailbox) (*Message, error) {
		messages, err := box.Messages(ctx, q.Folder)
		if err != nil {
			return nil, fmt.Errorf("failed to read folder %q: %w", q.Folder, err)
		}
		for i := range messages {
			if q.matches(messages[i]) {
				return &messages[i], nil
			}
		}
		return nil, nil
	})
}

// WaitForLetter waits for a letter matching q. A nil message and false mean
// none arrived within the timeout.
func (w *Waiter) WaitForLetter(ctx context.Context, q Query) (*Message, bool) {
	if q.Folder == "" {
		q.Folder = w.folder
	}
	log := w.logger.With(zap.String("folder", q.Folder), zap.String("subject", q.Subject))
	m, ok := wait.For(ctx, w.box, letter(q), wait.Options{
		Timeout:     w.timeout,
		Interval:    w.interval,
		Description: "letter",
		Logger:      log,
	})
	if !ok {
		log.Info(fmt.Sprintf("Mailbox does not contain letter with subject '%s'. Waited %s", q.Subject, w.timeout))
		return nil, false
	}
	log.Info("Letter arrived.", zap.String("id", m.ID))
	return m, true
}

// Content waits for a letter matching q and returns its body.
func (w *Waiter) Content(ctx context.Context, q Query) (string, error) {
	m, ok := w.WaitForLetter(ctx, q)
	if !ok {
		return "", fmt.Errorf("%w: subject %q in %s", ErrNoLetter, q.Subject, w.timeout)
	}
	return m.Body, nil
}

// DeleteLetter waits for a letter matching q and removes it. The mailbox must
// implement Deleter.
func (w *Waiter) DeleteLetter(ctx context.Context, q Query) error {
	d, ok := w.box.(Deleter)
	if !ok {
		return fmt.Errorf("mailbox %T cannot delete messages", w.box)
	}
	m, found := w.WaitForLetter(ctx, q)
	if !found {
		return fmt.Errorf("%w: subject %q", ErrNoLetter, q.Subject)
	}
	folder := q.Folder
	if folder == "" {
		folder = w.folder
	}
	if err := d.Delete(ctx, folder, m.ID); err != nil {
		return fmt.Errorf("failed to delete letter %s: %w", m.ID, err)
	}
	return nil
}
