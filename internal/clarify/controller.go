// Package clarify runs the conversational side-thread that resolves one ambiguous transaction.
package clarify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/service"
)

// DefaultResolveDelay keeps the final assistant message on screen before the panel closes.
const DefaultResolveDelay = 600 * time.Millisecond

// ResolvedFunc receives the snapshot that closed the clarification.
type ResolvedFunc func(entry model.TurnEntry)

// Controller owns the message list of one clarification session bound to one transaction.
// At most one turn is outstanding at a time.
type Controller struct {
	backend          service.ClarificationBackend
	onResolved       ResolvedFunc
	timer            *time.Timer
	pending          *model.TurnEntry
	now              func() time.Time
	sessionID        string
	messages         []model.Message
	resolveDelay     time.Duration
	transactionIndex int
	mu               sync.Mutex
	resolveOnce      sync.Once
	sending          bool
	resolved         bool
	closed           bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithResolveDelay sets the pause between a resolving reply and the resolved callback.
func WithResolveDelay(d time.Duration) Option {
	return func(c *Controller) {
		c.resolveDelay = d
	}
}

// WithOnResolved sets the callback fired once when the backend reports the transaction resolved.
func WithOnResolved(fn ResolvedFunc) Option {
	return func(c *Controller) {
		c.onResolved = fn
	}
}

// NewController binds a controller to a clarification session and a transaction_index.
func NewController(backend service.ClarificationBackend, sessionID string, transactionIndex int, opts ...Option) *Controller {
	c := &Controller{
		backend:          backend,
		sessionID:        sessionID,
		transactionIndex: transactionIndex,
		resolveDelay:     DefaultResolveDelay,
		now:              time.Now,
		onResolved:       func(model.TurnEntry) {},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SessionID returns the bound clarification session.
func (c *Controller) SessionID() string {
	return c.sessionID
}

// TransactionIndex returns the bound transaction_index.
func (c *Controller) TransactionIndex() int {
	return c.transactionIndex
}

// Open loads the stored history, replacing any local messages. It refuses with
// ErrSubSessionBusy while a turn is in flight.
func (c *Controller) Open(ctx context.Context) error {
	if c.Sending() {
		return common.ErrSubSessionBusy
	}
	session, err := c.backend.GetClarificationSession(ctx, c.sessionID)
	if err != nil {
		return err
	}

	messages := make([]model.Message, 0, len(session.ClarificationMessages))
	for _, stored := range session.ClarificationMessages {
		messages = append(messages, stored.Display())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// A turn may have started while the history was loading.
	if c.sending {
		return common.ErrSubSessionBusy
	}
	c.messages = messages
	return nil
}

// Messages returns a copy of the thread.
func (c *Controller) Messages() []model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Message(nil), c.messages...)
}

// Sending reports whether a turn is in flight; input is disabled while it is.
func (c *Controller) Sending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending
}

// Resolved reports whether a resolving reply has been received.
func (c *Controller) Resolved() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolved
}

// Send appends message to the thread and runs one backend turn. A failed turn keeps the
// message, marked Failed, so it can be retried.
func (c *Controller) Send(ctx context.Context, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return fmt.Errorf("%w: message", common.ErrMissingField)
	}

	c.mu.Lock()
	if err := c.claim(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.messages = append(c.messages, model.Message{
		Role:      model.RoleUser,
		Content:   message,
		CreatedAt: c.now(),
	})
	pos := len(c.messages) - 1
	c.mu.Unlock()

	return c.turn(ctx, pos, message)
}

// Retry resends the most recent failed message.
func (c *Controller) Retry(ctx context.Context) error {
	c.mu.Lock()
	pos := -1
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Failed {
			pos = i
			break
		}
	}
	if pos < 0 {
		c.mu.Unlock()
		return nil
	}
	if err := c.claim(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.messages[pos].Failed = false
	message := c.messages[pos].Content
	c.mu.Unlock()

	return c.turn(ctx, pos, message)
}

// Close ends the sub-session. A resolution still waiting out its delay fires immediately so
// it is never lost.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	var entry *model.TurnEntry
	// A timer that already fired delivers the pending entry itself.
	if c.timer != nil && c.timer.Stop() {
		entry = c.pending
		c.pending = nil
	}
	c.mu.Unlock()

	if entry != nil {
		c.onResolved(*entry)
	}
}

// claim must be called with mu held.
func (c *Controller) claim() error {
	if c.closed {
		return fmt.Errorf("clarification session %s is closed: %w", c.sessionID, common.ErrNoClarification)
	}
	if c.sending {
		return common.ErrSubSessionBusy
	}
	c.sending = true
	return nil
}

func (c *Controller) turn(ctx context.Context, pos int, message string) error {
	resp, err := c.backend.SendClarificationMessage(ctx, c.sessionID, message)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sending = false

	if err != nil {
		if pos < len(c.messages) {
			c.messages[pos].Failed = true
		}
		return err
	}

	entry, ok := resp.Find(c.transactionIndex)
	if !ok {
		slog.Warn("Clarification reply does not mention the bound transaction",
			"clarification_session_id", c.sessionID,
			"transaction_index", c.transactionIndex,
			"entries", len(resp.Transactions))
		return nil
	}

	if entry.Notes != nil && *entry.Notes != "" {
		c.messages = append(c.messages, model.Message{
			Role:      model.RoleAssistant,
			Content:   *entry.Notes,
			CreatedAt: c.now(),
		})
	}

	if entry.Resolved() {
		c.scheduleResolved(entry)
	}
	return nil
}

// scheduleResolved must be called with mu held.
func (c *Controller) scheduleResolved(entry model.TurnEntry) {
	c.resolveOnce.Do(func() {
		c.resolved = true
		c.pending = &entry
		slog.Debug("Clarification resolved",
			"clarification_session_id", c.sessionID,
			"transaction_index", c.transactionIndex)

		c.timer = time.AfterFunc(c.resolveDelay, func() {
			c.mu.Lock()
			pending := c.pending
			c.pending = nil
			c.mu.Unlock()
			if pending != nil {
				c.onResolved(*pending)
			}
		})
	})
}
