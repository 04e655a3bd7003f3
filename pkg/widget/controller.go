package widget

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"shopchat/internal/models"
)

// Config tunes the controller's delivery and caching behavior.
type Config struct {
	// MaxAttempts caps delivery tries per message, first attempt included.
	MaxAttempts uint64
	// InitialBackoff is the first retry delay; it doubles per attempt.
	InitialBackoff time.Duration
	// TranscriptLimit caps visible entries (10 turns = 20 entries).
	TranscriptLimit int
	// TranscriptTTL expires the cached transcript, independent of the
	// server-side session window.
	TranscriptTTL time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.TranscriptLimit <= 0 {
		c.TranscriptLimit = 20
	}
	if c.TranscriptTTL <= 0 {
		c.TranscriptTTL = 24 * time.Hour
	}
}

// ErrBusy is returned when a submit arrives while another is in flight.
var ErrBusy = errors.New("a message is already being sent")

// ErrOffline marks a delivery that was queued instead of sent.
var ErrOffline = errors.New("offline: message queued")

// Controller owns the widget's state. One instance per mounted widget;
// Init on mount, Teardown on unmount.
type Controller struct {
	mu     sync.Mutex
	store  *Store
	sender Sender
	cfg    Config

	state      State
	online     bool
	open       bool
	draft      string
	sessionID  string
	transcript []Entry
	theme      models.Sentiment

	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// NewController wires a controller; call Init before use.
func NewController(store *Store, sender Sender, cfg Config) *Controller {
	cfg.applyDefaults()
	return &Controller{
		store:  store,
		sender: sender,
		cfg:    cfg,
		state:  StateIdle,
		online: true,
		theme:  models.SentimentNeutral,
	}
}

// Init restores the cached transcript and leaves the controller idle. A
// queue left over from a previous run stays durable until the next online
// transition flushes it.
func (c *Controller) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries, err := c.store.LoadTranscript(c.cfg.TranscriptTTL)
	if err != nil {
		return errors.Wrap(err, "restore transcript")
	}
	c.transcript = entries
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Role == models.RoleAssistant && entries[i].Sentiment != "" {
			c.theme = entries[i].Sentiment
			break
		}
	}
	queued, err := c.store.Queue()
	if err != nil {
		return errors.Wrap(err, "inspect queue")
	}
	if len(queued) > 0 {
		c.state = StateOfflineQueued
	}
	return nil
}

// Teardown stops the settings poller and persists the transcript. It does
// not cancel an in-flight send; that reply still lands in the transcript.
func (c *Controller) Teardown() {
	c.mu.Lock()
	cancel := c.pollCancel
	done := c.pollDone
	c.pollCancel = nil
	c.pollDone = nil
	c.persistTranscriptLocked()
	c.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// State reports the current delivery state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CanSend reports whether the send affordance is enabled.
func (c *Controller) CanSend() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state != StateSending && c.state != StateAwaitingReply
}

// Draft returns the preserved composer text after a failed delivery.
func (c *Controller) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// SetComposing tracks the composer text so a delivery failure can hand it
// back.
func (c *Controller) SetComposing(draft string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft = draft
	if c.state == StateIdle && draft != "" {
		c.state = StateComposing
	}
}

// Theme is the sentiment of the last assistant reply, driving widget colors.
func (c *Controller) Theme() models.Sentiment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.theme
}

// Transcript returns a copy of the visible entries.
func (c *Controller) Transcript() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.transcript))
	copy(out, c.transcript)
	return out
}

// Open marks the chat panel visible.
func (c *Controller) Open() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = true
}

// Close hides the panel. An in-flight send keeps running; its response is
// appended so state is consistent on reopen.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
}

// IsOpen reports panel visibility.
func (c *Controller) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Submit sends a message, or queues it when offline. Offline submits make no
// network call: the message goes to durable storage and is echoed in the
// transcript with a pending marker.
func (c *Controller) Submit(ctx context.Context, text string) error {
	c.mu.Lock()
	if c.state == StateSending || c.state == StateAwaitingReply {
		c.mu.Unlock()
		return ErrBusy
	}
	if !c.online {
		err := c.enqueueLocked(text)
		c.mu.Unlock()
		if err != nil {
			return err
		}
		return ErrOffline
	}
	c.state = StateSending
	c.draft = text
	c.appendLocked(Entry{Role: models.RoleUser, Content: text, CreatedAt: time.Now().UTC()})
	sessionID := c.sessionID
	c.mu.Unlock()

	envelope, err := c.deliver(ctx, Outbound{ID: uuid.NewString(), Text: text, SessionID: sessionID})

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateAwaitingReply
	if err != nil {
		// Delivery exhausted its retries: surface inline, keep the draft.
		c.appendLocked(Entry{
			Role:      models.RoleAssistant,
			Content:   "Message could not be sent. Please try again.",
			Error:     true,
			CreatedAt: time.Now().UTC(),
		})
		c.state = StateIdle
		c.persistTranscriptLocked()
		return err
	}
	c.renderEnvelopeLocked(envelope)
	c.draft = ""
	c.state = StateIdle
	c.persistTranscriptLocked()
	return nil
}

// SetOnline tracks browser connectivity. The offline→online transition
// flushes the queue in enqueue order, one delivery at a time.
func (c *Controller) SetOnline(ctx context.Context, online bool) error {
	c.mu.Lock()
	wasOnline := c.online
	c.online = online
	if !online {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	if wasOnline {
		return nil
	}
	return c.FlushQueue(ctx)
}

// FlushQueue delivers queued messages strictly in order, removing each from
// durable storage only after its delivery succeeds. The first failure stops
// the flush; remaining entries stay queued for the next attempt.
func (c *Controller) FlushQueue(ctx context.Context) error {
	queued, err := c.store.Queue()
	if err != nil {
		return errors.Wrap(err, "read queue")
	}
	for _, msg := range queued {
		c.mu.Lock()
		sessionID := c.sessionID
		c.mu.Unlock()

		envelope, err := c.deliver(ctx, Outbound{ID: msg.ID, Text: msg.Text, SessionID: sessionID})
		if err != nil {
			log.Warn().Err(err).Str("queued_id", msg.ID).Msg("queue flush stopped")
			return err
		}
		if err := c.store.RemoveQueued(msg.ID); err != nil {
			return errors.Wrap(err, "remove delivered message")
		}

		c.mu.Lock()
		c.clearPendingLocked(msg.ID)
		c.renderEnvelopeLocked(envelope)
		c.persistTranscriptLocked()
		c.mu.Unlock()
	}

	c.mu.Lock()
	if c.state == StateOfflineQueued {
		c.state = StateIdle
	}
	c.mu.Unlock()
	return nil
}

// StartSettingsPoll runs fetch on a fixed interval until Teardown. The task
// is owned by the controller so no timer outlives it.
func (c *Controller) StartSettingsPoll(interval time.Duration, fetch func(context.Context)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pollCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.pollCancel = cancel
	c.pollDone = done
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fetch(ctx)
			}
		}
	}()
}

// deliver runs one send with bounded exponential backoff.
func (c *Controller) deliver(ctx context.Context, msg Outbound) (*models.ChatEnvelope, error) {
	var envelope *models.ChatEnvelope
	op := func() error {
		env, err := c.sender.Send(ctx, msg)
		if err != nil {
			return err
		}
		envelope = env
		return nil
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialBackoff
	bo.Multiplier = 2
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, c.cfg.MaxAttempts-1), ctx))
	return envelope, err
}

func (c *Controller) enqueueLocked(text string) error {
	msg := QueuedMessage{ID: uuid.NewString(), Text: text, EnqueuedAt: time.Now().UTC()}
	if err := c.store.Enqueue(msg); err != nil {
		return errors.Wrap(err, "queue offline message")
	}
	c.appendLocked(Entry{
		Role:      models.RoleUser,
		Content:   text,
		Pending:   true,
		QueueID:   msg.ID,
		CreatedAt: msg.EnqueuedAt,
	})
	c.state = StateOfflineQueued
	c.persistTranscriptLocked()
	return nil
}

func (c *Controller) renderEnvelopeLocked(envelope *models.ChatEnvelope) {
	c.sessionID = envelope.SessionID
	c.theme = envelope.Sentiment
	c.appendLocked(Entry{
		Role:      models.RoleAssistant,
		Content:   envelope.Message,
		Sentiment: envelope.Sentiment,
		Products:  envelope.Recommendations,
		CreatedAt: time.Now().UTC(),
	})
}

func (c *Controller) clearPendingLocked(queueID string) {
	for i := range c.transcript {
		if c.transcript[i].QueueID == queueID {
			c.transcript[i].Pending = false
			c.transcript[i].QueueID = ""
			return
		}
	}
}

func (c *Controller) appendLocked(entry Entry) {
	c.transcript = append(c.transcript, entry)
	if len(c.transcript) > c.cfg.TranscriptLimit {
		c.transcript = c.transcript[len(c.transcript)-c.cfg.TranscriptLimit:]
	}
}

func (c *Controller) persistTranscriptLocked() {
	if err := c.store.SaveTranscript(c.transcript); err != nil {
		log.Warn().Err(err).Msg("persist transcript failed")
	}
}
