// Package analytics decouples analytics persistence from the request path.
// Events are published to an in-process pub/sub topic and folded into the
// aggregate table by a background handler; a publish or write failure is
// logged and dropped, never surfaced to the shopper.
package analytics

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog/log"

	"shopchat/internal/models"
)

const topic = "chat.analytics"

// Event is one handled chat message's analytics payload.
type Event struct {
	Shop           string           `json:"shop"`
	Intent         models.Intent    `json:"intent"`
	Sentiment      models.Sentiment `json:"sentiment"`
	Confidence     float64          `json:"confidence"`
	ResponseTimeMs int64            `json:"response_time_ms"`
	ProductsShown  int              `json:"products_shown"`
	CreatedAt      time.Time        `json:"created_at"`
}

// Recorder folds an event into durable aggregates.
type Recorder interface {
	RecordAggregate(ctx context.Context, shop string, intent models.Intent, sentiment models.Sentiment, confidence float64, responseMs int64) error
}

// Bus is the best-effort analytics pipeline.
type Bus struct {
	pubsub *gochannel.GoChannel
	done   chan struct{}
}

// NewBus starts the consumer goroutine. Close drains and stops it.
func NewBus(recorder Recorder) (*Bus, error) {
	pubsub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64},
		watermill.NopLogger{},
	)
	messages, err := pubsub.Subscribe(context.Background(), topic)
	if err != nil {
		return nil, err
	}

	b := &Bus{pubsub: pubsub, done: make(chan struct{})}
	go b.consume(messages, recorder)
	return b, nil
}

func (b *Bus) consume(messages <-chan *message.Message, recorder Recorder) {
	defer close(b.done)
	for msg := range messages {
		var ev Event
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			log.Warn().Err(err).Msg("malformed analytics event dropped")
			msg.Ack()
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := recorder.RecordAggregate(ctx, ev.Shop, ev.Intent, ev.Sentiment, ev.Confidence, ev.ResponseTimeMs); err != nil {
			log.Warn().Err(err).Str("shop", ev.Shop).Msg("analytics write failed")
		}
		cancel()
		// Always ack: analytics is best-effort, a failed write is not retried.
		msg.Ack()
	}
}

// Publish enqueues an event. Failures are logged, never returned; analytics
// must not block or fail the user-facing response.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Warn().Err(err).Msg("encode analytics event failed")
		return
	}
	if err := b.pubsub.Publish(topic, message.NewMessage(watermill.NewUUID(), payload)); err != nil {
		log.Warn().Err(err).Str("shop", ev.Shop).Msg("publish analytics event failed")
	}
}

// Close stops the pipeline and waits for in-flight events to drain.
func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	err := b.pubsub.Close()
	select {
	case <-b.done:
	case <-time.After(5 * time.Second):
	}
	return err
}
