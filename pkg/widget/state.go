// Package widget is the storefront chat widget's delivery layer: an explicit
// state machine owning the offline queue, the retry policy, the cached
// transcript and the sentiment-driven theme. All state hangs off one
// Controller instance with an Init/Teardown lifecycle; there are no package
// level mutables.
package widget

import (
	"time"

	"shopchat/internal/models"
)

// State is the widget's delivery state. Only one submission is processed at
// a time; the send affordance is disabled during Sending and AwaitingReply.
type State int

const (
	StateIdle State = iota
	StateComposing
	StateSending
	StateAwaitingReply
	StateOfflineQueued
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateComposing:
		return "composing"
	case StateSending:
		return "sending"
	case StateAwaitingReply:
		return "awaiting_reply"
	case StateOfflineQueued:
		return "offline_queued"
	default:
		return "unknown"
	}
}

// Entry is one transcript line shown to the shopper.
type Entry struct {
	Role      models.Role               `json:"role"`
	Content   string                    `json:"content"`
	Sentiment models.Sentiment          `json:"sentiment,omitempty"`
	Products  []models.ProductCandidate `json:"products,omitempty"`
	// Pending marks an optimistic echo of a queued offline message.
	Pending bool `json:"pending,omitempty"`
	// QueueID ties a pending entry back to its queue record.
	QueueID   string    `json:"queue_id,omitempty"`
	Error     bool      `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// QueuedMessage is a message typed while offline, owned exclusively by the
// client and removed only after confirmed delivery.
type QueuedMessage struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
