package notifier

import (
	"time"

	kit "github.com/shcheglovnd/us-visa-scheduler-telegram/internal/transport"
)

// Config controls the notification pipeline.
type Config struct {
	Enabled       bool
	QueueSize     int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	Target        kit.ChatTarget
}

type HistoryItem struct {
	At    time.Time
	Title string
	Body  string
}

// Event is published on the bus for notifier lifecycle events.
type Event struct {
	Title string    `json:"title"`
	At    time.Time `json:"at"`
	Error string    `json:"error,omitempty"`
}

// Bus event types.
const (
	EventSent    = "notifier.sent"
	EventFailed  = "notifier.failed"
	EventDropped = "notifier.dropped"
)
