package notifier

import (
	"context"
	"time"
)

// Config controls the notification pipeline.
type Config struct {
	Enabled     bool
	QueueSize   int
	RatePerSec  int
	RetryMax    int
	RetryBase   time.Duration
	DedupWindow time.Duration
}

// Sender delivers one text message. logx.ChatSink has the same shape, so a
// Telegram sender can also carry log lines.
type Sender interface {
	SendText(ctx context.Context, text string) error
}

// Priority levels.
const (
	PriorityInfo  = 3
	PriorityWarn  = 6
	PriorityError = 9
)

type Notification struct {
	Priority int
	Text     string
}

type HistoryItem struct {
	At   time.Time
	Text string
	Err  string
}
