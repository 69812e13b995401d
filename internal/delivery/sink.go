// Package delivery sends rendered posts to their destination channel.
package delivery

import (
	"context"
	"fmt"

	"github.com/pders01/feedq/internal/config"
	"github.com/pders01/feedq/internal/debuglog"
)

// Message is one outbound post.
type Message struct {
	ChatID         string
	Text           string
	DisablePreview bool
}

// Sink delivers a message. A nil error means the destination accepted it.
type Sink interface {
	Send(ctx context.Context, msg Message) error
}

// New builds the sink selected by delivery.mode.
func New(cfg *config.Config) (Sink, error) {
	switch cfg.Delivery.Mode {
	case "telegram":
		return NewTelegram(cfg)
	case "log":
		return LogSink{}, nil
	default:
		return nil, fmt.Errorf("unknown delivery mode %q", cfg.Delivery.Mode)
	}
}

// LogSink writes messages to the log instead of sending them.
type LogSink struct{}

func (LogSink) Send(_ context.Context, msg Message) error {
	debuglog.WithFields(map[string]any{"chat": msg.ChatID}).Infof("dry-run post:\n%s", msg.Text)
	return nil
}
