package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/pders01/feedq/internal/config"
	"github.com/pders01/feedq/internal/debuglog"
	"github.com/pders01/feedq/internal/delivery"
	"github.com/pders01/feedq/internal/metrics"
	"github.com/pders01/feedq/internal/storage"
)

// FormatTitle keeps only the quoted part of a title: with two or more
// apostrophes the result is the text strictly between the first and the
// last one.
func FormatTitle(title string) string {
	if strings.Count(title, "'") < 2 {
		return title
	}
	first := strings.Index(title, "'")
	last := strings.LastIndex(title, "'")
	return title[first+1 : last]
}

// Render builds the outbound text for a payload.
func Render(p storage.Payload) string {
	return FormatTitle(p.Title) + "\n\n" + p.Content + "\n\n" + p.Link
}

// Executor publishes a queued record when its timer fires.
type Executor struct {
	store  storage.Store
	sink   delivery.Sink
	chatID string
	retry  config.RetryConfig
	log    *debuglog.FieldLogger
}

func NewExecutor(store storage.Store, sink delivery.Sink, cfg *config.Config) *Executor {
	return &Executor{
		store:  store,
		sink:   sink,
		chatID: cfg.Delivery.ChannelID,
		retry:  cfg.Delivery.Retry,
		log:    debuglog.WithFields(map[string]any{"component": "publish"}),
	}
}

// Fire delivers the record for guid and removes it from the queue. A
// record that is gone already is not an error. When delivery fails for
// good the record is left in the queue and the error returned.
func (e *Executor) Fire(ctx context.Context, guid string) error {
	log := e.log.With("guid", guid)
	start := time.Now()

	rec, err := e.store.GetQueueItem(guid)
	if errors.Is(err, storage.ErrNotFound) {
		metrics.RecordPublish(metrics.ResultMissing, 0)
		log.Debugf("record gone, nothing to publish")
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading %s: %w", guid, err)
	}

	payload, err := rec.Decode()
	if err != nil {
		metrics.RecordPublish(metrics.ResultFailed, time.Since(start).Seconds())
		return err
	}

	msg := delivery.Message{
		ChatID:         e.chatID,
		Text:           Render(payload),
		DisablePreview: true,
	}
	if err := e.send(ctx, msg); err != nil {
		metrics.RecordPublish(metrics.ResultFailed, time.Since(start).Seconds())
		return fmt.Errorf("publishing %s: %w", guid, err)
	}

	if err := e.store.RemoveFromQueue(guid); err != nil {
		metrics.RecordPublish(metrics.ResultFailed, time.Since(start).Seconds())
		return fmt.Errorf("removing %s after publish: %w", guid, err)
	}

	metrics.RecordPublish(metrics.ResultSent, time.Since(start).Seconds())
	reportQueueLength(e.store, e.log)
	log.Infof("published %q", FormatTitle(payload.Title))
	return nil
}

func (e *Executor) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	if e.retry.InitialInterval > 0 {
		bo.InitialInterval = e.retry.InitialInterval
	}
	if e.retry.MaxInterval > 0 {
		bo.MaxInterval = e.retry.MaxInterval
	}
	bo.Multiplier = 2
	return bo
}

func (e *Executor) send(ctx context.Context, msg delivery.Message) error {
	attempts := e.retry.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}

	operation := func() (struct{}, error) {
		err := e.sink.Send(ctx, msg)
		if err == nil {
			return struct{}{}, nil
		}
		if delivery.IsPermanent(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		var apiErr *delivery.APIError
		if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
			return struct{}{}, backoff.RetryAfter(int(apiErr.RetryAfter / time.Second))
		}
		return struct{}{}, err
	}

	notify := func(err error, wait time.Duration) {
		e.log.Warnf("delivery failed, retrying in %s: %v", wait, err)
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(e.newBackOff()),
		backoff.WithMaxTries(attempts),
		backoff.WithNotify(notify),
	)
	return err
}
