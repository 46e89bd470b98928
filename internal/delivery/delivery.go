// Package delivery sends question media to respondents in declared order
// with bounded retries.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/SurveyPipe/internal/models"
)

// Channel is the outbound media capability delivery depends on. Satisfied
// by the messaging package's Service implementations.
type Channel interface {
	SendAttachment(ctx context.Context, to string, att models.Attachment, caption string) error
}

// Default delivery tuning.
const (
	// DefaultMaxAttempts bounds retries per attachment item.
	DefaultMaxAttempts = 3
	// DefaultRetryBackoff is the base backoff between attempts; attempt n
	// waits n times this value (100ms, 200ms).
	DefaultRetryBackoff = 100 * time.Millisecond
	// DefaultItemDelay separates successive items to respect provider rate
	// limits.
	DefaultItemDelay = 100 * time.Millisecond
)

// Sender delivers a question's attachments strictly in ascending declared
// order. Delivery is best-effort and non-transactional: items already sent
// are never rolled back. When an item exhausts its retries, delivery
// aborts so a later item can never arrive after an earlier one was
// abandoned.
type Sender struct {
	channel      Channel
	maxAttempts  int
	retryBackoff time.Duration
	itemDelay    time.Duration
}

// NewSender creates a Sender with default retry and pacing settings.
func NewSender(channel Channel) *Sender {
	return &Sender{
		channel:      channel,
		maxAttempts:  DefaultMaxAttempts,
		retryBackoff: DefaultRetryBackoff,
		itemDelay:    DefaultItemDelay,
	}
}

// NewSenderWithTiming creates a Sender with explicit retry and pacing
// settings, mainly for tests.
func NewSenderWithTiming(channel Channel, maxAttempts int, retryBackoff, itemDelay time.Duration) *Sender {
	return &Sender{
		channel:      channel,
		maxAttempts:  maxAttempts,
		retryBackoff: retryBackoff,
		itemDelay:    itemDelay,
	}
}

// SendAttachments delivers every attachment of the question to the chat.
// A question without attachments succeeds trivially. Each item is
// captioned with its 1-based position and the total count; the first item
// additionally carries the question text.
func (s *Sender) SendAttachments(ctx context.Context, chatID string, question *models.Question) error {
	total := len(question.Attachments)
	if total == 0 {
		return nil
	}
	slog.Debug("delivery.Sender.SendAttachments: delivering attachments", "chatID", chatID, "questionID", question.ID, "count", total)

	for i, att := range question.Attachments {
		caption := fmt.Sprintf("(%d/%d)", i+1, total)
		if i == 0 && question.Text != "" {
			caption = fmt.Sprintf("%s (%d/%d)", question.Text, i+1, total)
		}

		if !models.IsValidAttachmentType(att.Type) {
			// No send attempt for an unrecognized type; the item fails
			// immediately and delivery aborts.
			slog.Error("delivery.Sender.SendAttachments: unrecognized attachment type", "chatID", chatID, "questionID", question.ID, "item", i+1, "type", att.Type)
			return fmt.Errorf("attachment %d/%d has unrecognized type %q", i+1, total, att.Type)
		}

		if err := s.sendWithRetry(ctx, chatID, att, caption, i+1, total); err != nil {
			return err
		}

		// Pace successive items; already-sent items stay sent.
		if i+1 < total {
			if err := sleepCtx(ctx, s.itemDelay); err != nil {
				return err
			}
		}
	}

	slog.Debug("delivery.Sender.SendAttachments: all attachments delivered", "chatID", chatID, "questionID", question.ID, "count", total)
	return nil
}

// sendWithRetry attempts one item up to maxAttempts times with short
// incremental backoff between attempts.
func (s *Sender) sendWithRetry(ctx context.Context, chatID string, att models.Attachment, caption string, item, total int) error {
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err := s.channel.SendAttachment(ctx, chatID, att, caption)
		if err == nil {
			if attempt > 1 {
				slog.Info("delivery.Sender: attachment sent after retry", "chatID", chatID, "item", item, "total", total, "attempt", attempt)
			}
			return nil
		}
		lastErr = err
		slog.Warn("delivery.Sender: attachment send failed", "error", err, "chatID", chatID, "item", item, "total", total, "attempt", attempt)

		if attempt < s.maxAttempts {
			if err := sleepCtx(ctx, time.Duration(attempt)*s.retryBackoff); err != nil {
				return err
			}
		}
	}
	slog.Error("delivery.Sender: attachment failed permanently", "error", lastErr, "chatID", chatID, "item", item, "total", total, "attempts", s.maxAttempts)
	return fmt.Errorf("attachment %d/%d failed after %d attempts: %w", item, total, s.maxAttempts, lastErr)
}

// sleepCtx waits for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
