package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/SurveyPipe/internal/models"
)

type sentItem struct {
	url     string
	caption string
}

// mockChannel records sends and fails specific URLs a scripted number of times.
type mockChannel struct {
	sent      []sentItem
	failures  map[string]int
	permanent map[string]bool
}

func newMockChannel() *mockChannel {
	return &mockChannel{
		failures:  make(map[string]int),
		permanent: make(map[string]bool),
	}
}

func (m *mockChannel) SendAttachment(ctx context.Context, to string, att models.Attachment, caption string) error {
	if m.permanent[att.URL] {
		return fmt.Errorf("send failed for %s", att.URL)
	}
	if m.failures[att.URL] > 0 {
		m.failures[att.URL]--
		return fmt.Errorf("transient failure for %s", att.URL)
	}
	m.sent = append(m.sent, sentItem{url: att.URL, caption: caption})
	return nil
}

func fastSender(ch Channel) *Sender {
	return NewSenderWithTiming(ch, DefaultMaxAttempts, time.Millisecond, 0)
}

func questionWithAttachments(atts ...models.Attachment) *models.Question {
	return &models.Question{ID: 1, Text: "Look at these", Attachments: atts}
}

func TestSendAttachmentsInOrder(t *testing.T) {
	ch := newMockChannel()
	s := fastSender(ch)
	q := questionWithAttachments(
		models.Attachment{Type: models.AttachmentTypeImage, URL: "u1"},
		models.Attachment{Type: models.AttachmentTypeVideo, URL: "u2"},
		models.Attachment{Type: models.AttachmentTypeDocument, URL: "u3"},
	)

	if err := s.SendAttachments(context.Background(), "chat1", q); err != nil {
		t.Fatalf("SendAttachments failed: %v", err)
	}
	if len(ch.sent) != 3 {
		t.Fatalf("Sent %d items, want 3", len(ch.sent))
	}
	for i, want := range []string{"u1", "u2", "u3"} {
		if ch.sent[i].url != want {
			t.Errorf("sent[%d] = %s, want %s", i, ch.sent[i].url, want)
		}
	}
}

func TestSendAttachmentsCaptions(t *testing.T) {
	ch := newMockChannel()
	s := fastSender(ch)
	q := questionWithAttachments(
		models.Attachment{Type: models.AttachmentTypeImage, URL: "u1"},
		models.Attachment{Type: models.AttachmentTypeImage, URL: "u2"},
	)

	if err := s.SendAttachments(context.Background(), "chat1", q); err != nil {
		t.Fatalf("SendAttachments failed: %v", err)
	}
	if !strings.Contains(ch.sent[0].caption, "Look at these") || !strings.Contains(ch.sent[0].caption, "(1/2)") {
		t.Errorf("First caption should carry question text and position, got %q", ch.sent[0].caption)
	}
	if ch.sent[1].caption != "(2/2)" {
		t.Errorf("Second caption = %q, want (2/2)", ch.sent[1].caption)
	}
}

func TestSendAttachmentsEmpty(t *testing.T) {
	ch := newMockChannel()
	s := fastSender(ch)
	if err := s.SendAttachments(context.Background(), "chat1", &models.Question{ID: 1}); err != nil {
		t.Errorf("No attachments should succeed trivially, got %v", err)
	}
	if len(ch.sent) != 0 {
		t.Errorf("No sends expected, got %d", len(ch.sent))
	}
}

func TestSendAttachmentsRetriesTransientFailure(t *testing.T) {
	ch := newMockChannel()
	ch.failures["u1"] = 2 // fails twice, succeeds on the third attempt
	s := fastSender(ch)
	q := questionWithAttachments(models.Attachment{Type: models.AttachmentTypeImage, URL: "u1"})

	if err := s.SendAttachments(context.Background(), "chat1", q); err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if len(ch.sent) != 1 {
		t.Errorf("Sent %d items, want 1", len(ch.sent))
	}
}

func TestSendAttachmentsAbortsAfterExhaustedRetries(t *testing.T) {
	ch := newMockChannel()
	ch.permanent["u2"] = true
	s := fastSender(ch)
	q := questionWithAttachments(
		models.Attachment{Type: models.AttachmentTypeImage, URL: "u1"},
		models.Attachment{Type: models.AttachmentTypeImage, URL: "u2"},
		models.Attachment{Type: models.AttachmentTypeImage, URL: "u3"},
	)

	err := s.SendAttachments(context.Background(), "chat1", q)
	if err == nil {
		t.Fatal("Expected failure when an item exhausts retries")
	}
	if !strings.Contains(err.Error(), "2/3") {
		t.Errorf("Error should name the failed item, got %v", err)
	}
	// u1 was already sent and stays sent; u3 must never be attempted.
	if len(ch.sent) != 1 || ch.sent[0].url != "u1" {
		t.Errorf("Expected only u1 delivered, got %+v", ch.sent)
	}
}

func TestSendAttachmentsUnknownTypeFailsWithoutSend(t *testing.T) {
	ch := newMockChannel()
	s := fastSender(ch)
	q := questionWithAttachments(models.Attachment{Type: "hologram", URL: "u1"})

	err := s.SendAttachments(context.Background(), "chat1", q)
	if err == nil {
		t.Fatal("Expected failure for unrecognized attachment type")
	}
	if !strings.Contains(err.Error(), "hologram") {
		t.Errorf("Error should name the bad type, got %v", err)
	}
	if len(ch.sent) != 0 {
		t.Error("Unrecognized type must not be sent at all")
	}
}

func TestSendAttachmentsContextCancellation(t *testing.T) {
	ch := newMockChannel()
	ch.permanent["u1"] = true
	s := NewSenderWithTiming(ch, 5, 50*time.Millisecond, 0)
	q := questionWithAttachments(models.Attachment{Type: models.AttachmentTypeImage, URL: "u1"})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := s.SendAttachments(ctx, "chat1", q)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected context deadline error, got %v", err)
	}
}
