package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/BTreeMap/SurveyPipe/internal/models"
	"github.com/BTreeMap/SurveyPipe/internal/twiliowhatsapp"
	"github.com/BTreeMap/SurveyPipe/internal/whatsapp"
)

func TestWhatsAppServiceSendMessageCanonicalizes(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())

	if err := svc.SendMessage(context.Background(), "+1 (647) 555-0100", "hello"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	select {
	case r := <-svc.Receipts():
		if r.To != "16475550100" || r.Status != models.MessageStatusSent {
			t.Errorf("Unexpected receipt: %+v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected a sent receipt")
	}
}

func TestWhatsAppServiceRejectsInvalidRecipient(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())
	if err := svc.SendMessage(context.Background(), "not a number", "hello"); err == nil {
		t.Error("Expected validation error for digitless recipient")
	}
}

func TestWhatsAppServiceSendAttachment(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())
	att := models.Attachment{Type: models.AttachmentTypeImage, URL: "https://example.com/a.jpg"}

	if err := svc.SendAttachment(context.Background(), "16475550100", att, "(1/1)"); err != nil {
		t.Fatalf("SendAttachment failed: %v", err)
	}

	select {
	case r := <-svc.Receipts():
		if r.Status != models.MessageStatusSent {
			t.Errorf("Unexpected receipt: %+v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected a sent receipt")
	}
}

func TestWhatsAppServiceSendsDoNotBlockOnFullReceipts(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())

	// Nobody drains Receipts: overflow receipts must be dropped immediately
	// rather than stalling each send for DefaultChannelTimeout.
	start := time.Now()
	for i := 0; i < DefaultChannelBufferSize+10; i++ {
		if err := svc.SendMessage(context.Background(), "16475550100", "hello"); err != nil {
			t.Fatalf("SendMessage %d failed: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed >= DefaultChannelTimeout {
		t.Errorf("Sends took %v with a full receipts buffer, want well under %v", elapsed, DefaultChannelTimeout)
	}

	// The buffered receipts are still readable.
	if len(svc.Receipts()) != DefaultChannelBufferSize {
		t.Errorf("Buffered %d receipts, want %d", len(svc.Receipts()), DefaultChannelBufferSize)
	}
}

func TestTwilioServiceRejectsSendAfterStop(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := svc.SendMessage(context.Background(), "16475550100", "late"); err != ErrServiceStopped {
		t.Errorf("Expected ErrServiceStopped, got %v", err)
	}
	// Stop is idempotent.
	if err := svc.Stop(); err != nil {
		t.Errorf("Second Stop failed: %v", err)
	}
}

func TestTwilioServiceInjectResponse(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())

	svc.InjectResponse(models.Response{From: "+16475550100", Body: "/start"})

	select {
	case r := <-svc.Responses():
		if r.From != "+16475550100" || r.Body != "/start" {
			t.Errorf("Unexpected response: %+v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected injected response on channel")
	}
}
