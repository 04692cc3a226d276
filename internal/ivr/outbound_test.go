package ivr

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/troikatech/voice-ivr/pkg/storage"
	"github.com/troikatech/voice-ivr/pkg/twilio"
)

type fakeCreator struct {
	mu    sync.Mutex
	fail  map[string]error
	calls []twilio.CreateCallRequest
}

func (f *fakeCreator) CreateCall(_ context.Context, req twilio.CreateCallRequest) (*twilio.CreateCallResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if err := f.fail[req.To]; err != nil {
		return nil, err
	}
	return &twilio.CreateCallResponse{Sid: "CA" + req.To[1:], Status: "queued"}, nil
}

func TestDialPartialFailure(t *testing.T) {
	store := storage.NewMemoryGateway()
	creator := &fakeCreator{fail: map[string]error{"+919800000002": errors.New("number unreachable")}}
	d := NewDialer(creator, store, DialerConfig{From: "+14155550100", MaxConcurrency: 4}, zap.NewNop())

	res, err := d.Dial(context.Background(), Batch{
		Numbers:    []string{"+919800000001", "+919800000002"},
		WebhookURL: "https://ivr.example.com/voice",
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	if len(res.Successful) != 1 || res.Successful[0] != "+919800000001" {
		t.Errorf("successful = %v", res.Successful)
	}
	if len(res.Failed) != 1 || res.Failed[0].Number != "+919800000002" || res.Failed[0].Error != "number unreachable" {
		t.Errorf("failed = %+v", res.Failed)
	}
	if res.Total != 2 || res.Message != "Initiated 1 calls. Failed: 1" {
		t.Errorf("total=%d message=%q", res.Total, res.Message)
	}

	ctx := context.Background()
	if _, err := store.GetCall(ctx, "CA919800000001"); err != nil {
		t.Errorf("call row for A missing: %v", err)
	}
	calls, _ := store.ListRecentCalls(ctx, 10)
	if len(calls) != 1 {
		t.Fatalf("call rows = %d, want 1", len(calls))
	}
	if calls[0].Direction != storage.DirectionOutbound || calls[0].From != "+14155550100" {
		t.Errorf("call row = %+v", calls[0].Call)
	}
}

func TestDialKeepsInputOrder(t *testing.T) {
	creator := &fakeCreator{fail: map[string]error{}}
	d := NewDialer(creator, storage.NewMemoryGateway(), DialerConfig{From: "+14155550100", MaxConcurrency: 8}, zap.NewNop())

	var numbers []string
	for i := 0; i < 20; i++ {
		numbers = append(numbers, fmt.Sprintf("+9198000000%02d", i))
	}
	res, err := d.Dial(context.Background(), Batch{Numbers: numbers, WebhookURL: "https://ivr.example.com/voice"})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if len(res.Successful) != len(numbers) {
		t.Fatalf("successful = %d", len(res.Successful))
	}
	for i := range numbers {
		if res.Successful[i] != numbers[i] || res.Calls[i].Number != numbers[i] {
			t.Fatalf("order broken at %d: %s", i, res.Successful[i])
		}
	}
	if res.Message != "Initiated 20 calls." {
		t.Errorf("message = %q", res.Message)
	}
}

func TestDialPerNumberValidation(t *testing.T) {
	creator := &fakeCreator{}
	d := NewDialer(creator, storage.NewMemoryGateway(), DialerConfig{From: "+14155550100"}, zap.NewNop())

	res, err := d.Dial(context.Background(), Batch{
		Numbers:       []string{"98765 43210", "not-a-number"},
		WebhookURL:    "https://ivr.example.com/voice?lang=en",
		CustomMessage: "Your certificate is ready",
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if len(res.Successful) != 1 || len(res.Failed) != 1 || res.Failed[0].Number != "not-a-number" {
		t.Fatalf("result = %+v", res)
	}
	if len(creator.calls) != 1 {
		t.Fatalf("creator called %d times", len(creator.calls))
	}
	req := creator.calls[0]
	if req.To != "+919876543210" {
		t.Errorf("normalised to = %q", req.To)
	}
	u, err := url.Parse(req.WebhookURL)
	if err != nil {
		t.Fatalf("webhook url: %v", err)
	}
	if u.Query().Get(CustomMessageParam) != "Your certificate is ready" || u.Query().Get("lang") != "en" {
		t.Errorf("webhook query = %q", u.RawQuery)
	}
}

func TestDialWithoutCallerIDFailsEachNumber(t *testing.T) {
	creator := &fakeCreator{}
	d := NewDialer(creator, storage.NewMemoryGateway(), DialerConfig{}, zap.NewNop())

	res, err := d.Dial(context.Background(), Batch{Numbers: []string{"+919800000001", "+919800000002"}, WebhookURL: "https://ivr.example.com/voice"})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if len(res.Failed) != 2 || res.Failed[0].Error != ErrNoCallerID.Error() {
		t.Fatalf("failed = %+v", res.Failed)
	}
	if len(creator.calls) != 0 {
		t.Fatal("provider called without caller id")
	}
}

func TestDialBatchErrors(t *testing.T) {
	d := NewDialer(&fakeCreator{}, storage.NewMemoryGateway(), DialerConfig{From: "+14155550100"}, zap.NewNop())
	ctx := context.Background()

	if _, err := d.Dial(ctx, Batch{WebhookURL: "https://ivr.example.com/voice"}); !errors.Is(err, ErrNoNumbers) {
		t.Errorf("no numbers: %v", err)
	}
	if _, err := d.Dial(ctx, Batch{Numbers: []string{"+919800000001"}, WebhookURL: "/voice"}); !errors.Is(err, ErrInvalidWebhookURL) {
		t.Errorf("relative url: %v", err)
	}
}
