package ai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/troikatech/voice-ivr/pkg/circuitbreaker"
)

// MockProvider is a mock implementation of Provider for testing
type MockProvider struct {
	name      string
	available bool
	shouldErr bool
	calls     int
	lastReq   *CompletionRequest
}

func (m *MockProvider) Complete(ctx context.Context, req *CompletionRequest) (string, error) {
	m.calls++
	m.lastReq = req
	if m.shouldErr {
		return "", errors.New("mock error")
	}
	return "reply from " + m.name, nil
}

func (m *MockProvider) IsAvailable() bool {
	return m.available
}

func (m *MockProvider) Name() string {
	return m.name
}

func testBreaker() circuitbreaker.Config {
	return circuitbreaker.Config{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Hour}
}

func TestManager_GetAvailableProvider(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name      string
		providers []Provider
		want      string
		wantNil   bool
	}{
		{
			name: "returns first available provider",
			providers: []Provider{
				&MockProvider{name: "groq", available: true},
				&MockProvider{name: "openai", available: true},
			},
			want: "groq",
		},
		{
			name: "returns nil when no providers available",
			providers: []Provider{
				&MockProvider{name: "groq", available: false},
				&MockProvider{name: "openai", available: false},
			},
			wantNil: true,
		},
		{
			name: "skips unavailable providers",
			providers: []Provider{
				&MockProvider{name: "groq", available: false},
				&MockProvider{name: "openai", available: true},
			},
			want: "openai",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(tt.providers, testBreaker(), logger)
			got := m.GetAvailableProvider()

			if tt.wantNil {
				if got != nil {
					t.Errorf("GetAvailableProvider() = %v, want nil", got.Name())
				}
				return
			}
			if got == nil {
				t.Fatalf("GetAvailableProvider() = nil, want %v", tt.want)
			}
			if got.Name() != tt.want {
				t.Errorf("GetAvailableProvider() = %v, want %v", got.Name(), tt.want)
			}
		})
	}
}

func TestManager_Complete_WithFallback(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name      string
		providers []Provider
		wantErr   bool
		want      string
	}{
		{
			name: "succeeds with first provider",
			providers: []Provider{
				&MockProvider{name: "groq", available: true},
				&MockProvider{name: "openai", available: true},
			},
			want: "reply from groq",
		},
		{
			name: "falls back to second provider when first fails",
			providers: []Provider{
				&MockProvider{name: "groq", available: true, shouldErr: true},
				&MockProvider{name: "openai", available: true},
			},
			want: "reply from openai",
		},
		{
			name: "fails when all providers fail",
			providers: []Provider{
				&MockProvider{name: "groq", available: true, shouldErr: true},
				&MockProvider{name: "openai", available: true, shouldErr: true},
			},
			wantErr: true,
		},
		{
			name:    "fails with no providers",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(tt.providers, testBreaker(), logger)
			got, err := m.Complete(context.Background(), &CompletionRequest{
				Messages:  []Message{{Role: RoleUser, Content: "hello"}},
				MaxTokens: 150,
			})

			if tt.wantErr {
				if err == nil {
					t.Errorf("Complete() expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Complete() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Complete() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestManager_OpenBreakerSkipsProvider(t *testing.T) {
	flaky := &MockProvider{name: "groq", available: true, shouldErr: true}
	backup := &MockProvider{name: "openai", available: true}
	m := NewManager([]Provider{flaky, backup}, testBreaker(), zap.NewNop())

	for i := 0; i < 3; i++ {
		if _, err := m.Complete(context.Background(), &CompletionRequest{}); err != nil {
			t.Fatalf("call %d: unexpected error %v", i, err)
		}
	}
	if flaky.calls != 2 {
		t.Errorf("expected flaky provider to be tried twice before tripping, got %d", flaky.calls)
	}
	if backup.calls != 3 {
		t.Errorf("expected backup to serve every call, got %d", backup.calls)
	}
}

func TestManager_SummarizeCall(t *testing.T) {
	p := &MockProvider{name: "groq", available: true}
	m := NewManager([]Provider{p}, testBreaker(), zap.NewNop())

	resp, err := m.SummarizeCall(context.Background(), &SummarizeRequest{
		CallSID: "CA123",
		Transcript: []Message{
			{Role: RoleSystem, Content: "system prompt"},
			{Role: RoleUser, Content: "How do I renew my ration card?"},
			{Role: RoleAssistant, Content: "Visit the state food portal."},
		},
	})
	if err != nil {
		t.Fatalf("SummarizeCall() error = %v", err)
	}
	if resp.Summary == "" || resp.Provider != "groq" {
		t.Errorf("unexpected response %+v", resp)
	}
	body := p.lastReq.Messages[1].Content
	if strings.Contains(body, "system prompt") || !strings.Contains(body, "ration card") {
		t.Errorf("unexpected transcript body %q", body)
	}
}

func TestManager_SummarizeCall_EmptyTranscript(t *testing.T) {
	m := NewManager([]Provider{&MockProvider{name: "groq", available: true}}, testBreaker(), zap.NewNop())
	if _, err := m.SummarizeCall(context.Background(), &SummarizeRequest{CallSID: "CA1"}); err == nil {
		t.Fatal("expected error for empty transcript")
	}
}
