package llm

import (
	"context"
	"testing"
)

// MockProvider is a test double that satisfies the Provider interface.
type MockProvider struct {
	CompleteFunc func(ctx context.Context, messages []Message, req Request) (*Response, error)
}

func (m *MockProvider) Complete(ctx context.Context, messages []Message, opts ...Option) (*Response, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, messages, BuildRequest(opts...))
	}
	return &Response{Content: "mock response"}, nil
}

func TestProviderInterface(t *testing.T) {
	var provider Provider = &MockProvider{}
	ctx := context.Background()
	messages := []Message{{Role: RoleUser, Content: "test"}}

	resp, err := provider.Complete(ctx, messages)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content == "" {
		t.Error("expected non-empty response")
	}
}

func TestOptionsApplied(t *testing.T) {
	var got Request
	mock := &MockProvider{
		CompleteFunc: func(ctx context.Context, messages []Message, req Request) (*Response, error) {
			got = req
			return &Response{Content: "{}"}, nil
		},
	}

	if _, err := mock.Complete(context.Background(), nil, WithJSON(), WithMaxTokens(64), WithTemperature(0.1)); err != nil {
		t.Fatal(err)
	}
	if !got.JSON {
		t.Error("expected JSON to be set")
	}
	if got.MaxTokens != 64 {
		t.Errorf("expected max tokens 64, got %d", got.MaxTokens)
	}
	if got.Temperature == nil || *got.Temperature != 0.1 {
		t.Errorf("expected temperature 0.1, got %v", got.Temperature)
	}
}

func TestBuildRequestEmpty(t *testing.T) {
	req := BuildRequest()
	if req.JSON || req.MaxTokens != 0 || req.Temperature != nil {
		t.Errorf("expected zero request, got %+v", req)
	}
}

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "plain", in: `{"a":1}`, want: `{"a":1}`},
		{name: "fenced", in: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "prose around", in: `Sure! Here it is: {"a":{"b":2}} hope that helps`, want: `{"a":{"b":2}}`},
		{name: "empty", in: "   ", wantErr: true},
		{name: "no object", in: "true", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSONObject(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("héllo", 2); got != "hé" {
		t.Errorf("expected hé, got %q", got)
	}
	if got := Truncate("hi", 10); got != "hi" {
		t.Errorf("expected hi, got %q", got)
	}
}
