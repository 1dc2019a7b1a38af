package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

type scriptedProvider struct {
	responses []string
	prompts   []string
	err       error
}

func (p *scriptedProvider) Generate(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, error) {
	resp, _, _, err := p.GenerateWithTokens(ctx, prompt, model, options)
	return resp, err
}

func (p *scriptedProvider) GenerateWithTokens(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, int64, int64, error) {
	if p.err != nil {
		return "", 0, 0, p.err
	}
	p.prompts = append(p.prompts, prompt)
	idx := len(p.prompts) - 1
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	return p.responses[idx], 10, 5, nil
}

func (p *scriptedProvider) GetAvailableModels() []string { return []string{"test-model"} }

func (p *scriptedProvider) GetModelInfo(model string) (ModelInfo, error) {
	return ModelInfo{Name: model}, nil
}

func (p *scriptedProvider) CalculateCost(inputTokens, outputTokens int64, model string) float64 {
	return 0
}

var greetingSchema = &Schema{
	Name: "greeting",
	Raw: `{
  "type": "object",
  "required": ["message"],
  "properties": {"message": {"type": "string"}}
}`,
}

func TestStructuredRequest_AcceptsProseWrappedJSON(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		"Here is the result:\n```json\n{\"message\": \"hello\"}\n```",
	}}
	client := NewStructuredClient(provider, 2, nil)

	var out struct {
		Message string `json:"message"`
	}
	if err := client.Request(context.Background(), "greet", "test-model", greetingSchema, nil, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Message != "hello" {
		t.Fatalf("expected message hello, got %q", out.Message)
	}
	if len(provider.prompts) != 1 {
		t.Fatalf("expected a single attempt, got %d", len(provider.prompts))
	}
}

func TestStructuredRequest_SelfCorrectsWithFailureFeedback(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		`{"wrong_field": true}`,
		`{"message": "recovered"}`,
	}}
	client := NewStructuredClient(provider, 2, nil)

	var out struct {
		Message string `json:"message"`
	}
	if err := client.Request(context.Background(), "greet", "test-model", greetingSchema, nil, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Message != "recovered" {
		t.Fatalf("expected recovered, got %q", out.Message)
	}
	if len(provider.prompts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(provider.prompts))
	}
	second := provider.prompts[1]
	if !strings.Contains(second, "rejected") || !strings.Contains(second, `"wrong_field"`) {
		t.Fatalf("correction prompt must carry the failure and previous response, got:\n%s", second)
	}
}

func TestStructuredRequest_ExhaustedRetriesReturnMalformedOutputError(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"not json at all"}}
	client := NewStructuredClient(provider, 2, nil)

	var out struct {
		Message string `json:"message"`
	}
	err := client.Request(context.Background(), "greet", "test-model", greetingSchema, nil, &out)
	if err == nil {
		t.Fatalf("expected error after exhausted retries")
	}
	var malformed *MalformedOutputError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedOutputError, got %T: %v", err, err)
	}
	if malformed.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", malformed.Attempts)
	}
	if len(provider.prompts) != 3 {
		t.Fatalf("expected 3 provider calls, got %d", len(provider.prompts))
	}
}

func TestStructuredRequest_ProviderErrorIsNotRetried(t *testing.T) {
	provider := &scriptedProvider{err: fmt.Errorf("connection refused")}
	client := NewStructuredClient(provider, 2, nil)

	var out struct{}
	err := client.Request(context.Background(), "greet", "test-model", greetingSchema, nil, &out)
	if err == nil {
		t.Fatalf("expected error")
	}
	var malformed *MalformedOutputError
	if errors.As(err, &malformed) {
		t.Fatalf("transport failure must not be classified as malformed output")
	}
}

func TestStructuredRequest_ReportsUsage(t *testing.T) {
	provider := &scriptedProvider{responses: []string{`{"message": "hi"}`}}
	var gotModel string
	var gotIn, gotOut int64
	client := NewStructuredClient(provider, 0, func(model string, in, out int64) {
		gotModel, gotIn, gotOut = model, in, out
	})

	var out struct {
		Message string `json:"message"`
	}
	if err := client.Request(context.Background(), "greet", "test-model", greetingSchema, nil, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotModel != "test-model" || gotIn != 10 || gotOut != 5 {
		t.Fatalf("usage not reported: model=%q in=%d out=%d", gotModel, gotIn, gotOut)
	}
}

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		expected string
	}{
		{"bare object", `{"a": 1}`, `{"a": 1}`},
		{"prose before and after", `Sure! {"a": 1} Hope that helps.`, `{"a": 1}`},
		{"code fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"nested objects", `{"a": {"b": {"c": 3}}}`, `{"a": {"b": {"c": 3}}}`},
		{"braces inside strings", `{"a": "close } brace", "b": 2}`, `{"a": "close } brace", "b": 2}`},
		{"escaped quotes", `{"a": "say \"hi\" {now}"}`, `{"a": "say \"hi\" {now}"}`},
		{"no object", "nothing here", ""},
		{"unbalanced", `{"a": 1`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractJSON(tc.input); got != tc.expected {
				t.Fatalf("expected %q, got %q", tc.expected, got)
			}
		})
	}
}
