package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema declares the required shape of a structured LLM response.
type Schema struct {
	Name string
	Raw  string

	once     sync.Once
	compiled *jsonschema.Schema
	err      error
}

// Compile returns the compiled JSON Schema, compiling on first use.
func (s *Schema) Compile() (*jsonschema.Schema, error) {
	s.once.Do(func() {
		compiler := jsonschema.NewCompiler()
		resource := s.Name + ".json"
		if err := compiler.AddResource(resource, strings.NewReader(s.Raw)); err != nil {
			s.err = fmt.Errorf("add schema resource: %w", err)
			return
		}
		schema, err := compiler.Compile(resource)
		if err != nil {
			s.err = fmt.Errorf("compile schema %s: %w", s.Name, err)
			return
		}
		s.compiled = schema
	})
	return s.compiled, s.err
}

// MalformedOutputError is returned when the model could not produce
// schema-valid output within the retry budget. It carries the last raw
// response for diagnostics.
type MalformedOutputError struct {
	Schema      string
	Attempts    int
	LastRaw     string
	LastFailure error
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("malformed %s output after %d attempts: %v", e.Schema, e.Attempts, e.LastFailure)
}

func (e *MalformedOutputError) Unwrap() error { return e.LastFailure }

// UsageFunc observes token usage per model call.
type UsageFunc func(model string, inputTokens, outputTokens int64)

// StructuredClient obtains schema-valid JSON from an LLM provider. On a
// parse or validation failure it feeds the failure back into the prompt so
// the model can self-correct, up to a fixed retry bound.
type StructuredClient struct {
	provider Provider
	retries  int
	onUsage  UsageFunc
	logger   *log.Logger
}

// NewStructuredClient creates a structured client with the given extra-attempt
// bound (retries < 0 is treated as 0).
func NewStructuredClient(provider Provider, retries int, onUsage UsageFunc) *StructuredClient {
	if retries < 0 {
		retries = 0
	}
	return &StructuredClient{
		provider: provider,
		retries:  retries,
		onUsage:  onUsage,
		logger:   log.New(log.Writer(), "[LLM] ", log.LstdFlags),
	}
}

// Request asks the model for output matching schema and decodes it into out.
// Each attempt is one network call; no state is retained between calls.
func (c *StructuredClient) Request(ctx context.Context, prompt string, model string, schema *Schema, options map[string]interface{}, out interface{}) error {
	compiled, err := schema.Compile()
	if err != nil {
		return err
	}

	attempts := c.retries + 1
	attemptPrompt := prompt
	var lastRaw string
	var lastFailure error

	for attempt := 0; attempt < attempts; attempt++ {
		raw, in, outTok, err := c.provider.GenerateWithTokens(ctx, attemptPrompt, model, options)
		if err != nil {
			return fmt.Errorf("llm call failed: %w", err)
		}
		if c.onUsage != nil {
			c.onUsage(model, in, outTok)
		}
		lastRaw = raw

		payload, err := validateAgainst(compiled, raw)
		if err == nil {
			if err := json.Unmarshal(payload, out); err == nil {
				return nil
			} else {
				lastFailure = fmt.Errorf("decode into %T: %w", out, err)
			}
		} else {
			lastFailure = err
		}

		c.logger.Printf("attempt %d/%d for %s schema failed: %v", attempt+1, attempts, schema.Name, lastFailure)
		attemptPrompt = correctionPrompt(prompt, raw, lastFailure)
	}

	return &MalformedOutputError{
		Schema:      schema.Name,
		Attempts:    attempts,
		LastRaw:     lastRaw,
		LastFailure: lastFailure,
	}
}

func validateAgainst(schema *jsonschema.Schema, raw string) ([]byte, error) {
	payload := ExtractJSON(raw)
	if payload == "" {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	var doc interface{}
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return nil, fmt.Errorf("response is not valid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("response does not match schema: %w", err)
	}
	return []byte(payload), nil
}

func correctionPrompt(original, raw string, failure error) string {
	if len(raw) > 2000 {
		raw = raw[:2000] + "..."
	}
	return fmt.Sprintf(`%s

Your previous response was rejected: %v

PREVIOUS RESPONSE:
%s

Respond again with ONLY a valid JSON object matching the required schema. No prose, no code fences.`, original, failure, raw)
}

// ExtractJSON extracts the first balanced JSON object from a response,
// tolerating surrounding prose and code fences.
func ExtractJSON(response string) string {
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i, ch := range response {
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
			if depth == 0 && start != -1 {
				return response[start : i+1]
			}
		}
	}
	return ""
}
