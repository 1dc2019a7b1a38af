package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Tool represents one external capability. Execute never propagates an
// error past its boundary; every failure is communicated through Result.
type Tool interface {
	Name() string
	Description() string
	ParameterSchema() map[string]interface{}
	Execute(ctx context.Context, params map[string]interface{}) Result
}

// Result is the uniform envelope returned by every tool.
type Result struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"`
	// Transient marks a failure the executor may retry (timeout,
	// rate limit, 5xx-class). Bad parameters and auth failures are not.
	Transient bool `json:"-"`
}

// Ok builds a success envelope.
func Ok(data map[string]interface{}) Result {
	return Result{Success: true, Data: data}
}

// Fail builds a permanent failure envelope.
func Fail(format string, args ...interface{}) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// FailTransient builds a retryable failure envelope.
func FailTransient(format string, args ...interface{}) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, args...), Transient: true}
}

var (
	schemaMu    sync.Mutex
	schemaCache = map[string]*jsonschema.Schema{}
)

// ValidateParams checks params against the tool's own parameter schema.
// A mismatch is reported as an error the tool turns into a permanent
// failure envelope before any network call is attempted.
func ValidateParams(t Tool, params map[string]interface{}) error {
	raw, err := json.Marshal(t.ParameterSchema())
	if err != nil {
		return fmt.Errorf("marshal parameter schema for %s: %w", t.Name(), err)
	}

	schemaMu.Lock()
	compiled, ok := schemaCache[t.Name()]
	if !ok {
		compiler := jsonschema.NewCompiler()
		resource := t.Name() + "_params.json"
		if err := compiler.AddResource(resource, bytes.NewReader(raw)); err != nil {
			schemaMu.Unlock()
			return fmt.Errorf("add parameter schema for %s: %w", t.Name(), err)
		}
		compiled, err = compiler.Compile(resource)
		if err != nil {
			schemaMu.Unlock()
			return fmt.Errorf("compile parameter schema for %s: %w", t.Name(), err)
		}
		schemaCache[t.Name()] = compiled
	}
	schemaMu.Unlock()

	if params == nil {
		params = map[string]interface{}{}
	}
	// Round-trip so numeric params typed by the planner decode as
	// json.Number-free float64 values the validator understands.
	normalized, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(normalized, &doc); err != nil {
		return fmt.Errorf("parameters are not valid JSON: %w", err)
	}
	if err := compiled.Validate(doc); err != nil {
		return fmt.Errorf("invalid parameters: %v", err)
	}
	return nil
}

// StringParam returns a string parameter, with ok=false when absent or not a
// string.
func StringParam(params map[string]interface{}, key string) (string, bool) {
	v, ok := params[key].(string)
	return v, ok
}

// IntParam returns an integer parameter with a default. JSON decoding gives
// float64 for numbers.
func IntParam(params map[string]interface{}, key string, def int) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}
