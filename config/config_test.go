package config

import "testing"

func validConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Providers: defaultProviders(),
			Routing: LLMRoutingConfig{
				Planning:     "gpt-4o",
				Verification: "gpt-4o-mini",
			},
			MaxStructuredRetries: 2,
		},
	}
}

func TestValidate_OK(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestValidate_RequiresProviders(t *testing.T) {
	cfg := validConfig()
	cfg.LLM.Providers = nil
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for missing providers")
	}
}

func TestValidate_RequiresRoutingModels(t *testing.T) {
	cfg := validConfig()
	cfg.LLM.Routing.Planning = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for missing planning model")
	}

	cfg = validConfig()
	cfg.LLM.Routing.Verification = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for missing verification model")
	}
}

func TestValidate_RejectsNegativeRetries(t *testing.T) {
	cfg := validConfig()
	cfg.LLM.MaxStructuredRetries = -1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for negative retry bound")
	}
}

func TestDefaultProviders(t *testing.T) {
	providers := defaultProviders()
	openai, ok := providers["openai"]
	if !ok {
		t.Fatalf("expected default openai provider")
	}
	if openai.Type != "openai" {
		t.Fatalf("unexpected provider type %q", openai.Type)
	}
	if _, ok := openai.Models["gpt-4o"]; !ok {
		t.Fatalf("expected gpt-4o model in defaults")
	}
}
