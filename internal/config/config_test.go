package config

import (
	"os"
	"testing"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	os.Setenv("HTTP_ADDRESS", "")
	os.Setenv("OPENAI_MODEL_ID", "")
	os.Setenv("COMPANY_NAME", "")
	cfg := Load()
	if cfg.HTTPAddress != ":8080" {
		t.Fatalf("expected default http address, got %q", cfg.HTTPAddress)
	}
	if cfg.OpenAIModelID == "" {
		t.Fatalf("expected default model id")
	}
	if cfg.CompanyName == "" {
		t.Fatalf("expected default company name")
	}
	if cfg.WelcomeAgentName == "" || cfg.LoanAgentName == "" {
		t.Fatalf("expected default persona names")
	}
	if cfg.SpeechProvider != "deepgram" || cfg.LLMProvider != "openai" {
		t.Fatalf("expected default providers, got %q/%q", cfg.SpeechProvider, cfg.LLMProvider)
	}
}

func TestLoad_ProviderSelection(t *testing.T) {
	t.Setenv("STT_PROVIDER", "assemblyai")
	t.Setenv("ASSEMBLYAI_API_KEY", "aai-key")
	t.Setenv("LLM_PROVIDER", "cerebras")
	t.Setenv("CEREBRAS_API_KEY", "cb-key")
	cfg := Load()
	if cfg.SpeechProvider != "assemblyai" || cfg.AssemblyAIAPIKey != "aai-key" {
		t.Fatalf("speech provider = %q key = %q", cfg.SpeechProvider, cfg.AssemblyAIAPIKey)
	}
	if cfg.LLMProvider != "cerebras" || cfg.CerebrasAPIKey != "cb-key" {
		t.Fatalf("llm provider = %q key = %q", cfg.LLMProvider, cfg.CerebrasAPIKey)
	}
	if cfg.CerebrasModelID == "" {
		t.Fatalf("expected default cerebras model id")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDRESS", ":9999")
	t.Setenv("COMPANY_NAME", "Acme Loans")
	t.Setenv("DECISIONRULES_SOLVER_KEY", "legacy-key")
	t.Setenv("DECISION_RULES_API_KEY", "")
	cfg := Load()
	if cfg.HTTPAddress != ":9999" {
		t.Fatalf("HTTPAddress = %q", cfg.HTTPAddress)
	}
	if cfg.CompanyName != "Acme Loans" {
		t.Fatalf("CompanyName = %q", cfg.CompanyName)
	}
	// legacy alias still resolves
	if cfg.DecisionRulesAPIKey != "legacy-key" {
		t.Fatalf("DecisionRulesAPIKey = %q", cfg.DecisionRulesAPIKey)
	}
}
