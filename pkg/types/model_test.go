package types

import (
	"strings"
	"testing"
)

func TestModelValidate(t *testing.T) {
	base := Model{
		Name:          "gpt-4o-mini",
		APIEndpoint:   "https://api.openai.com/v1/chat/completions",
		CredentialKey: "OPENAI_API_KEY",
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("expected valid model, got error: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Model)
	}{
		{"empty name", func(m *Model) { m.Name = "" }},
		{"too-long name", func(m *Model) { m.Name = strings.Repeat("a", MaxModelNameLength+1) }},
		{"empty endpoint", func(m *Model) { m.APIEndpoint = "  " }},
		{"empty credential key", func(m *Model) { m.CredentialKey = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := base
			tt.mutate(&m)
			if err := m.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestProviderShortName(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"OPENAI_API_KEY", "openai"},
		{"ANTHROPIC_API_KEY", "anthropic"},
		{"OPENROUTER_API_KEY", "openrouter"},
		{"GOOGLE_API_KEY", "google"},
		{"googleapi_key", "google"},
		{"custom_key", "custom_key"},
		{" Mixed_Api_Key ", "mixed"},
	}
	for _, tt := range tests {
		if got := ProviderShortName(tt.key); got != tt.want {
			t.Errorf("ProviderShortName(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}
