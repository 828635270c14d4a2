package types //nolint:revive // package name is intentional

import (
	"fmt"
	"strings"
	"time"
)

const MaxModelNameLength = 256

// Model describes one configured upstream model: where to reach it and
// which credential unlocks it. Rows are owned by the model registry; the
// dispatcher only reads them.
type Model struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	APIEndpoint   string    `json:"api_endpoint"`
	CredentialKey string    `json:"credential_key"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Validate checks the fields a registry write must carry.
func (m *Model) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("model name is required")
	}
	if len(m.Name) > MaxModelNameLength {
		return fmt.Errorf("model name is too long (max %d characters)", MaxModelNameLength)
	}
	if strings.TrimSpace(m.APIEndpoint) == "" {
		return fmt.Errorf("api endpoint is required")
	}
	if strings.TrimSpace(m.CredentialKey) == "" {
		return fmt.Errorf("credential key is required")
	}
	return nil
}

// ProviderShortName derives the provider name a credential key stands for
// by stripping the conventional key suffixes, e.g. "OPENROUTER_API_KEY"
// becomes "openrouter". Returns the lowercased key unchanged when no
// suffix matches.
func ProviderShortName(credentialKey string) string {
	name := strings.ToLower(strings.TrimSpace(credentialKey))
	if cut, ok := strings.CutSuffix(name, "_api_key"); ok {
		return cut
	}
	if cut, ok := strings.CutSuffix(name, "api_key"); ok {
		return cut
	}
	return name
}
