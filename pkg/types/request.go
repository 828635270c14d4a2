package types //nolint:revive // package name is intentional

// PromptRequest carries one prompt and its optional sampling parameters
// through a fan-out. Nil fields mean "use the provider's default".
type PromptRequest struct {
	Prompt      string   `json:"prompt"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

// Float64Ptr returns a pointer to v, for literal request construction.
func Float64Ptr(v float64) *float64 { return &v }

// IntPtr returns a pointer to v, for literal request construction.
func IntPtr(v int) *int { return &v }
