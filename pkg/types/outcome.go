// Package types defines the core data structures carried between the
// dispatcher, the provider clients, and the storage layer.
package types //nolint:revive // package name is intentional

import "time"

// RequestOutcome is the normalized record produced for one model's request
// in a fan-out: either the response text with timing and token usage, or
// the error that stopped it. Exactly one outcome is produced per requested
// model id and it is never mutated after creation.
//
// Invariant: Succeeded == (Error == ""). Use the constructors to keep it.
type RequestOutcome struct {
	ModelID      int64   `json:"model_id"`
	ModelName    string  `json:"model_name"`
	ResponseText string  `json:"response_text,omitempty"`
	Elapsed      float64 `json:"elapsed_seconds"`
	TokensUsed   *int    `json:"tokens_used,omitempty"`
	Error        string  `json:"error,omitempty"`
	Succeeded    bool    `json:"succeeded"`
}

// NewSuccessOutcome builds the outcome for a completed request.
// tokensUsed may be nil when the provider reported no usage.
func NewSuccessOutcome(modelID int64, modelName, text string, elapsed time.Duration, tokensUsed *int) RequestOutcome {
	return RequestOutcome{
		ModelID:      modelID,
		ModelName:    modelName,
		ResponseText: text,
		Elapsed:      elapsed.Seconds(),
		TokensUsed:   tokensUsed,
		Succeeded:    true,
	}
}

// NewFailureOutcome builds the outcome for a failed request. An empty
// message is replaced so the succeeded/error invariant cannot be broken.
func NewFailureOutcome(modelID int64, modelName string, elapsed time.Duration, message string) RequestOutcome {
	if message == "" {
		message = "unknown error"
	}
	return RequestOutcome{
		ModelID:   modelID,
		ModelName: modelName,
		Elapsed:   elapsed.Seconds(),
		Error:     message,
		Succeeded: false,
	}
}

// Tally is the success/total count for one fan-out.
type Tally struct {
	Succeeded int `json:"succeeded"`
	Total     int `json:"total"`
}

// TallyOutcomes counts successful outcomes.
func TallyOutcomes(outcomes []RequestOutcome) Tally {
	t := Tally{Total: len(outcomes)}
	for i := range outcomes {
		if outcomes[i].Succeeded {
			t.Succeeded++
		}
	}
	return t
}
