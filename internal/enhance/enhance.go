// Package enhance rewrites prompts through a single chat-completions call.
// Each enhancement type carries a system prompt that demands a strict JSON
// reply; the model's answer is parsed into a Result with the rewritten
// prompt, alternatives and reasoning.
package enhance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"

	askerrors "github.com/askmany/askmany/pkg/errors"
	"github.com/askmany/askmany/providers/openailike"
)

// Prompt length bounds. Anything outside them is rejected before the
// network call.
const (
	MinPromptLength = 10
	MaxPromptLength = 10000
)

const (
	// DefaultEndpoint is the OpenRouter chat-completions URL used when the
	// config names no other endpoint.
	DefaultEndpoint = "https://openrouter.ai/api/v1/chat/completions"

	// DefaultModel is a cheap, capable model for rewriting prompts.
	DefaultModel = "openai/gpt-4o-mini"

	DefaultTimeout = 30 * time.Second

	providerName = "openrouter"

	maxAlternatives = 3

	enhanceTemperature = 0.7
	enhanceMaxTokens   = 2000
)

// Validation failures callers can branch on (the HTTP layer maps them to
// 400 responses).
var (
	ErrPromptTooShort = fmt.Errorf("prompt is too short (minimum %d characters)", MinPromptLength)
	ErrPromptTooLong  = fmt.Errorf("prompt is too long (maximum %d characters)", MaxPromptLength)
)

// Type selects the system prompt used for an enhancement.
type Type string

const (
	TypeGeneral  Type = "general"
	TypeCode     Type = "code"
	TypeAnalysis Type = "analysis"
	TypeCreative Type = "creative"
)

// ParseType maps a string to an enhancement type. Unknown values fall back
// to TypeGeneral and report false.
func ParseType(s string) (Type, bool) {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case TypeGeneral, "":
		return TypeGeneral, true
	case TypeCode:
		return TypeCode, true
	case TypeAnalysis:
		return TypeAnalysis, true
	case TypeCreative:
		return TypeCreative, true
	default:
		return TypeGeneral, false
	}
}

// Result is a completed enhancement.
type Result struct {
	OriginalPrompt  string            `json:"original_prompt"`
	EnhancedPrompt  string            `json:"enhanced_prompt"`
	Alternatives    []string          `json:"alternatives"`
	Explanation     string            `json:"explanation"`
	Recommendations map[string]string `json:"recommendations"`
	Type            Type              `json:"enhancement_type"`
	CreatedAt       time.Time         `json:"created_at"`
}

// replyContract is appended to every system prompt so all types share the
// same machine-readable reply shape.
const replyContract = `IMPORTANT: Respond ONLY with JSON (no Markdown fences):
{"enhanced": "...", "alternatives": ["...", "...", "..."], "explanation": "...", "recommendations": {"code": "...", "analysis": "...", "creative": "..."}}`

var systemPrompts = map[Type]string{
	TypeGeneral: `You are an expert prompt engineer. Improve the prompt you are given.

Requirements:
1. Improve the clarity and structure of the prompt
2. Add specific details and context
3. Optimize the wording so the model understands the task better
4. Offer 2-3 alternative rephrasings
5. Explain what was changed and why
6. Give recommendations for adapting the prompt to other task types

` + replyContract,

	TypeCode: `You are an expert at writing prompts for programming tasks. Improve the prompt with a focus on coding work.

Requirements:
1. Make sure the prompt clearly states the requirements for the code
2. Name the programming language if it is missing
3. Include input/output format examples where applicable
4. Offer 2-3 alternative rephrasings
5. Explain the changes
6. Give recommendations for other task types

` + replyContract,

	TypeAnalysis: `You are an expert at writing prompts for analytical and research tasks. Improve the prompt for analysis work.

Requirements:
1. Clarify the goal of the analysis and the desired results
2. Add context and assumptions where needed
3. State the expected presentation format for the findings
4. Offer 2-3 alternative rephrasings
5. Explain the improvements
6. Give recommendations for other task types

` + replyContract,

	TypeCreative: `You are an expert at writing prompts for creative tasks. Improve the prompt for creative work.

Requirements:
1. Expand the description of tone and style
2. Add examples of the desired style or tone
3. Clarify the target audience and context
4. Offer 2-3 alternative rephrasings
5. Explain the changes
6. Give recommendations for other task types

` + replyContract,
}

// Config tunes the enhancer's upstream call.
type Config struct {
	Endpoint string
	Model    string
	APIKey   string
	Timeout  time.Duration
}

// Enhancer rewrites prompts through an OpenAI-compatible chat endpoint.
// It is safe for concurrent use.
type Enhancer struct {
	client *resty.Client
	cfg    Config
	logger *slog.Logger
}

// New creates an enhancer. The API key is required; everything else falls
// back to the OpenRouter defaults.
func New(cfg Config, logger *slog.Logger) (*Enhancer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("enhance: API key is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := resty.New().
		SetHeader("Content-Type", "application/json").
		SetAuthToken(cfg.APIKey).
		SetTimeout(cfg.Timeout)

	return &Enhancer{client: client, cfg: cfg, logger: logger}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

// Enhance rewrites one prompt. An unknown type degrades to TypeGeneral
// with a warning rather than failing; callers treat the type as a hint.
func (e *Enhancer) Enhance(ctx context.Context, prompt string, typ Type) (*Result, error) {
	if len(strings.TrimSpace(prompt)) < MinPromptLength {
		return nil, ErrPromptTooShort
	}
	if len(prompt) > MaxPromptLength {
		return nil, ErrPromptTooLong
	}

	system, ok := systemPrompts[typ]
	if !ok {
		e.logger.Warn("unknown enhancement type, using general", "type", string(typ))
		typ = TypeGeneral
		system = systemPrompts[TypeGeneral]
	}

	body, err := json.Marshal(chatRequest{
		Model: e.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: "Improve this prompt:\n\n" + prompt},
		},
		Temperature: enhanceTemperature,
		MaxTokens:   enhanceMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(body).
		Post(e.cfg.Endpoint)
	if err != nil {
		return nil, e.transportError(err)
	}
	if resp.IsError() {
		return nil, askerrors.FromStatusCode(providerName, e.cfg.Model, resp.StatusCode(), openailike.ErrorMessage(resp.Body()))
	}

	reply, err := completionText(resp.Body())
	if err != nil {
		return nil, askerrors.NewParseError(providerName, e.cfg.Model, err.Error())
	}

	result, err := parseReply(reply)
	if err != nil {
		e.logger.Debug("enhancement reply rejected", "error", err)
		return nil, askerrors.NewParseError(providerName, e.cfg.Model, err.Error())
	}

	result.OriginalPrompt = prompt
	result.Type = typ
	result.CreatedAt = time.Now()

	e.logger.Info("prompt enhanced",
		"type", string(typ),
		"alternatives", len(result.Alternatives),
	)
	return result, nil
}

func (e *Enhancer) transportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return askerrors.NewCancelledError(providerName, e.cfg.Model)
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return askerrors.NewTimeoutError(providerName, e.cfg.Model, e.cfg.Timeout)
	}
	return askerrors.NewConnectionError(providerName, e.cfg.Model, "connection failed: "+err.Error())
}

func completionText(body []byte) (string, error) {
	var envelope struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", fmt.Errorf("malformed response body: %w", err)
	}
	if len(envelope.Choices) == 0 || envelope.Choices[0].Message.Content == "" {
		return "", errors.New("no completion in response")
	}
	return envelope.Choices[0].Message.Content, nil
}

// stringList tolerates a single string where a list is expected; smaller
// models sometimes flatten the alternatives field.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err != nil {
		return errors.New("alternatives must be a string or a list of strings")
	}
	*l = stringList{single}
	return nil
}

func parseReply(reply string) (*Result, error) {
	var parsed struct {
		Enhanced        string            `json:"enhanced"`
		Alternatives    stringList        `json:"alternatives"`
		Explanation     string            `json:"explanation"`
		Recommendations map[string]string `json:"recommendations"`
	}
	if err := json.Unmarshal([]byte(stripCodeFences(reply)), &parsed); err != nil {
		return nil, fmt.Errorf("reply is not valid JSON: %w", err)
	}
	if parsed.Enhanced == "" {
		return nil, errors.New("reply has no enhanced prompt")
	}

	alternatives := []string(parsed.Alternatives)
	if len(alternatives) > maxAlternatives {
		alternatives = alternatives[:maxAlternatives]
	}
	recommendations := parsed.Recommendations
	if recommendations == nil {
		recommendations = map[string]string{}
	}

	return &Result{
		EnhancedPrompt:  parsed.Enhanced,
		Alternatives:    alternatives,
		Explanation:     parsed.Explanation,
		Recommendations: recommendations,
	}, nil
}

// stripCodeFences removes Markdown code fences some models wrap around the
// JSON despite the contract in the system prompt.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.ReplaceAll(s, "```json\n", "")
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}
