// Package store persists models, prompts, results and settings. Two
// implementations are provided: a PostgreSQL store for deployments and an
// in-memory store for tests and throwaway runs.
package store

import (
	"context"
	"time"

	"github.com/askmany/askmany/pkg/types"
)

// Prompt is a saved prompt with optional tags.
type Prompt struct {
	ID         int64     `json:"id"`
	Text       string    `json:"text"`
	Tags       []string  `json:"tags,omitempty"`
	IsFavorite bool      `json:"is_favorite"`
	CreatedAt  time.Time `json:"created_at"`
}

// Result is a persisted model response for a prompt.
type Result struct {
	ID           int64     `json:"id"`
	PromptID     int64     `json:"prompt_id"`
	ModelID      int64     `json:"model_id"`
	ModelName    string    `json:"model_name,omitempty"`
	ResponseText string    `json:"response_text"`
	ResponseTime float64   `json:"response_time"`
	TokensUsed   *int      `json:"tokens_used,omitempty"`
	SavedAt      time.Time `json:"saved_at"`
}

// Setting is a persisted key/value application setting.
type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PromptFilter narrows ListPrompts. Tag keeps only prompts carrying that
// exact tag.
type PromptFilter struct {
	FavoriteOnly bool
	Tag          string
	Limit        int
	Offset       int
}

// Store is the persistence interface. Lookups return (nil, nil) when the
// row does not exist.
type Store interface {
	CreateModel(ctx context.Context, m *types.Model) error
	GetModel(ctx context.Context, id int64) (*types.Model, error)
	GetModelByName(ctx context.Context, name string) (*types.Model, error)
	ListModels(ctx context.Context, activeOnly bool) ([]types.Model, error)
	UpdateModel(ctx context.Context, m *types.Model) error
	SetModelActive(ctx context.Context, id int64, active bool) error
	DeleteModel(ctx context.Context, id int64) error

	CreatePrompt(ctx context.Context, p *Prompt) error
	GetPrompt(ctx context.Context, id int64) (*Prompt, error)
	ListPrompts(ctx context.Context, filter PromptFilter) ([]Prompt, error)
	SearchPrompts(ctx context.Context, text string) ([]Prompt, error)
	SetPromptFavorite(ctx context.Context, id int64, favorite bool) error
	DeletePrompt(ctx context.Context, id int64) error

	SaveResult(ctx context.Context, r *Result) error
	ResultsByPrompt(ctx context.Context, promptID int64) ([]Result, error)
	ListResults(ctx context.Context, limit, offset int) ([]Result, error)
	DeleteResultsByPrompt(ctx context.Context, promptID int64) (int64, error)

	SetSetting(ctx context.Context, key, value string) error
	GetSetting(ctx context.Context, key string) (*Setting, error)

	Ping(ctx context.Context) error
	Close() error
}
