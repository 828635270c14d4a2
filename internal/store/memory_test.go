package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askmany/askmany/pkg/types"
)

func testModel(name string) *types.Model {
	return &types.Model{
		Name:          name,
		APIEndpoint:   "https://api.openai.com/v1/chat/completions",
		CredentialKey: "OPENAI_API_KEY",
		IsActive:      true,
	}
}

func TestMemoryModelCRUD(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	m := testModel("gpt-4o")
	require.NoError(t, s.CreateModel(ctx, m))
	assert.NotZero(t, m.ID)
	assert.False(t, m.CreatedAt.IsZero())

	got, err := s.GetModel(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "gpt-4o", got.Name)

	byName, err := s.GetModelByName(ctx, "gpt-4o")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, m.ID, byName.ID)

	got.Name = "gpt-4o-renamed"
	require.NoError(t, s.UpdateModel(ctx, got))
	renamed, err := s.GetModel(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-renamed", renamed.Name)

	require.NoError(t, s.SetModelActive(ctx, m.ID, false))
	inactive, err := s.GetModel(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, inactive.IsActive)

	require.NoError(t, s.DeleteModel(ctx, m.ID))
	gone, err := s.GetModel(ctx, m.ID)
	require.NoError(t, err)
	assert.Nil(t, gone, "miss must be (nil, nil)")
}

func TestMemoryListModelsActiveOnly(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	active := testModel("active-model")
	require.NoError(t, s.CreateModel(ctx, active))

	dormant := testModel("dormant-model")
	dormant.IsActive = false
	require.NoError(t, s.CreateModel(ctx, dormant))

	all, err := s.ListModels(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, "active-model", all[0].Name, "list is name-ordered")

	onlyActive, err := s.ListModels(ctx, true)
	require.NoError(t, err)
	require.Len(t, onlyActive, 1)
	assert.Equal(t, "active-model", onlyActive[0].Name)
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	m := testModel("copy-check")
	require.NoError(t, s.CreateModel(ctx, m))

	first, err := s.GetModel(ctx, m.ID)
	require.NoError(t, err)
	first.Name = "mutated"

	second, err := s.GetModel(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "copy-check", second.Name)
}

func TestMemoryPrompts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	p := &Prompt{Text: "compare concurrency models", Tags: []string{"go", "theory"}}
	require.NoError(t, s.CreatePrompt(ctx, p))
	require.NotZero(t, p.ID)

	got, err := s.GetPrompt(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"go", "theory"}, got.Tags)

	require.NoError(t, s.SetPromptFavorite(ctx, p.ID, true))
	require.NoError(t, s.CreatePrompt(ctx, &Prompt{Text: "explain goroutine leaks"}))

	favorites, err := s.ListPrompts(ctx, PromptFilter{FavoriteOnly: true})
	require.NoError(t, err)
	require.Len(t, favorites, 1)
	assert.Equal(t, p.ID, favorites[0].ID)

	matches, err := s.SearchPrompts(ctx, "GOROUTINE")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Contains(t, matches[0].Text, "goroutine")

	require.NoError(t, s.DeletePrompt(ctx, p.ID))
	gone, err := s.GetPrompt(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestMemoryListPromptsByTag(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.CreatePrompt(ctx, &Prompt{Text: "refactor this", Tags: []string{"code", "enhanced"}}))
	require.NoError(t, s.CreatePrompt(ctx, &Prompt{Text: "write a poem", Tags: []string{"creative"}}))
	require.NoError(t, s.CreatePrompt(ctx, &Prompt{Text: "untagged"}))

	tagged, err := s.ListPrompts(ctx, PromptFilter{Tag: "code"})
	require.NoError(t, err)
	require.Len(t, tagged, 1)
	assert.Equal(t, "refactor this", tagged[0].Text)

	none, err := s.ListPrompts(ctx, PromptFilter{Tag: "missing"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryListPromptsPagination(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.CreatePrompt(ctx, &Prompt{Text: "prompt"}))
	}

	page, err := s.ListPrompts(ctx, PromptFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, page, 2)

	empty, err := s.ListPrompts(ctx, PromptFilter{Offset: 100})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemoryResults(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	m := testModel("result-model")
	require.NoError(t, s.CreateModel(ctx, m))
	p := &Prompt{Text: "hello"}
	require.NoError(t, s.CreatePrompt(ctx, p))

	tokens := 42
	r := &Result{
		PromptID:     p.ID,
		ModelID:      m.ID,
		ResponseText: "hi there",
		ResponseTime: 1.25,
		TokensUsed:   &tokens,
	}
	require.NoError(t, s.SaveResult(ctx, r))
	assert.NotZero(t, r.ID)
	assert.Equal(t, "result-model", r.ModelName, "model name resolved on save")

	byPrompt, err := s.ResultsByPrompt(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, byPrompt, 1)
	require.NotNil(t, byPrompt[0].TokensUsed)
	assert.Equal(t, 42, *byPrompt[0].TokensUsed)

	deleted, err := s.DeleteResultsByPrompt(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining, err := s.ListResults(ctx, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestMemorySettings(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	missing, err := s.GetSetting(ctx, "theme")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, s.SetSetting(ctx, "theme", "dark"))
	require.NoError(t, s.SetSetting(ctx, "theme", "light"))

	got, err := s.GetSetting(ctx, "theme")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "light", got.Value)
}
