package secret

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askmany/askmany/internal/secret/env"
)

type fakeProvider struct {
	values map[string]string
	calls  int
}

func (f *fakeProvider) Get(_ context.Context, path string) (string, error) {
	f.calls++
	v, ok := f.values[path]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func (f *fakeProvider) Close() error { return nil }

func TestManagerRoutesByScheme(t *testing.T) {
	m := NewManager()
	m.Register("fake", &fakeProvider{values: map[string]string{"llm/openai": "sk-123"}})

	val, err := m.Get(context.Background(), "fake://llm/openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-123", val)

	_, err = m.Get(context.Background(), "vault://anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no secret provider registered")
}

func TestManagerTreatsSchemelessRefAsLiteral(t *testing.T) {
	m := NewManager()
	val, err := m.Get(context.Background(), "sk-literal-value")
	require.NoError(t, err)
	assert.Equal(t, "sk-literal-value", val)
}

func TestSourceEnvConvention(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-from-env")

	m := NewManager()
	m.Register("env", env.New())
	src := NewSource(m, nil, nil)

	val, ok := src.Secret(context.Background(), "openai")
	assert.True(t, ok)
	assert.Equal(t, "sk-from-env", val)

	_, ok = src.Secret(context.Background(), "anthropic")
	assert.False(t, ok, "unset variable must read as missing")
}

func TestSourceExplicitRefWinsOverConvention(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-conventional")
	t.Setenv("CUSTOM_KEY", "sk-custom")

	m := NewManager()
	m.Register("env", env.New())
	src := NewSource(m, map[string]string{"OpenAI": "env://CUSTOM_KEY"}, nil)

	val, ok := src.Secret(context.Background(), "openai")
	assert.True(t, ok)
	assert.Equal(t, "sk-custom", val)
}

func TestSourceEmptyValueIsMissing(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	m := NewManager()
	m.Register("env", env.New())
	src := NewSource(m, nil, nil)

	_, ok := src.Secret(context.Background(), "gemini")
	assert.False(t, ok)
}

func TestCachedProviderSkipsRepeatLookups(t *testing.T) {
	inner := &fakeProvider{values: map[string]string{"k": "v"}}
	cached := NewCachedProvider(inner, time.Minute)

	for i := 0; i < 3; i++ {
		val, err := cached.Get(context.Background(), "k")
		require.NoError(t, err)
		assert.Equal(t, "v", val)
	}
	assert.Equal(t, 1, inner.calls)

	// Misses are not cached.
	_, err := cached.Get(context.Background(), "absent")
	require.Error(t, err)
	_, err = cached.Get(context.Background(), "absent")
	require.Error(t, err)
	assert.Equal(t, 3, inner.calls)
}

func TestEnvVarName(t *testing.T) {
	assert.Equal(t, "OPENAI_API_KEY", EnvVarName("openai"))
	assert.Equal(t, "OPENROUTER_API_KEY", EnvVarName("openrouter"))
}
