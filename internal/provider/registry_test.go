package provider_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatbridge/internal/errs"
	"chatbridge/internal/provider"
)

func TestRegistry_ResolveBuiltin(t *testing.T) {
	r := provider.NewRegistry()

	p, err := r.Resolve(" Cohere ")
	require.NoError(t, err)
	assert.Equal(t, "cohere", p.ID)
	assert.Equal(t, provider.FormatCohere, p.ResponseFormat)

	p, err = r.Resolve("groq")
	require.NoError(t, err)
	assert.Equal(t, provider.FormatOpenAI, p.ResponseFormat)
	assert.Equal(t, provider.FormatOpenAI, p.StreamFormat)
}

func TestRegistry_UnknownProvider(t *testing.T) {
	_, err := provider.NewRegistry().Resolve("nope")

	var cfgErr *errs.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "nope", cfgErr.Provider)
}

func TestRegistry_ListSorted(t *testing.T) {
	list := provider.NewRegistry().List()
	require.Len(t, list, len(provider.Builtin()))

	for i := 1; i < len(list); i++ {
		assert.Less(t, list[i-1].ID, list[i].ID)
	}
}

func TestRegistry_PanicsOnDuplicate(t *testing.T) {
	p := provider.Policy{ID: "x", URLTemplate: "https://x", Map: provider.MapOpenAI}

	assert.Panics(t, func() { provider.NewRegistry(p, p) })
	assert.Panics(t, func() { provider.NewRegistry(provider.Policy{ID: "y"}) })
}

func TestRange_Clamp(t *testing.T) {
	r := provider.Range{Min: 0.01, Max: 0.99}

	assert.InDelta(t, 0.99, r.Clamp(1.5), 1e-9)
	assert.InDelta(t, 0.01, r.Clamp(0), 1e-9)
	assert.InDelta(t, 0.5, r.Clamp(0.5), 1e-9)
}
