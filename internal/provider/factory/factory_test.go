package factory

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boq-estimator/internal/config"
	"boq-estimator/internal/provider"
	claudeProvider "boq-estimator/internal/provider/claude"
	openaiProvider "boq-estimator/internal/provider/openai"
)

func TestNewBuildsConfiguredKind(t *testing.T) {
	tests := []struct {
		kind string
		want any
	}{
		{kind: config.KindOpenAI, want: &openaiProvider.Provider{}},
		{kind: config.KindClaude, want: &claudeProvider.Provider{}},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			p, err := New(t.Context(), config.ProviderConfig{Kind: tt.kind, APIKey: "k", BaseURL: "https://example.test"})
			require.NoError(t, err)
			assert.Equal(t, tt.kind, p.Name())

			unwrapper, ok := p.(interface{ Unwrap() provider.Provider })
			require.True(t, ok)
			assert.IsType(t, tt.want, unwrapper.Unwrap())

			closer, ok := p.(io.Closer)
			require.True(t, ok)
			assert.NoError(t, closer.Close())
		})
	}
}

func TestNewRejectsUnknownKind(t *testing.T) {
	_, err := New(t.Context(), config.ProviderConfig{Kind: "mistral"})
	assert.ErrorContains(t, err, `unknown provider kind "mistral"`)
}

func TestNewWrapsConstructionErrors(t *testing.T) {
	_, err := New(t.Context(), config.ProviderConfig{Kind: config.KindOpenAI})
	assert.ErrorContains(t, err, "initialise openai provider")
}

func TestNewHTTPClient(t *testing.T) {
	assert.Zero(t, newHTTPClient(0).Timeout)
	assert.Equal(t, time.Minute, newHTTPClient(time.Minute).Timeout)
}
