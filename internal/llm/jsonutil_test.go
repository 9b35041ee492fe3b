package llm

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	t.Run("plain object", func(t *testing.T) {
		got := ExtractJSON(`{"score": 88}`)
		assert.Equal(t, `{"score": 88}`, got)
	})

	t.Run("object wrapped in prose and fences", func(t *testing.T) {
		in := "Sure, here is the result:\n```json\n{\"a\": {\"b\": 1}}\n```\nanything else?"
		got := ExtractJSON(in)
		assert.Equal(t, `{"a": {"b": 1}}`, got)
	})

	t.Run("braces inside strings do not close the object", func(t *testing.T) {
		in := `{"text": "a } b { c", "n": 2}`
		got := ExtractJSON(in)
		assert.Equal(t, in, got)
	})

	t.Run("no object", func(t *testing.T) {
		assert.Empty(t, ExtractJSON("no json here"))
	})

	t.Run("unbalanced object", func(t *testing.T) {
		assert.Empty(t, ExtractJSON(`{"a": 1`))
	})
}

func TestSanitizeJSON(t *testing.T) {
	t.Run("escapes inner quotes", func(t *testing.T) {
		in := `{"rationale": "strong "Go" experience"}`
		fixed := SanitizeJSON(in)

		var out map[string]string
		require.NoError(t, json.Unmarshal([]byte(fixed), &out))
		assert.Equal(t, `strong "Go" experience`, out["rationale"])
	})

	t.Run("valid document unchanged", func(t *testing.T) {
		in := `{"a": "b", "c": [1, 2], "d": {"e": "f"}}`
		assert.Equal(t, in, SanitizeJSON(in))
	})

	t.Run("already escaped quotes unchanged", func(t *testing.T) {
		in := `{"a": "x \"y\" z"}`
		assert.Equal(t, in, SanitizeJSON(in))
	})
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, IsRetryableError(nil))
	assert.False(t, IsRetryableError(errors.New("invalid api key")))
	assert.True(t, IsRetryableError(errors.New("got status 429 from provider")))
	assert.True(t, IsRetryableError(errors.New("context deadline exceeded")))
	assert.True(t, IsRetryableError(errors.New("upstream returned status 503")))
	assert.True(t, IsRetryableError(errors.New("Rate Limit reached")))
}
