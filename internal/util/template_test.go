package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("plain <text>", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain <text>", out)

	out, err = RenderTemplate(`You are {{.role_name}} & {{default "helpful" .tone}}.`, map[string]any{"role_name": "<Critic>", "tone": ""})
	require.NoError(t, err)
	assert.Equal(t, "You are <Critic> & helpful.", out)

	out, err = RenderTemplate(`{{upper .x}}`, map[string]any{"x": "abc"})
	require.NoError(t, err)
	assert.Equal(t, "ABC", out)

	out, err = RenderTemplate(`{{join ", " .a}} / {{join "+" .b}}`, map[string]any{"a": []any{"x", 1}, "b": []string{"p", "q"}})
	require.NoError(t, err)
	assert.Equal(t, "x, 1 / p+q", out)

	_, err = RenderTemplate(`{{.x`, nil)
	assert.Error(t, err)
}
