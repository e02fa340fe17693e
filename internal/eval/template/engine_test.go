package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	engine := NewEngine()

	testCases := []struct {
		name     string
		source   string
		data     map[string]interface{}
		expected string
	}{
		{
			name:     "result key",
			source:   "render:result:{{execution_id}}:{{node_id}}",
			data:     map[string]interface{}{"execution_id": "exec-1", "node_id": "n1"},
			expected: "render:result:exec-1:n1",
		},
		{
			name:     "slug",
			source:   "{{slug template}}",
			data:     map[string]interface{}{"template": "emails/Welcome Back!"},
			expected: "emails-welcome-back",
		},
		{
			name:     "default",
			source:   `{{default node_id "none"}}`,
			data:     map[string]interface{}{"node_id": ""},
			expected: "none",
		},
		{
			name:     "case helpers",
			source:   "{{upper a}}{{lower b}}{{trim c}}",
			data:     map[string]interface{}{"a": "x", "b": "Y", "c": " z "},
			expected: "Xyz",
		},
		{
			name:     "join",
			source:   `{{join parts "."}}`,
			data:     map[string]interface{}{"parts": []interface{}{"a", 1}},
			expected: "a.1",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := engine.Render(tc.source, tc.data)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, out)
		})
	}
}

func TestNewEngineTwice(t *testing.T) {
	assert.NotPanics(t, func() {
		NewEngine()
		NewEngine()
	})
}

func TestCacheAndValidate(t *testing.T) {
	engine := NewEngine()

	_, err := engine.Render("{{a}}", map[string]interface{}{"a": 1})
	require.NoError(t, err)
	_, err = engine.Render("{{a}}", map[string]interface{}{"a": 2})
	require.NoError(t, err)
	assert.Equal(t, 1, engine.Len())

	assert.Error(t, engine.Validate("{{#if}}"))
	assert.NoError(t, engine.Validate("{{ok}}"))

	engine.ClearCache()
	assert.Equal(t, 0, engine.Len())
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "a-b-c", Slug("--A  b/c--"))
	assert.Equal(t, "", Slug("///"))
}
