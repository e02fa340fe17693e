package render

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsFromMap(t *testing.T) {
	opts, err := OptionsFromMap(map[string]any{
		"locals":         map[string]any{"a": 1},
		"collection":     []any{"x"},
		"keyName":        "k",
		"valueName":      "v",
		"keepWhitespace": true,
		"layout":         "main",
		"sep":            ",",
		"unknown":        42,
	})
	require.NoError(t, err)

	assert.Equal(t, Options{
		Locals:         map[string]any{"a": 1},
		Collection:     []any{"x"},
		KeyName:        "k",
		ValueName:      "v",
		KeepWhitespace: true,
		Layout:         "main",
		Sep:            ",",
	}, opts)

	empty, err := OptionsFromMap(nil)
	require.NoError(t, err)
	assert.Equal(t, Options{}, empty)
}

func TestOptionsFromMapTypeErrors(t *testing.T) {
	testCases := []struct {
		name   string
		input  map[string]any
		option string
	}{
		{name: "key name", input: map[string]any{"collection": []any{1}, "keyName": int64(1)}, option: OptKeyName},
		{name: "value name", input: map[string]any{"collection": []any{1}, "valueName": true}, option: OptValueName},
		{name: "sep", input: map[string]any{"sep": []any{}}, option: OptSep},
		{name: "layout", input: map[string]any{"layout": 3.5}, option: OptLayout},
		{name: "keep whitespace", input: map[string]any{"keepWhitespace": "yes"}, option: OptKeepWhitespace},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := OptionsFromMap(tc.input)
			var argErr *ArgumentTypeError
			require.True(t, errors.As(err, &argErr))
			assert.Equal(t, tc.option, argErr.Option)
		})
	}
}

func TestOptionsFromMapNamesNeedCollection(t *testing.T) {
	opts, err := OptionsFromMap(map[string]any{"keyName": int64(1), "valueName": true, "sep": ","})
	require.NoError(t, err)
	assert.Equal(t, Options{Sep: ","}, opts)

	_, err = OptionsFromMap(map[string]any{"sep": 1})
	var argErr *ArgumentTypeError
	require.True(t, errors.As(err, &argErr))
	assert.Equal(t, OptSep, argErr.Option)
}
