package job

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/aescanero/dago-node-renderer/internal/render"
)

// Mode selects what a job does with its resource
type Mode string

const (
	// ModeRender evaluates a template
	ModeRender Mode = "render"

	// ModeRaw returns a resource's content without evaluating it
	ModeRaw Mode = "raw"
)

// Config is the node configuration carried by a render job
type Config struct {
	Mode           Mode                   `json:"mode"`
	Template       string                 `json:"template,omitempty"`
	Raw            string                 `json:"raw,omitempty"`
	Partial        bool                   `json:"partial,omitempty"`
	Locals         map[string]interface{} `json:"locals,omitempty"`
	Collection     interface{}            `json:"collection,omitempty"`
	KeyName        string                 `json:"key_name,omitempty"`
	ValueName      string                 `json:"value_name,omitempty"`
	KeepWhitespace bool                   `json:"keep_whitespace,omitempty"`
	Layout         string                 `json:"layout,omitempty"`
	Sep            string                 `json:"sep,omitempty"`
	UseState       bool                   `json:"use_state,omitempty"`
	DataFile       string                 `json:"data_file,omitempty"`
}

// UnmarshalJSON decodes a job configuration. An object-valued collection is
// decoded into render.Pairs so its entries render in document order.
func (c *Config) UnmarshalJSON(data []byte) error {
	type plain Config
	aux := struct {
		*plain
		Collection json.RawMessage `json:"collection,omitempty"`
	}{plain: (*plain)(c)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	c.Collection = nil
	if len(aux.Collection) == 0 {
		return nil
	}
	collection, err := decodeCollection(aux.Collection)
	if err != nil {
		return fmt.Errorf("failed to decode collection: %w", err)
	}
	c.Collection = collection
	return nil
}

// decodeCollection keeps the key order of a JSON object. A repeated key keeps
// its first position and its last value. Other values decode as usual.
func decodeCollection(raw json.RawMessage) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		var v interface{}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	}

	var pairs render.Pairs
	index := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected object key %v", tok)
		}

		var value interface{}
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}

		if i, seen := index[key]; seen {
			pairs[i].Value = value
			continue
		}
		index[key] = len(pairs)
		pairs = append(pairs, render.Pair{Key: key, Value: value})
	}

	// An empty object stays a map so it fails like any empty mapping
	if len(pairs) == 0 {
		return map[string]interface{}{}, nil
	}
	return pairs, nil
}

// Resource returns the name of the resource the job reads
func (c *Config) Resource() string {
	if c.Mode == ModeRaw {
		return c.Raw
	}
	return c.Template
}

// Result is the outcome of a job
type Result struct {
	Mode     Mode   `json:"mode"`
	Resource string `json:"template"`
	Output   string `json:"output"`
}

// detectMode detects the job mode from configuration
func detectMode(config *Config) Mode {
	// Raw mode: names a raw resource and no template
	if config.Raw != "" && config.Template == "" {
		return ModeRaw
	}

	// Default to render
	return ModeRender
}

// validateConfig validates the job configuration
func validateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("config is nil")
	}

	switch config.Mode {
	case ModeRender:
		if config.Template == "" {
			return fmt.Errorf("render mode requires template")
		}
		if config.Raw != "" {
			return fmt.Errorf("render mode does not accept raw")
		}
		if config.Collection == nil && (config.KeyName != "" || config.ValueName != "" || config.Sep != "") {
			return fmt.Errorf("key_name, value_name and sep require collection")
		}

	case ModeRaw:
		if config.Raw == "" {
			return fmt.Errorf("raw mode requires raw")
		}
		if config.Template != "" {
			return fmt.Errorf("raw mode does not accept template")
		}
		if len(config.Locals) > 0 || config.Collection != nil || config.Layout != "" ||
			config.UseState || config.DataFile != "" {
			return fmt.Errorf("raw mode does not evaluate; locals, collection, layout, use_state and data_file are not allowed")
		}

	default:
		return fmt.Errorf("unknown job mode: %s", config.Mode)
	}

	return nil
}
