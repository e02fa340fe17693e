package render

// Options configure a single render call
type Options struct {
	// Locals is any value accepted by Flatten
	Locals any
	// Collection, when set, renders the resource once per element
	Collection any
	// KeyName defaults to "index" for sequences and sets, "key" otherwise
	KeyName string
	// ValueName defaults to "value"
	ValueName string
	// KeepWhitespace disables trimming of trailing whitespace
	KeepWhitespace bool
	// Layout overrides the engine's default layout
	Layout string
	// Sep is written between collection elements
	Sep string
}

// Option keys accepted by OptionsFromMap
const (
	OptLocals         = "locals"
	OptCollection     = "collection"
	OptKeyName        = "keyName"
	OptValueName      = "valueName"
	OptKeepWhitespace = "keepWhitespace"
	OptLayout         = "layout"
	OptSep            = "sep"
)

// OptionsFromMap decodes options passed as a dynamic map, as templates do
// with render('name', {...}). Unknown keys are ignored; a key holding a value
// of the wrong type fails with an *ArgumentTypeError. keyName and valueName
// only matter for collection renders and are ignored without a collection.
func OptionsFromMap(m map[string]any) (Options, error) {
	var opts Options
	if m == nil {
		return opts, nil
	}

	opts.Locals = m[OptLocals]
	opts.Collection = m[OptCollection]

	stringOpts := []struct {
		key        string
		target     *string
		collection bool
	}{
		{OptKeyName, &opts.KeyName, true},
		{OptValueName, &opts.ValueName, true},
		{OptLayout, &opts.Layout, false},
		{OptSep, &opts.Sep, false},
	}
	for _, s := range stringOpts {
		v, ok := m[s.key]
		if !ok || v == nil || (s.collection && opts.Collection == nil) {
			continue
		}
		str, ok := v.(string)
		if !ok {
			return Options{}, &ArgumentTypeError{Option: s.key, Value: v}
		}
		*s.target = str
	}

	if v, ok := m[OptKeepWhitespace]; ok && v != nil {
		keep, ok := v.(bool)
		if !ok {
			return Options{}, &ArgumentTypeError{Option: OptKeepWhitespace, Value: v}
		}
		opts.KeepWhitespace = keep
	}

	return opts, nil
}
