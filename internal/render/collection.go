package render

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Default collection local names
const (
	DefaultIndexName = "index"
	DefaultKeyName   = "key"
	DefaultValueName = "value"
)

// Set is an insertion-ordered set of values
type Set struct {
	items []any
}

// NewSet creates a set holding items in first-seen order
func NewSet(items ...any) *Set {
	s := &Set{}
	for _, item := range items {
		s.Add(item)
	}
	return s
}

// Add inserts v if it is not already present and reports whether it was added
func (s *Set) Add(v any) bool {
	if s.Has(v) {
		return false
	}
	s.items = append(s.items, v)
	return true
}

// Has reports whether v is in the set
func (s *Set) Has(v any) bool {
	for _, item := range s.items {
		if equalValues(item, v) {
			return true
		}
	}
	return false
}

// Len returns the number of values in the set
func (s *Set) Len() int {
	return len(s.items)
}

// Items returns the values in insertion order
func (s *Set) Items() []any {
	return append([]any(nil), s.items...)
}

func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	if va.Comparable() && vb.Comparable() {
		return va.Equal(vb)
	}
	return reflect.DeepEqual(a, b)
}

// Pair is one entry of an ordered key-value mapping
type Pair struct {
	Key   any
	Value any
}

// Pairs is an associative mapping that keeps insertion order
type Pairs []Pair

// Dataset holds the state of one collection render
type Dataset struct {
	Locals         Bag
	Collection     any
	KeyName        string
	ValueName      string
	Sep            string
	KeepWhitespace bool
}

type element struct {
	key   any
	value any
}

// elements lists the collection entries in iteration order. sequence reports
// whether keys are positions (slices, arrays and sets) rather than names.
func elements(collection any) (elems []element, sequence bool, err error) {
	unsupported := &UnsupportedCollectionError{Type: fmt.Sprintf("%T", collection)}

	switch c := collection.(type) {
	case *Set:
		return indexed(c.Items()), true, nil
	case Pairs:
		return pairElements(c), false, nil
	case []Pair:
		return pairElements(c), false, nil
	case Renderable:
		bag := Flatten(c)
		if bag.Len() == 0 {
			return nil, false, unsupported
		}
		return bagElements(bag), false, nil
	}

	rv := reflect.ValueOf(collection)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return indexed(items), true, nil
	case reflect.Map:
		if rv.Len() == 0 {
			return nil, false, unsupported
		}
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool { return lessKey(keys[i], keys[j]) })
		for _, k := range keys {
			elems = append(elems, element{key: k.Interface(), value: rv.MapIndex(k).Interface()})
		}
		return elems, false, nil
	case reflect.Ptr:
		if rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
			return nil, false, unsupported
		}
		rv = rv.Elem()
		fallthrough
	case reflect.Struct:
		fields := make(map[string]any)
		collectFields(rv, fields)
		bag := NewBag(fields)
		if bag.Len() == 0 {
			return nil, false, unsupported
		}
		return bagElements(bag), false, nil
	}

	return nil, false, unsupported
}

func indexed(items []any) []element {
	elems := make([]element, len(items))
	for i, item := range items {
		elems[i] = element{key: i, value: item}
	}
	return elems
}

func pairElements(pairs []Pair) []element {
	elems := make([]element, len(pairs))
	for i, p := range pairs {
		elems[i] = element{key: p.Key, value: p.Value}
	}
	return elems
}

func bagElements(bag Bag) []element {
	elems := make([]element, 0, bag.Len())
	for _, name := range bag.names {
		elems = append(elems, element{key: name, value: bag.values[name]})
	}
	return elems
}

// lessKey orders map keys numerically when both are numbers, otherwise by
// their text form.
func lessKey(a, b reflect.Value) bool {
	switch {
	case isInt(a) && isInt(b):
		return a.Int() < b.Int()
	case isUint(a) && isUint(b):
		return a.Uint() < b.Uint()
	case isFloat(a) && isFloat(b):
		return a.Float() < b.Float()
	}
	return strings.Compare(fmt.Sprint(a.Interface()), fmt.Sprint(b.Interface())) < 0
}

func isInt(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}

func isUint(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return false
}

func isFloat(v reflect.Value) bool {
	return v.Kind() == reflect.Float32 || v.Kind() == reflect.Float64
}

// renderCollection renders the resource at path once per collection element
// and joins the outputs with the dataset separator.
func (e *Engine) renderCollection(kind Kind, path string, ds Dataset, trace *Trace) (string, error) {
	elems, sequence, err := elements(ds.Collection)
	if err != nil {
		return "", err
	}

	keyName, valueName := ds.KeyName, ds.ValueName
	if keyName == "" {
		keyName = DefaultKeyName
		if sequence {
			keyName = DefaultIndexName
		}
	}
	if valueName == "" {
		valueName = DefaultValueName
	}

	outputs := make([]string, 0, len(elems))
	for _, el := range elems {
		locals := ds.Locals.With(Local{Name: keyName, Value: el.key}, Local{Name: valueName, Value: el.value})
		out, err := e.renderUnit(kind, path, locals, ds.KeepWhitespace, trace)
		if err != nil {
			return "", err
		}
		outputs = append(outputs, out)
	}
	return strings.Join(outputs, ds.Sep), nil
}
