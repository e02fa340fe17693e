package render

import (
	"reflect"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// maxDepth bounds normalization of nested values
const maxDepth = 32

// Local is one named value in an explicit locals listing
type Local struct {
	Name  string
	Value any
}

// Renderable is implemented by values that list their own locals. Entries are
// applied in order; a later entry replaces an earlier one with the same name.
type Renderable interface {
	RenderLocals() []Local
}

// Bag is a set of named values with names kept in ascending order
type Bag struct {
	names  []string
	values map[string]any
}

// NewBag builds a bag from a name to value map
func NewBag(values map[string]any) Bag {
	b := Bag{values: make(map[string]any, len(values))}
	for name, v := range values {
		b.values[name] = v
	}
	b.sort()
	return b
}

func (b *Bag) sort() {
	b.names = make([]string, 0, len(b.values))
	for name := range b.values {
		b.names = append(b.names, name)
	}
	sort.Strings(b.names)
}

// Names returns the bound names in ascending order
func (b Bag) Names() []string {
	return append([]string(nil), b.names...)
}

// Get returns the value bound to name
func (b Bag) Get(name string) (any, bool) {
	v, ok := b.values[name]
	return v, ok
}

// Len returns the number of bound names
func (b Bag) Len() int {
	return len(b.names)
}

// Map returns a copy of the bag as a map
func (b Bag) Map() map[string]any {
	out := make(map[string]any, len(b.values))
	for name, v := range b.values {
		out[name] = v
	}
	return out
}

// With returns a new bag with locals laid over b
func (b Bag) With(locals ...Local) Bag {
	values := b.Map()
	for _, l := range locals {
		values[l.Name] = l.Value
	}
	return NewBag(values)
}

// RenderLocals lets a bag be passed wherever locals are accepted
func (b Bag) RenderLocals() []Local {
	out := make([]Local, 0, len(b.names))
	for _, name := range b.names {
		out = append(out, Local{Name: name, Value: b.values[name]})
	}
	return out
}

// Flatten maps a structured value into a bag of named parameters.
//
// Renderable values supply their own listing. Maps with string keys use their
// keys. Structs (and pointers to structs) contribute their exported fields and
// methods: embedded structs are walked first so that the outer struct's own
// members win on name clashes. Methods are kept as method values bound to the
// original value. Names that look numeric are dropped. Any other value
// flattens to an empty bag.
func Flatten(value any) Bag {
	values := make(map[string]any)
	collect(value, values)
	for name := range values {
		if numericLike(name) {
			delete(values, name)
		}
	}
	return NewBag(values)
}

func collect(value any, into map[string]any) {
	if value == nil {
		return
	}
	if r, ok := value.(Renderable); ok {
		for _, l := range r.RenderLocals() {
			into[l.Name] = l.Value
		}
		return
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return
		}
		iter := rv.MapRange()
		for iter.Next() {
			into[iter.Key().String()] = iter.Value().Interface()
		}
	case reflect.Ptr:
		if rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
			return
		}
		collectFields(rv.Elem(), into)
		collectMethods(rv, into)
	case reflect.Struct:
		collectFields(rv, into)
		collectMethods(rv, into)
	}
}

func collectFields(rv reflect.Value, into map[string]any) {
	typ := rv.Type()

	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.Anonymous || !field.IsExported() {
			continue
		}
		fv := rv.Field(i)
		if fv.Kind() == reflect.Ptr {
			if fv.IsNil() {
				continue
			}
			fv = fv.Elem()
		}
		if fv.Kind() == reflect.Struct {
			collectFields(fv, into)
		}
	}

	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}
		name, ok := memberName(field)
		if !ok {
			continue
		}
		if field.Anonymous && isStructLike(field.Type) {
			continue
		}
		into[name] = rv.Field(i).Interface()
	}
}

func collectMethods(rv reflect.Value, into map[string]any) {
	typ := rv.Type()
	for i := 0; i < typ.NumMethod(); i++ {
		method := typ.Method(i)
		if !method.IsExported() || method.Name == "RenderLocals" {
			continue
		}
		into[lowerFirst(method.Name)] = rv.Method(i).Interface()
	}
}

// memberName picks the local name for a struct field
func memberName(field reflect.StructField) (string, bool) {
	for _, key := range []string{"render", "json"} {
		tag, ok := field.Tag.Lookup(key)
		if !ok {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		if name == "-" {
			return "", false
		}
		if name != "" {
			return name, true
		}
	}
	return lowerFirst(field.Name), true
}

func isStructLike(t reflect.Type) bool {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}

// numericLike reports names such as "0", "-1" or "+2x"
func numericLike(name string) bool {
	s := strings.TrimLeft(name, " \t")
	if s != "" && (s[0] == '+' || s[0] == '-') {
		s = s[1:]
	}
	return s != "" && s[0] >= '0' && s[0] <= '9'
}

// isCallable reports whether v is a non-nil func value
func isCallable(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Func && !rv.IsNil()
}

// normalize converts v into values the expression evaluator can traverse:
// structs become maps of their locals, sets and pairs become lists, and
// nested funcs are dropped.
func normalize(v any, depth int) any {
	if v == nil || depth > maxDepth {
		return nil
	}

	switch x := v.(type) {
	case string, bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
		float32, float64, []byte, time.Time, time.Duration:
		return v
	case *Set:
		return normalize(x.Items(), depth+1)
	case Pairs:
		out := make([]any, 0, len(x))
		for _, p := range x {
			out = append(out, map[string]any{"key": normalize(p.Key, depth+1), "value": normalize(p.Value, depth+1)})
		}
		return out
	case Renderable:
		return normalizeBag(Flatten(x), depth)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func:
		return nil
	case reflect.Ptr:
		if rv.IsNil() {
			return nil
		}
		return normalize(rv.Elem().Interface(), depth+1)
	case reflect.Struct:
		return normalizeBag(Flatten(v), depth)
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil
		}
		out := make([]any, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out = append(out, normalize(rv.Index(i).Interface(), depth+1))
		}
		return out
	case reflect.Map:
		if rv.IsNil() {
			return nil
		}
		if rv.Type().Key().Kind() == reflect.String {
			out := make(map[string]any, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				if item := iter.Value().Interface(); !isCallable(item) {
					out[iter.Key().String()] = normalize(item, depth+1)
				}
			}
			return out
		}
		out := make(map[any]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().Interface()] = normalize(iter.Value().Interface(), depth+1)
		}
		return out
	}
	return v
}

func normalizeBag(b Bag, depth int) map[string]any {
	out := make(map[string]any, b.Len())
	for _, name := range b.names {
		item := b.values[name]
		if isCallable(item) {
			continue
		}
		out[name] = normalize(item, depth+1)
	}
	return out
}
