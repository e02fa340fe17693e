package cel

import (
	"fmt"
	"reflect"

	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Stringify converts an evaluated slot value into output text.
// null renders as the empty string.
func Stringify(val ref.Val) string {
	switch v := val.(type) {
	case types.String:
		return string(v)
	case types.Bytes:
		return string(v)
	case types.Null:
		return ""
	}
	native := ToNative(val)
	if native == nil {
		return ""
	}
	return fmt.Sprint(native)
}

// ToNative converts a CEL value into plain Go values. Lists and maps built by
// CEL expressions become []any and map[string]any; values that wrap native Go
// objects are returned as-is.
func ToNative(val ref.Val) any {
	if val == nil {
		return nil
	}
	if _, ok := val.(types.Null); ok {
		return nil
	}

	native := val.Value()
	switch native.(type) {
	case map[ref.Val]ref.Val, []ref.Val, ref.Val:
	default:
		return native
	}

	switch v := val.(type) {
	case traits.Mapper:
		out := make(map[string]any)
		it := v.Iterator()
		for it.HasNext() == types.True {
			key := it.Next()
			out[fmt.Sprint(ToNative(key))] = ToNative(v.Get(key))
		}
		return out
	case traits.Lister:
		size, _ := v.Size().(types.Int)
		out := make([]any, 0, int(size))
		for i := types.Int(0); i < size; i++ {
			out = append(out, ToNative(v.Get(i)))
		}
		return out
	}
	return native
}

// callNative invokes a Go func value with CEL arguments
func callNative(name string, fn any, args []ref.Val) (result ref.Val) {
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func || rv.IsNil() {
		return types.NewErr("%s is not callable", name)
	}
	typ := rv.Type()

	if typ.IsVariadic() {
		if len(args) < typ.NumIn()-1 {
			return types.NewErr("%s: expected at least %d arguments, got %d", name, typ.NumIn()-1, len(args))
		}
	} else if len(args) != typ.NumIn() {
		return types.NewErr("%s: expected %d arguments, got %d", name, typ.NumIn(), len(args))
	}

	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		paramType := paramAt(typ, i)
		if paramType.Kind() == reflect.Interface && paramType.NumMethod() == 0 {
			if native := ToNative(arg); native != nil {
				in[i] = reflect.ValueOf(native)
			} else {
				in[i] = reflect.Zero(paramType)
			}
			continue
		}
		native, err := arg.ConvertToNative(paramType)
		if err != nil {
			return types.NewErr("%s: argument %d: %v", name, i, err)
		}
		if native == nil {
			in[i] = reflect.Zero(paramType)
			continue
		}
		in[i] = reflect.ValueOf(native)
	}

	defer func() {
		if r := recover(); r != nil {
			result = types.NewErr("%s panicked: %v", name, r)
		}
	}()

	out := rv.Call(in)
	if n := len(out); n > 0 && typ.Out(n-1).Implements(errorType) {
		if err, _ := out[n-1].Interface().(error); err != nil {
			return types.NewErr("%s: %v", name, err)
		}
		out = out[:n-1]
	}
	if len(out) == 0 {
		return types.NullValue
	}
	return types.DefaultTypeAdapter.NativeToValue(out[0].Interface())
}

func paramAt(typ reflect.Type, i int) reflect.Type {
	if typ.IsVariadic() && i >= typ.NumIn()-1 {
		return typ.In(typ.NumIn() - 1).Elem()
	}
	return typ.In(i)
}
