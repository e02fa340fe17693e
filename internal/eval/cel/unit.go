package cel

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/interpreter/functions"
)

// Names of the functions injected into every unit
const (
	RenderFunc = "render"
	RawFunc    = "raw"
	YieldFunc  = "yield"
)

// maxCallableArity bounds the overloads declared for callable locals
const maxCallableArity = 4

// Mode selects which injected bindings a unit is compiled with
type Mode int

const (
	// ModeTemplate units see their parameters plus render and raw
	ModeTemplate Mode = iota
	// ModeLayout units see render, raw and yield only
	ModeLayout
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// reservedWords cannot be declared as CEL identifiers
var reservedWords = map[string]bool{
	"as": true, "break": true, "const": true, "continue": true, "else": true,
	"false": true, "for": true, "function": true, "if": true, "import": true,
	"in": true, "let": true, "loop": true, "package": true, "namespace": true,
	"null": true, "return": true, "true": true, "var": true, "void": true,
	"while": true,
}

// builtinFuncs are standard CEL functions and macros; parameters with these
// names stay plain variables and are never callable.
var builtinFuncs = map[string]bool{
	"all": true, "bool": true, "bytes": true, "contains": true, "double": true,
	"duration": true, "dyn": true, "endsWith": true, "exists": true,
	"exists_one": true, "filter": true, "getDate": true, "getDayOfMonth": true,
	"getDayOfWeek": true, "getDayOfYear": true, "getFullYear": true,
	"getHours": true, "getMilliseconds": true, "getMinutes": true,
	"getMonth": true, "getSeconds": true, "has": true, "int": true, "map": true,
	"matches": true, "size": true, "startsWith": true, "string": true,
	"timestamp": true, "type": true, "uint": true,
}

// IsInjected reports whether name is reserved for an injected binding
func IsInjected(name string) bool {
	return name == RenderFunc || name == RawFunc || name == YieldFunc
}

// Bindings supplies the values and callbacks a unit is evaluated against
type Bindings struct {
	// Values holds the non-callable parameters
	Values map[string]any
	// Funcs holds callable parameters (any Go func value)
	Funcs map[string]any

	Render func(name string, opts map[string]any) (string, error)
	Raw    func(name string, keepWhitespace bool) (string, error)
	// Yield is only consulted by layout units. named is false for a body request.
	Yield func(name string, named bool) (any, error)
}

type position struct {
	line, col int
}

type slot struct {
	Segment
	ast *cel.Ast
	// prg is planned at compile time for slots that never call back into the
	// engine; other slots are planned per evaluation with that call's bindings.
	prg cel.Program
	// undeclared maps names the checker could not resolve to their first
	// position. Such slots hold the unchecked AST and fail only if the name is
	// reached.
	undeclared map[string]position
	err        error
}

// Unit is a compiled template: literal segments interleaved with type-checked
// expression slots. A Unit is immutable once compiled.
type Unit struct {
	path     string
	mode     Mode
	params   []string
	callable map[string]bool
	// dynamic holds the overload ids whose implementation is bound per call
	dynamic map[string]bool
	env     *cel.Env
	slots   []slot
}

// Compile parses text and type-checks every expression against params.
//
// Expressions whose only issues are undeclared names keep their unchecked
// AST; the failure surfaces as an *EvalError if evaluation reaches the name.
func Compile(path, text string, params []string, mode Mode) (*Unit, error) {
	segments, err := Parse(text)
	if err != nil {
		if se, ok := err.(*SyntaxError); ok {
			se.Path = path
		}
		return nil, err
	}

	u := &Unit{
		path:     path,
		mode:     mode,
		params:   append([]string(nil), params...),
		callable: make(map[string]bool),
		dynamic:  make(map[string]bool),
	}

	env, err := u.newEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	u.env = env

	for _, seg := range segments {
		s := slot{Segment: seg}
		if seg.IsExpr {
			u.compileSlot(&s)
		}
		u.slots = append(u.slots, s)
	}

	return u, nil
}

func (u *Unit) compileSlot(s *slot) {
	ast, issues := u.env.Compile(s.Expr)
	if issues == nil || issues.Err() == nil {
		s.ast = ast
		if u.callsBack(ast) {
			return
		}
		prg, err := u.env.Program(ast)
		if err != nil {
			s.err = u.slotError(*s, fmt.Errorf("program generation error: %w", err))
			return
		}
		s.prg = prg
		return
	}

	undeclared, ok := u.undeclaredRefs(s.Segment, issues)
	if !ok {
		s.err = u.issueError(s.Segment, issues)
		return
	}

	// Unresolved names are only an error when evaluation reaches them
	parsed, parseIssues := u.env.Parse(s.Expr)
	if parseIssues != nil && parseIssues.Err() != nil {
		s.err = u.issueError(s.Segment, parseIssues)
		return
	}
	s.ast = parsed
	s.undeclared = undeclared
}

// callsBack reports whether a checked AST calls render, raw, yield or a
// callable local
func (u *Unit) callsBack(ast *cel.Ast) bool {
	for _, info := range ast.NativeRep().ReferenceMap() {
		for _, id := range info.OverloadIDs {
			if u.dynamic[id] {
				return true
			}
		}
	}
	return false
}

// undeclaredRefs collects the names of undeclared references. ok is false
// when any issue is of another kind.
func (u *Unit) undeclaredRefs(seg Segment, issues *cel.Issues) (map[string]position, bool) {
	refs := make(map[string]position)
	for _, e := range issues.Errors() {
		name, ok := undeclaredName(e.Message)
		if !ok {
			return nil, false
		}
		if _, seen := refs[name]; !seen {
			line, col := u.position(seg, e.Location.Line(), e.Location.Column())
			refs[name] = position{line: line, col: col}
		}
	}
	return refs, len(refs) > 0
}

// Path returns the resource path the unit was compiled from
func (u *Unit) Path() string {
	return u.path
}

// Params returns the parameter names the unit was compiled with
func (u *Unit) Params() []string {
	return append([]string(nil), u.params...)
}

func (u *Unit) newEnv() (*cel.Env, error) {
	opts := []cel.EnvOption{
		cel.Function(RenderFunc,
			cel.Overload("render_string", []*cel.Type{cel.StringType}, cel.StringType),
			cel.Overload("render_string_map",
				[]*cel.Type{cel.StringType, cel.MapType(cel.StringType, cel.DynType)}, cel.StringType),
		),
		cel.Function(RawFunc,
			cel.Overload("raw_string", []*cel.Type{cel.StringType}, cel.StringType),
			cel.Overload("raw_string_bool", []*cel.Type{cel.StringType, cel.BoolType}, cel.StringType),
		),
	}

	for _, id := range []string{"render_string", "render_string_map", "raw_string", "raw_string_bool"} {
		u.dynamic[id] = true
	}

	if u.mode == ModeLayout {
		u.dynamic["yield_body"] = true
		u.dynamic["yield_string"] = true
		opts = append(opts, cel.Function(YieldFunc,
			cel.Overload("yield_body", []*cel.Type{}, cel.DynType),
			cel.Overload("yield_string", []*cel.Type{cel.StringType}, cel.DynType),
		))
	}

	for _, name := range u.params {
		if IsInjected(name) || reservedWords[name] || !identPattern.MatchString(name) {
			continue
		}
		opts = append(opts, cel.Variable(name, cel.DynType))
		if builtinFuncs[name] {
			continue
		}
		opts = append(opts, cel.Function(name, callableOverloads(name)...))
		u.callable[name] = true
		for n := 0; n <= maxCallableArity; n++ {
			u.dynamic[callableOverloadID(name, n)] = true
		}
	}

	return cel.NewEnv(opts...)
}

func callableOverloads(name string) []cel.FunctionOpt {
	overloads := make([]cel.FunctionOpt, 0, maxCallableArity+1)
	for n := 0; n <= maxCallableArity; n++ {
		args := make([]*cel.Type, n)
		for i := range args {
			args[i] = cel.DynType
		}
		overloads = append(overloads,
			cel.Overload(callableOverloadID(name, n), args, cel.DynType))
	}
	return overloads
}

func callableOverloadID(name string, arity int) string {
	return fmt.Sprintf("local_%s_%d", name, arity)
}

// issueError converts CEL check issues into a positioned error
func (u *Unit) issueError(seg Segment, issues *cel.Issues) error {
	for _, e := range issues.Errors() {
		line, col := u.position(seg, e.Location.Line(), e.Location.Column())
		if name, ok := undeclaredName(e.Message); ok {
			return &EvalError{Path: u.path, Line: line, Column: col, Err: &UndefinedBindingError{Name: name}}
		}
		return &EvalError{Path: u.path, Line: line, Column: col, Err: fmt.Errorf("%s", e.Message)}
	}
	return &EvalError{Path: u.path, Line: seg.Line, Column: seg.Column, Err: issues.Err()}
}

// position maps a location inside an expression to a template position.
// CEL lines are 1-based and columns 0-based.
func (u *Unit) position(seg Segment, line, col int) (int, int) {
	if line <= 1 {
		return seg.Line, seg.Column + col
	}
	return seg.Line + line - 1, col + 1
}

func undeclaredName(msg string) (string, bool) {
	const prefix = "undeclared reference to '"
	idx := strings.Index(msg, prefix)
	if idx < 0 {
		return "", false
	}
	rest := msg[idx+len(prefix):]
	end := strings.IndexByte(rest, '\'')
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}

// Eval evaluates the unit against b and concatenates the results.
//
// Any failure is returned as an *EvalError carrying the position of the
// failing slot; errors returned by the Render, Raw and Yield callbacks are
// kept unchanged as its Err. A name with no binding fails with an
// *UndefinedBindingError only when evaluation reaches it.
func (u *Unit) Eval(b Bindings) (string, error) {
	var (
		out       strings.Builder
		callErr   error
		undefined string
		overloads []*functions.Overload
	)

	activation := b.Values
	if activation == nil {
		activation = map[string]any{}
	}

	for _, s := range u.slots {
		if !s.IsExpr {
			out.WriteString(s.Literal)
			continue
		}
		if s.err != nil {
			return "", s.err
		}

		prg := s.prg
		if prg == nil {
			if overloads == nil {
				overloads = u.overloads(b, &callErr)
			}
			funcs := overloads
			if len(s.undeclared) > 0 {
				funcs = append(append([]*functions.Overload(nil), overloads...), undefinedOverloads(s, &undefined)...)
			}

			var err error
			prg, err = u.env.Program(s.ast, cel.Functions(funcs...))
			if err != nil {
				return "", u.slotError(s, fmt.Errorf("program generation error: %w", err))
			}
		}

		val, _, err := prg.Eval(activation)
		if callErr != nil {
			return "", &EvalError{Path: u.path, Line: s.Line, Column: s.Column, Err: callErr, Nested: true}
		}
		if undefined != "" {
			return "", u.undefinedError(s, undefined)
		}
		if err != nil {
			if name, ok := s.missingAttribute(err); ok {
				return "", u.undefinedError(s, name)
			}
			return "", u.slotError(s, err)
		}
		out.WriteString(Stringify(val))
	}

	return out.String(), nil
}

func (u *Unit) undefinedError(s slot, name string) error {
	pos, ok := s.undeclared[name]
	if !ok {
		pos = position{line: s.Line, col: s.Column}
	}
	return &EvalError{Path: u.path, Line: pos.line, Column: pos.col, Err: &UndefinedBindingError{Name: name}}
}

// missingAttribute maps a runtime "no such attribute" failure to the
// undeclared name it resolved
func (s slot) missingAttribute(err error) (string, bool) {
	const prefix = "no such attribute(s): "
	msg := err.Error()
	idx := strings.Index(msg, prefix)
	if idx < 0 || len(s.undeclared) == 0 {
		return "", false
	}
	for _, candidate := range strings.Split(msg[idx+len(prefix):], ", ") {
		name, _, _ := strings.Cut(candidate, ".")
		if _, ok := s.undeclared[name]; ok {
			return name, true
		}
	}
	return "", false
}

// undefinedOverloads makes calls to undeclared names fail when reached
func undefinedOverloads(s slot, undefined *string) []*functions.Overload {
	result := make([]*functions.Overload, 0, len(s.undeclared))
	for name := range s.undeclared {
		fnName := name
		result = append(result, overload(fnName, func(args ...ref.Val) ref.Val {
			if *undefined == "" {
				*undefined = fnName
			}
			return types.NewErr("%s is not defined", fnName)
		}))
	}
	return result
}

func (u *Unit) slotError(s slot, err error) error {
	return &EvalError{Path: u.path, Line: s.Line, Column: s.Column, Err: err}
}

// overloads binds the injected functions and callable parameters for one
// evaluation. The first callback error is recorded in callErr so it can be
// returned unchanged instead of as a CEL error string.
func (u *Unit) overloads(b Bindings, callErr *error) []*functions.Overload {
	fail := func(err error) ref.Val {
		if *callErr == nil {
			*callErr = err
		}
		return types.NewErr("%v", err)
	}

	result := []*functions.Overload{
		overload(RenderFunc, func(args ...ref.Val) ref.Val {
			if b.Render == nil {
				return fail(fmt.Errorf("%s is not available", RenderFunc))
			}
			name, ok := args[0].(types.String)
			if !ok {
				return noSuchOverload(RenderFunc, args[0])
			}
			var opts map[string]any
			if len(args) > 1 {
				if opts, ok = ToNative(args[1]).(map[string]any); !ok {
					return noSuchOverload(RenderFunc, args[1])
				}
			}
			text, err := b.Render(string(name), opts)
			if err != nil {
				return fail(err)
			}
			return types.String(text)
		}),
		overload(RawFunc, func(args ...ref.Val) ref.Val {
			if b.Raw == nil {
				return fail(fmt.Errorf("%s is not available", RawFunc))
			}
			name, ok := args[0].(types.String)
			if !ok {
				return noSuchOverload(RawFunc, args[0])
			}
			keep := len(args) > 1 && args[1] == types.True
			text, err := b.Raw(string(name), keep)
			if err != nil {
				return fail(err)
			}
			return types.String(text)
		}),
	}

	if u.mode == ModeLayout {
		result = append(result, overload(YieldFunc, func(args ...ref.Val) ref.Val {
			if b.Yield == nil {
				return fail(fmt.Errorf("%s is not available", YieldFunc))
			}
			name, named := "", false
			if len(args) > 0 {
				s, ok := args[0].(types.String)
				if !ok {
					return noSuchOverload(YieldFunc, args[0])
				}
				name, named = string(s), true
			}
			v, err := b.Yield(name, named)
			if err != nil {
				return fail(err)
			}
			return types.DefaultTypeAdapter.NativeToValue(v)
		}))
	}

	for name := range u.callable {
		fn, ok := b.Funcs[name]
		if !ok {
			continue
		}
		fnName, target := name, fn
		result = append(result, overload(fnName, func(args ...ref.Val) ref.Val {
			return callNative(fnName, target, args)
		}))
	}

	return result
}

// overload registers fn by function name for every arity
func overload(name string, fn functions.FunctionOp) *functions.Overload {
	return &functions.Overload{
		Operator: name,
		Unary:    func(v ref.Val) ref.Val { return fn(v) },
		Binary:   func(lhs, rhs ref.Val) ref.Val { return fn(lhs, rhs) },
		Function: fn,
	}
}

func noSuchOverload(fn string, arg ref.Val) ref.Val {
	return types.NewErr("no such overload: %s(%s)", fn, arg.Type().TypeName())
}
