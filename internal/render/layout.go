package render

import (
	"errors"

	"github.com/aescanero/dago-node-renderer/internal/eval/cel"
)

// wrap renders body inside the layout referenced by layout. ownerKind and
// ownerPath identify the unit whose output is being wrapped.
//
// The layout asks for values through yield: yield() returns body and
// yield('x') returns local x, or "" when x is missing or nil.
func (e *Engine) wrap(body string, locals Bag, keepWhitespace bool, layout *Ref, owner Frame, trace *Trace) (string, error) {
	if layout == nil {
		return body, nil
	}

	path, err := layout.Resolve(e.fs, e.ext, false)
	if err != nil {
		return "", err
	}

	trace.Enter(KindLayout, path)
	unit, err := e.cache.Layout(path)
	if err != nil {
		return "", e.withOwner(e.compileError(KindLayout, path, err), owner)
	}

	b := e.bindings(Bag{}, trace)
	b.Yield = func(name string, named bool) (any, error) {
		if !named {
			return body, nil
		}
		v, ok := locals.Get(name)
		if !ok || v == nil {
			return "", nil
		}
		return normalize(v, 0), nil
	}

	out, err := unit.Eval(b)
	if err != nil {
		return "", e.withOwner(e.unitError(KindLayout, path, err), owner)
	}

	return applyWhitespace(out, keepWhitespace), nil
}

// withOwner records the wrapped unit on a failure raised by its layout
func (e *Engine) withOwner(err error, owner Frame) error {
	var rf *RenderFailure
	if errors.As(err, &rf) {
		rf.add(owner)
	}
	return err
}

// compileError promotes template syntax errors to render failures
func (e *Engine) compileError(kind Kind, path string, err error) error {
	var se *cel.SyntaxError
	if errors.As(err, &se) {
		return newRenderFailure(se, Frame{Kind: kind, Path: path, Line: se.Line, Column: se.Column})
	}
	return err
}
