package render

import (
	"fmt"
	"strings"

	"github.com/aescanero/dago-node-renderer/internal/eval/cel"
)

// UndefinedBindingError is the cause of a RenderFailure raised by a template
// referencing a name it was not given.
type UndefinedBindingError = cel.UndefinedBindingError

// PathSecurityError reports a resource name that escapes the root directory
type PathSecurityError struct {
	Root string
	Name string
}

func (e *PathSecurityError) Error() string {
	return fmt.Sprintf("attempt to load template (%s) which falls outside of root (%s)", e.Name, e.Root)
}

// ResourceNotFoundError reports that no candidate file exists for a reference
type ResourceNotFoundError struct {
	Name  string
	Kind  Kind
	Tried []string
}

func (e *ResourceNotFoundError) Error() string {
	return fmt.Sprintf("no template found: %s", e.Name)
}

// ArgumentTypeError reports a render option of the wrong type
type ArgumentTypeError struct {
	Option string
	Value  any
}

func (e *ArgumentTypeError) Error() string {
	switch e.Option {
	case "keyName", "valueName":
		return fmt.Sprintf("keyName and valueName must be strings (%s is %T)", e.Option, e.Value)
	}
	return fmt.Sprintf("invalid value for %s: %T", e.Option, e.Value)
}

// UnsupportedCollectionError reports a collection value that cannot be iterated
type UnsupportedCollectionError struct {
	Type string
}

func (e *UnsupportedCollectionError) Error() string {
	return fmt.Sprintf("don't know how to render with collection of type %s", e.Type)
}

// Frame locates one unit in a failure's diagnostic stack.
// Line is zero when the unit failed outside of an expression slot.
type Frame struct {
	Kind   Kind
	Path   string
	Line   int
	Column int
}

func (f Frame) String() string {
	if f.Line == 0 {
		return fmt.Sprintf("    (rendering %s)", f.Path)
	}
	label := "Template"
	if f.Kind == KindLayout {
		label = "Layout"
	}
	return fmt.Sprintf("    at %s (%s:%d:%d)", label, f.Path, f.Line, f.Column)
}

// RenderFailure is raised when evaluating a unit fails. Nested renders append
// their frame to the same failure as it travels outwards, so Frames lists the
// innermost unit first.
type RenderFailure struct {
	Cause  error
	Frames []Frame
	// Trace holds the units entered by the failed call, outermost first.
	// It is set when the top-level call returns.
	Trace []TraceEntry

	final bool
}

func newRenderFailure(cause error, origin Frame) *RenderFailure {
	return &RenderFailure{Cause: cause, Frames: []Frame{origin}}
}

func (f *RenderFailure) Error() string {
	return "Render failed: " + f.Cause.Error()
}

func (f *RenderFailure) Unwrap() error {
	return f.Cause
}

// Final reports whether a top-level call has finished the failure
func (f *RenderFailure) Final() bool {
	return f.final
}

// Stack formats the cause followed by one line per frame, innermost first
func (f *RenderFailure) Stack() string {
	lines := make([]string, 0, len(f.Frames)+1)
	lines = append(lines, f.Cause.Error())
	for _, frame := range f.Frames {
		lines = append(lines, frame.String())
	}
	return strings.Join(lines, "\n")
}

// Origin returns the innermost frame
func (f *RenderFailure) Origin() Frame {
	if len(f.Frames) == 0 {
		return Frame{}
	}
	return f.Frames[0]
}

// add appends an enclosing frame unless it is the origin itself. Repeated
// frames from recursive renders are kept.
func (f *RenderFailure) add(frame Frame) {
	if frame == f.Origin() {
		return
	}
	f.Frames = append(f.Frames, frame)
}

func (f *RenderFailure) finish(trace *Trace) {
	if f.final {
		return
	}
	f.Trace = trace.Entries()
	f.final = true
}
