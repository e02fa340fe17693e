package cel

import "fmt"

// EvalError locates a failure inside a compiled unit
type EvalError struct {
	Path   string
	Line   int
	Column int
	Err    error
	// Nested is set when Err was returned by a Render, Raw or Yield callback
	Nested bool
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %v", e.Path, e.Line, e.Column, e.Err)
}

func (e *EvalError) Unwrap() error {
	return e.Err
}

// UndefinedBindingError reports an expression referencing a name that is not
// bound in the unit.
type UndefinedBindingError struct {
	Name string
}

func (e *UndefinedBindingError) Error() string {
	return fmt.Sprintf("%s is not defined", e.Name)
}
