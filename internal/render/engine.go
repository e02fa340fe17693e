package render

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/aescanero/dago-node-renderer/internal/eval/cel"
	"github.com/aescanero/dago-node-renderer/internal/store"
	"go.uber.org/zap"
)

// Engine renders template resources found under a root directory.
// An Engine is safe for concurrent use.
type Engine struct {
	root   string
	ext    string
	layout *Ref
	fs     store.FileStore
	cache  *Cache
	logger *zap.Logger
}

type settings struct {
	root    string
	layout  string
	ext     string
	fs      store.FileStore
	cache   *Cache
	logger  *zap.Logger
	noCache bool
}

// Option configures an Engine
type Option func(*settings)

// WithRoot sets the directory resources are resolved against.
// The default is the working directory.
func WithRoot(root string) Option {
	return func(s *settings) { s.root = root }
}

// WithLayout sets the default layout applied to top-level renders
func WithLayout(name string) Option {
	return func(s *settings) { s.layout = name }
}

// WithStore sets the file store resources are read from
func WithStore(fs store.FileStore) Option {
	return func(s *settings) { s.fs = fs }
}

// WithCache shares a cache between engines
func WithCache(c *Cache) Option {
	return func(s *settings) { s.cache = c }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithExtension sets the template file extension (default ".lt")
func WithExtension(ext string) Option {
	return func(s *settings) { s.ext = ext }
}

// WithNoCache disables memoization in the engine's own cache
func WithNoCache(noCache bool) Option {
	return func(s *settings) { s.noCache = noCache }
}

// New creates an engine
func New(opts ...Option) (*Engine, error) {
	s := settings{ext: DefaultExtension}
	for _, opt := range opts {
		opt(&s)
	}

	if s.root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		s.root = wd
	}
	root, err := filepath.Abs(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %s: %w", s.root, err)
	}

	if s.fs == nil {
		s.fs = store.NewOSStore()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.cache == nil {
		s.cache = NewCache(s.fs, s.noCache, s.logger)
	}
	if s.ext == "" {
		s.ext = DefaultExtension
	}

	e := &Engine{
		root:   root,
		ext:    s.ext,
		fs:     s.fs,
		cache:  s.cache,
		logger: s.logger,
	}

	if s.layout != "" {
		ref, err := NewRef(root, s.layout, KindLayout)
		if err != nil {
			return nil, err
		}
		e.layout = &ref
	}

	return e, nil
}

// Root returns the absolute resource root
func (e *Engine) Root() string {
	return e.root
}

// Cache returns the engine's cache
func (e *Engine) Cache() *Cache {
	return e.cache
}

// Render renders the template name as a top-level call. The default layout
// applies unless opts.Layout overrides it. A *RenderFailure returned from
// Render is final: its Trace is set.
func (e *Engine) Render(name string, opts Options) (string, error) {
	trace := &Trace{}
	out, err := e.render(name, opts, false, trace)
	if err != nil {
		return "", e.fail(name, err, trace)
	}
	return out, nil
}

// RenderPartial renders name as a nested call: partial/ is searched first
// and no default layout applies.
func (e *Engine) RenderPartial(name string, opts Options) (string, error) {
	return e.render(name, opts, true, &Trace{})
}

// Raw returns the content of name without evaluating it
func (e *Engine) Raw(name string, keepWhitespace bool) (string, error) {
	return e.raw(name, keepWhitespace, false)
}

// RawPartial is Raw with partial/ searched first
func (e *Engine) RawPartial(name string, keepWhitespace bool) (string, error) {
	return e.raw(name, keepWhitespace, true)
}

func (e *Engine) fail(name string, err error, trace *Trace) error {
	var rf *RenderFailure
	if errors.As(err, &rf) {
		rf.finish(trace)
		e.logger.Error("render failed",
			zap.String("template", name),
			zap.String("stack", rf.Stack()),
			zap.Error(rf.Cause),
		)
		return err
	}
	e.logger.Warn("render rejected",
		zap.String("template", name),
		zap.Error(err),
	)
	return err
}

func (e *Engine) render(name string, opts Options, partial bool, trace *Trace) (string, error) {
	kind := KindTemplate
	if partial {
		kind = KindPartial
	}

	ref, err := NewRef(e.root, name, kind)
	if err != nil {
		return "", err
	}

	var layout *Ref
	if !partial {
		layout = e.layout
	}
	if opts.Layout != "" {
		override, err := NewRef(e.root, opts.Layout, KindLayout)
		if err != nil {
			return "", err
		}
		layout = &override
	}

	path, err := ref.Resolve(e.fs, e.ext, false)
	if err != nil {
		return "", err
	}

	locals := Flatten(opts.Locals)
	e.logger.Debug("rendering template",
		zap.String("path", path),
		zap.Bool("partial", partial),
		zap.Int("locals", locals.Len()),
		zap.Bool("collection", opts.Collection != nil),
	)

	var body string
	if opts.Collection == nil {
		body, err = e.renderUnit(kind, path, locals, opts.KeepWhitespace, trace)
	} else {
		body, err = e.renderCollection(kind, path, Dataset{
			Locals:         locals,
			Collection:     opts.Collection,
			KeyName:        opts.KeyName,
			ValueName:      opts.ValueName,
			Sep:            opts.Sep,
			KeepWhitespace: opts.KeepWhitespace,
		}, trace)
	}
	if err != nil {
		return "", err
	}

	return e.wrap(body, locals, opts.KeepWhitespace, layout, Frame{Kind: kind, Path: path}, trace)
}

// renderUnit evaluates the unit for path against locals once
func (e *Engine) renderUnit(kind Kind, path string, locals Bag, keepWhitespace bool, trace *Trace) (string, error) {
	trace.Enter(kind, path)

	unit, err := e.cache.Unit(path, locals.Names())
	if err != nil {
		return "", e.compileError(kind, path, err)
	}

	out, err := unit.Eval(e.bindings(locals, trace))
	if err != nil {
		return "", e.unitError(kind, path, err)
	}

	return applyWhitespace(out, keepWhitespace), nil
}

func (e *Engine) raw(name string, keepWhitespace, partial bool) (string, error) {
	kind := KindNone
	if partial {
		kind = KindPartial
	}

	ref, err := NewRef(e.root, name, kind)
	if err != nil {
		return "", err
	}
	path, err := ref.Resolve(e.fs, e.ext, true)
	if err != nil {
		return "", err
	}

	text, err := e.cache.Text(path)
	if err != nil {
		return "", err
	}
	return applyWhitespace(text, keepWhitespace), nil
}

// bindings splits locals into values and callables and injects render and
// raw as nested calls sharing trace.
func (e *Engine) bindings(locals Bag, trace *Trace) cel.Bindings {
	b := cel.Bindings{
		Values: make(map[string]any, locals.Len()),
		Funcs:  make(map[string]any),
	}

	for _, name := range locals.names {
		if cel.IsInjected(name) {
			continue
		}
		v := locals.values[name]
		if isCallable(v) {
			b.Funcs[name] = v
			continue
		}
		b.Values[name] = normalize(v, 0)
	}

	b.Render = func(name string, m map[string]any) (string, error) {
		opts, err := OptionsFromMap(m)
		if err != nil {
			return "", err
		}
		return e.render(name, opts, true, trace)
	}
	b.Raw = func(name string, keepWhitespace bool) (string, error) {
		return e.raw(name, keepWhitespace, true)
	}

	return b
}

// unitError turns an evaluation error into the error returned to the caller.
// Failures raised by nested renders get this unit's frame appended; other
// nested errors pass through unchanged. Anything else becomes a new
// *RenderFailure originating here.
func (e *Engine) unitError(kind Kind, path string, err error) error {
	var evalErr *cel.EvalError
	if !errors.As(err, &evalErr) {
		return err
	}

	frame := Frame{Kind: kind, Path: path, Line: evalErr.Line, Column: evalErr.Column}
	if evalErr.Nested {
		if rf, ok := evalErr.Err.(*RenderFailure); ok {
			rf.add(frame)
			return rf
		}
		return evalErr.Err
	}
	return newRenderFailure(evalErr.Err, frame)
}

func applyWhitespace(s string, keep bool) string {
	if keep {
		return s
	}
	return strings.TrimRightFunc(s, unicode.IsSpace)
}
