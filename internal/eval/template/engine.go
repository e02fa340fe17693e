package template

import (
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/aymerick/raymond"
)

// raymond keeps helpers in a process-wide registry and panics when a name is
// registered twice.
var registerOnce sync.Once

// Engine renders inline Handlebars strings such as result key patterns
type Engine struct {
	cache map[string]*raymond.Template
	mu    sync.RWMutex
}

// NewEngine creates a new template engine
func NewEngine() *Engine {
	registerOnce.Do(registerHelpers)

	return &Engine{
		cache: make(map[string]*raymond.Template),
	}
}

// Render renders source with the given data
func (e *Engine) Render(source string, data interface{}) (string, error) {
	tmpl, err := e.getTemplate(source)
	if err != nil {
		return "", fmt.Errorf("failed to compile template: %w", err)
	}

	result, err := tmpl.Exec(data)
	if err != nil {
		return "", fmt.Errorf("template execution failed: %w", err)
	}

	return result, nil
}

// getTemplate gets a compiled template from cache or compiles it
func (e *Engine) getTemplate(source string) (*raymond.Template, error) {
	// Check cache first (read lock)
	e.mu.RLock()
	if tmpl, ok := e.cache[source]; ok {
		e.mu.RUnlock()
		return tmpl, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Check again in case another goroutine compiled it
	if tmpl, ok := e.cache[source]; ok {
		return tmpl, nil
	}

	tmpl, err := raymond.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	e.cache[source] = tmpl

	return tmpl, nil
}

// Validate parses source without rendering it
func (e *Engine) Validate(source string) error {
	_, err := e.getTemplate(source)
	return err
}

// Len returns the number of compiled templates held
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}

// ClearCache clears the compiled template cache
func (e *Engine) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = make(map[string]*raymond.Template)
}

func registerHelpers() {
	raymond.RegisterHelper("lower", func(str string) string {
		return strings.ToLower(str)
	})

	raymond.RegisterHelper("upper", func(str string) string {
		return strings.ToUpper(str)
	})

	raymond.RegisterHelper("trim", func(str string) string {
		return strings.TrimSpace(str)
	})

	// slug keeps letters and digits and collapses everything else into "-"
	raymond.RegisterHelper("slug", func(str string) string {
		return Slug(str)
	})

	raymond.RegisterHelper("default", func(value interface{}, defaultValue interface{}) interface{} {
		if value == nil || value == "" {
			return defaultValue
		}
		return value
	})

	raymond.RegisterHelper("join", func(arr []interface{}, sep string) string {
		strs := make([]string, len(arr))
		for i, v := range arr {
			strs[i] = fmt.Sprint(v)
		}
		return strings.Join(strs, sep)
	})
}

// Slug lowercases str and replaces each run of characters other than letters
// and digits with a single dash.
func Slug(str string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(str) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
