package render

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRenderLocals(t *testing.T) {
	engine := newTestEngine(t, map[string]string{"t.lt": "${key}${val}${constant}\n"})

	out, err := engine.Render("t", Options{Locals: map[string]any{"key": 1, "val": 2, "constant": 3}})
	require.NoError(t, err)
	assert.Equal(t, "123", out)
}

func TestRenderWhitespace(t *testing.T) {
	engine := newTestEngine(t, map[string]string{"t.lt": "  x  \n\n"})

	out, err := engine.Render("t", Options{})
	require.NoError(t, err)
	assert.Equal(t, "  x", out)

	out, err = engine.Render("t", Options{KeepWhitespace: true})
	require.NoError(t, err)
	assert.Equal(t, "  x  \n\n", out)
}

func TestRenderCollectionSequence(t *testing.T) {
	engine := newTestEngine(t, map[string]string{"t.lt": "${key}${val}${constant}"})
	opts := Options{
		Locals:     map[string]any{"constant": 3},
		Collection: []string{"A", "B", "C"},
		KeyName:    "key",
		ValueName:  "val",
	}

	out, err := engine.Render("t", opts)
	require.NoError(t, err)
	assert.Equal(t, "0A31B32C3", out)

	opts.Sep = "x"
	out, err = engine.Render("t", opts)
	require.NoError(t, err)
	assert.Equal(t, "0A3x1B3x2C3", out)
}

func TestRenderCollectionShapes(t *testing.T) {
	testCases := []struct {
		name       string
		template   string
		collection any
		expected   string
	}{
		{name: "keyed mapping", template: "${key}${value}", collection: map[string]int{"b": 2, "a": 1}, expected: "a1b2"},
		{name: "pairs keep insertion order", template: "${key}${value}", collection: Pairs{{Key: "b", Value: 2}, {Key: "a", Value: 1}}, expected: "b2a1"},
		{name: "set", template: "${index}${value}", collection: NewSet("x", "y", "x"), expected: "0x1y"},
		{name: "array", template: "${index}${value}", collection: [2]string{"p", "q"}, expected: "0p1q"},
		{name: "struct fields", template: "${key}=${value};", collection: struct{ A, B int }{A: 1, B: 2}, expected: "a=1;b=2;"},
		{name: "empty sequence", template: "${value}", collection: []string{}, expected: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			engine := newTestEngine(t, map[string]string{"t.lt": tc.template})
			out, err := engine.Render("t", Options{Collection: tc.collection})
			require.NoError(t, err)
			assert.Equal(t, tc.expected, out)
		})
	}
}

func TestRenderCollectionUnsupported(t *testing.T) {
	engine := newTestEngine(t, map[string]string{"t.lt": "${value}"})

	for _, collection := range []any{42, "text", map[string]int{}, struct{}{}} {
		_, err := engine.Render("t", Options{Collection: collection})
		var unsupported *UnsupportedCollectionError
		require.True(t, errors.As(err, &unsupported), "%T", collection)
		assert.NotEmpty(t, unsupported.Type)
	}

	_, err := engine.Render("t", Options{Collection: map[string]int{}})
	assert.EqualError(t, err, "don't know how to render with collection of type map[string]int")
}

func TestNestedCollectionOptions(t *testing.T) {
	engine := newTestEngine(t, map[string]string{
		"list.lt":        "${render('row', {'collection': items, 'sep': ','})}",
		"partial/row.lt": "${index}:${value}",
		"bad.lt":         "${render('row', {'collection': items, 'keyName': 1})}",
		"plain.lt":       "${render('row', {'locals': {'index': 7, 'value': 'x'}, 'keyName': 1})}",
	})

	out, err := engine.Render("list", Options{Locals: map[string]any{"items": []string{"a", "b"}}})
	require.NoError(t, err)
	assert.Equal(t, "0:a,1:b", out)

	_, err = engine.Render("bad", Options{Locals: map[string]any{"items": []string{"a"}}})
	var argErr *ArgumentTypeError
	require.True(t, errors.As(err, &argErr))
	assert.Equal(t, OptKeyName, argErr.Option)
	var rf *RenderFailure
	assert.False(t, errors.As(err, &rf), "argument errors keep their kind")

	out, err = engine.Render("plain", Options{})
	require.NoError(t, err)
	assert.Equal(t, "7:x", out)
}

func TestRawIsNotEvaluated(t *testing.T) {
	engine := newTestEngine(t, map[string]string{
		"raw.lt":           "${key}\n\n",
		"plain.txt":        "plain ${text}",
		"outer.lt":         "<${render('inner')}>",
		"partial/inner.lt": "${raw('raw')}",
	})

	out, err := engine.Raw("raw", false)
	require.NoError(t, err)
	assert.Equal(t, "${key}", out)

	out, err = engine.Raw("raw", true)
	require.NoError(t, err)
	assert.Equal(t, "${key}\n\n", out)

	out, err = engine.Raw("plain.txt", false)
	require.NoError(t, err)
	assert.Equal(t, "plain ${text}", out)

	out, err = engine.Render("outer", Options{Locals: map[string]any{"key": "evaluated"}})
	require.NoError(t, err)
	assert.Equal(t, "<${key}>", out)
}

func TestRawPartial(t *testing.T) {
	engine := newTestEngine(t, map[string]string{
		"snippet":         "root",
		"partial/snippet": "partial",
	})

	out, err := engine.RawPartial("snippet", false)
	require.NoError(t, err)
	assert.Equal(t, "partial", out)

	out, err = engine.Raw("snippet", false)
	require.NoError(t, err)
	assert.Equal(t, "root", out)
}

func TestPathSecurity(t *testing.T) {
	engine := newTestEngine(t, map[string]string{"t.lt": "x", "layout/main.lt": "${yield()}"})

	calls := map[string]func() error{
		"render": func() error {
			_, err := engine.Render("../etc/passwd", Options{})
			return err
		},
		"render with collection": func() error {
			_, err := engine.Render("../t", Options{Collection: []int{1}})
			return err
		},
		"render with layout": func() error {
			_, err := engine.Render("../../t", Options{Layout: "main"})
			return err
		},
		"layout override": func() error {
			_, err := engine.Render("t", Options{Layout: "../main"})
			return err
		},
		"partial": func() error {
			_, err := engine.RenderPartial("../t", Options{})
			return err
		},
		"raw": func() error {
			_, err := engine.Raw("../t", false)
			return err
		},
	}

	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			var secErr *PathSecurityError
			assert.True(t, errors.As(call(), &secErr))
		})
	}
}

func TestNewRejectsEscapingLayout(t *testing.T) {
	_, err := New(WithRoot(testRoot), WithLayout("../main"))
	var secErr *PathSecurityError
	assert.True(t, errors.As(err, &secErr))
}

func TestRenderNotFound(t *testing.T) {
	engine := newTestEngine(t, map[string]string{"t.lt": "${render('missing')}"})

	_, err := engine.Render("missing", Options{})
	var notFound *ResourceNotFoundError
	require.True(t, errors.As(err, &notFound))

	_, err = engine.Render("t", Options{})
	require.True(t, errors.As(err, &notFound), "nested not-found errors keep their kind")
	assert.Equal(t, "missing", notFound.Name)
}

func TestRenderReusesCompiledUnit(t *testing.T) {
	engine := newTestEngine(t, map[string]string{"t.lt": "${a}"})

	out, err := engine.Render("t", Options{Locals: map[string]any{"a": 1}})
	require.NoError(t, err)
	assert.Equal(t, "1", out)
	before := engine.Cache().Stats()

	out, err = engine.Render("t", Options{Locals: map[string]any{"a": 2}})
	require.NoError(t, err)
	assert.Equal(t, "2", out)
	after := engine.Cache().Stats()

	assert.Equal(t, before.Compiles, after.Compiles)
	assert.Equal(t, before.Reads, after.Reads)
	assert.Equal(t, before.Hits+1, after.Hits)
}

func TestRenderNoCache(t *testing.T) {
	engine := newTestEngine(t, map[string]string{"t.lt": "${a}"}, WithNoCache(true))

	for i := 0; i < 3; i++ {
		_, err := engine.Render("t", Options{Locals: map[string]any{"a": i}})
		require.NoError(t, err)
	}

	stats := engine.Cache().Stats()
	assert.Equal(t, uint64(3), stats.Compiles)
	assert.Equal(t, uint64(3), stats.Reads)
}

func TestRenderUndefinedBinding(t *testing.T) {
	engine := newTestEngine(t, map[string]string{"t.lt": "line1\n  ${missing}"}, WithLogger(zaptest.NewLogger(t)))

	_, err := engine.Render("t", Options{Locals: map[string]any{"present": 1}})

	var rf *RenderFailure
	require.True(t, errors.As(err, &rf))
	assert.Equal(t, "Render failed: missing is not defined", rf.Error())
	assert.Equal(t, []Frame{{Kind: KindTemplate, Path: "/tpl/t.lt", Line: 2, Column: 5}}, rf.Frames)
	assert.Equal(t, "missing is not defined\n    at Template (/tpl/t.lt:2:5)", rf.Stack())
	assert.True(t, rf.Final())
	assert.Equal(t, []TraceEntry{{Kind: KindTemplate, Path: "/tpl/t.lt"}}, rf.Trace)

	var undefined *UndefinedBindingError
	require.True(t, errors.As(err, &undefined))
	assert.Equal(t, "missing", undefined.Name)
}

func TestRecursivePartialKeepsEveryFrame(t *testing.T) {
	engine := newTestEngine(t, map[string]string{
		"t.lt":         "${render('r', {'locals': {'depth': 2}})}",
		"partial/r.lt": "${depth > 0 ? render('r', {'locals': {'depth': depth - 1}}) : nope}",
	})

	_, err := engine.Render("t", Options{})

	var rf *RenderFailure
	require.True(t, errors.As(err, &rf))
	assert.Equal(t, "Render failed: nope is not defined", rf.Error())
	assert.Equal(t, []Frame{
		{Kind: KindPartial, Path: "/tpl/partial/r.lt", Line: 1, Column: 63},
		{Kind: KindPartial, Path: "/tpl/partial/r.lt", Line: 1, Column: 3},
		{Kind: KindPartial, Path: "/tpl/partial/r.lt", Line: 1, Column: 3},
		{Kind: KindTemplate, Path: "/tpl/t.lt", Line: 1, Column: 3},
	}, rf.Frames)
}

func TestUndefinedBindingInUntakenBranch(t *testing.T) {
	engine := newTestEngine(t, map[string]string{"t.lt": "${flag ? missing : 'ok'}"})

	out, err := engine.Render("t", Options{Locals: map[string]any{"flag": false}})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	_, err = engine.Render("t", Options{Locals: map[string]any{"flag": true}})
	var rf *RenderFailure
	require.True(t, errors.As(err, &rf))
	assert.Equal(t, "Render failed: missing is not defined", rf.Error())
	assert.Equal(t, []Frame{{Kind: KindTemplate, Path: "/tpl/t.lt", Line: 1, Column: 10}}, rf.Frames)
}

func TestRenderFailureThroughPartial(t *testing.T) {
	engine := newTestEngine(t, map[string]string{
		"outer.lt":         "a\n  ${render('inner')}",
		"partial/inner.lt": "${nope}",
	})

	_, err := engine.Render("outer", Options{})

	var rf *RenderFailure
	require.True(t, errors.As(err, &rf))
	assert.Equal(t, []Frame{
		{Kind: KindPartial, Path: "/tpl/partial/inner.lt", Line: 1, Column: 3},
		{Kind: KindTemplate, Path: "/tpl/outer.lt", Line: 2, Column: 5},
	}, rf.Frames)

	lines := strings.Split(rf.Stack(), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "nope is not defined", lines[0])
	assert.Contains(t, lines[1], "/tpl/partial/inner.lt:1:3")
	assert.Contains(t, lines[2], "/tpl/outer.lt:2:5")

	assert.Equal(t, []TraceEntry{
		{Kind: KindTemplate, Path: "/tpl/outer.lt"},
		{Kind: KindPartial, Path: "/tpl/partial/inner.lt"},
	}, rf.Trace)
}

func TestRenderFailureThroughLayout(t *testing.T) {
	engine := newTestEngine(t, map[string]string{
		"t.lt":              "body",
		"layout/main.lt":    "<${yield('title')}>${yield()}${render('footer')}",
		"partial/footer.lt": "${oops}",
	}, WithLayout("main"))

	_, err := engine.Render("t", Options{})

	var rf *RenderFailure
	require.True(t, errors.As(err, &rf))
	assert.Equal(t, []Frame{
		{Kind: KindPartial, Path: "/tpl/partial/footer.lt", Line: 1, Column: 3},
		{Kind: KindLayout, Path: "/tpl/layout/main.lt", Line: 1, Column: 32},
		{Kind: KindTemplate, Path: "/tpl/t.lt"},
	}, rf.Frames)
	assert.Contains(t, rf.Stack(), "    at Layout (/tpl/layout/main.lt:1:32)")
	assert.Contains(t, rf.Stack(), "    (rendering /tpl/t.lt)")
}

func TestLayoutReferencingLocalDirectly(t *testing.T) {
	engine := newTestEngine(t, map[string]string{
		"t.lt":           "body",
		"layout/main.lt": "${title}",
	}, WithLayout("main"))

	_, err := engine.Render("t", Options{Locals: map[string]any{"title": "T"}})

	var rf *RenderFailure
	require.True(t, errors.As(err, &rf))
	assert.Equal(t, KindLayout, rf.Origin().Kind)
	assert.Equal(t, "Render failed: title is not defined", rf.Error())
}

func TestSyntaxErrorIsRenderFailure(t *testing.T) {
	engine := newTestEngine(t, map[string]string{"t.lt": "ok ${oops"})

	_, err := engine.Render("t", Options{})

	var rf *RenderFailure
	require.True(t, errors.As(err, &rf))
	assert.Equal(t, Frame{Kind: KindTemplate, Path: "/tpl/t.lt", Line: 1, Column: 4}, rf.Origin())
}

func TestLayout(t *testing.T) {
	files := map[string]string{
		"t.lt":           "body\n",
		"row.lt":         "${value}",
		"layout/main.lt": "<${yield('title')}>${yield()}</>\n",
		"alt.lt":         "[${yield()}]",
		"partial/p.lt":   "partial",
	}

	t.Run("missing local renders empty", func(t *testing.T) {
		engine := newTestEngine(t, files, WithLayout("main"))
		out, err := engine.Render("t", Options{})
		require.NoError(t, err)
		assert.Equal(t, "<>body</>", out)
	})

	t.Run("named local", func(t *testing.T) {
		engine := newTestEngine(t, files, WithLayout("main"))
		out, err := engine.Render("t", Options{Locals: map[string]any{"title": "T"}})
		require.NoError(t, err)
		assert.Equal(t, "<T>body</>", out)
	})

	t.Run("nil local renders empty", func(t *testing.T) {
		engine := newTestEngine(t, files, WithLayout("main"))
		out, err := engine.Render("t", Options{Locals: map[string]any{"title": nil}})
		require.NoError(t, err)
		assert.Equal(t, "<>body</>", out)
	})

	t.Run("wraps the joined collection once", func(t *testing.T) {
		engine := newTestEngine(t, files, WithLayout("alt"))
		out, err := engine.Render("row", Options{Collection: []string{"a", "b"}, Sep: ","})
		require.NoError(t, err)
		assert.Equal(t, "[a,b]", out)
	})

	t.Run("partials skip the default layout", func(t *testing.T) {
		engine := newTestEngine(t, files, WithLayout("main"))
		out, err := engine.RenderPartial("p", Options{})
		require.NoError(t, err)
		assert.Equal(t, "partial", out)
	})

	t.Run("per call override", func(t *testing.T) {
		engine := newTestEngine(t, files, WithLayout("main"))
		out, err := engine.Render("t", Options{Layout: "alt"})
		require.NoError(t, err)
		assert.Equal(t, "[body]", out)
	})

	t.Run("layout can render partials", func(t *testing.T) {
		engine := newTestEngine(t, map[string]string{
			"t.lt":           "body",
			"layout/main.lt": "${render('p')}|${yield()}",
			"partial/p.lt":   "header",
		}, WithLayout("main"))
		out, err := engine.Render("t", Options{})
		require.NoError(t, err)
		assert.Equal(t, "header|body", out)
	})
}

func TestInjectedRenderWins(t *testing.T) {
	engine := newTestEngine(t, map[string]string{
		"t.lt":             "${render('inner')}",
		"partial/inner.lt": "inner",
	})

	out, err := engine.Render("t", Options{Locals: map[string]any{"render": "shadow", "raw": 1}})
	require.NoError(t, err)
	assert.Equal(t, "inner", out)
}

type greeter struct {
	Name string
}

func (g greeter) Greet(prefix string) string {
	return prefix + " " + g.Name
}

func TestRenderCallableLocals(t *testing.T) {
	engine := newTestEngine(t, map[string]string{"t.lt": "${greet('hi')}, ${name}"})

	out, err := engine.Render("t", Options{Locals: greeter{Name: "ada"}})
	require.NoError(t, err)
	assert.Equal(t, "hi ada, ada", out)
}

func TestRenderNestedStructLocals(t *testing.T) {
	type user struct {
		Name  string `json:"name"`
		Roles []string
	}
	engine := newTestEngine(t, map[string]string{"t.lt": "${user.name}:${size(user.roles)}"})

	out, err := engine.Render("t", Options{Locals: map[string]any{"user": &user{Name: "ada", Roles: []string{"a", "b"}}}})
	require.NoError(t, err)
	assert.Equal(t, "ada:2", out)
}

func TestRenderPartialLookup(t *testing.T) {
	engine := newTestEngine(t, map[string]string{
		"shared.lt":         "root ${value}",
		"partial/scoped.lt": "scoped",
		"page.lt":           "${render('shared', {'locals': {'value': 1}})}|${render('scoped')}",
	})

	out, err := engine.Render("page", Options{})
	require.NoError(t, err)
	assert.Equal(t, "root 1|scoped", out)
}
