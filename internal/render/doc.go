// Package render renders text templates stored as files under a root
// directory.
//
// A template is plain text with ${ expr } holes. Expressions see the locals
// passed to the call and can compose other resources through the injected
// functions render and raw:
//
//	engine, err := render.New(
//	    render.WithRoot("/srv/templates"),
//	    render.WithLayout("main"),
//	    render.WithLogger(logger),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	out, err := engine.Render("page", render.Options{
//	    Locals: map[string]interface{}{"title": "Hello"},
//	})
//
// Resources are resolved as root/name.lt. Partials (nested render calls)
// are looked up in root/partial first and layouts in root/layout first, both
// falling back to the root. Names that escape the root fail with a
// *PathSecurityError.
//
// Collections render the resource once per element:
//
//	out, err := engine.Render("row", render.Options{
//	    Collection: []string{"a", "b"},
//	    Sep:        "\n",
//	})
//	// row.lt sees ${index} and ${value}
//
// A layout wraps the result of a top-level render. Layouts call yield() for
// the wrapped body and yield('name') for a local of the wrapped call:
//
//	<title>${yield('title')}</title>${yield()}
//
// Evaluation failures are returned as a *RenderFailure whose Stack lists
// every unit involved, the failing one first.
package render
