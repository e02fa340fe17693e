// Package cel compiles template text into units whose expression holes are
// evaluated with CEL (Common Expression Language).
//
// Template text is literal output with ${ expr } holes. Each hole is
// type-checked once, at compile time, against the parameter names the unit is
// compiled for; referencing any other name yields an UndefinedBindingError
// only if evaluation reaches the reference, so ${flag ? extra : ''} is fine
// while flag is false.
//
// Example usage:
//
//	unit, err := cel.Compile("/t/greet.lt", "Hello ${name}!", []string{"name"}, cel.ModeTemplate)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	out, err := unit.Eval(cel.Bindings{
//	    Values: map[string]interface{}{"name": "World"},
//	})
//	// out == "Hello World!"
//
// Every unit can call the injected functions:
//   - render(name) / render(name, {'locals': {...}, 'sep': ','}) - nested render
//   - raw(name) / raw(name, keepWhitespace) - literal resource content
//   - yield() / yield('title') - layouts only: the wrapped body or a named local
//
// Parameters whose values are Go funcs are callable by name:
//
//	${shout('hi')} // calls Bindings.Funcs["shout"]
//
// Supported expression operations are those of CEL:
//   - Comparisons: ==, !=, <, <=, >, >=
//   - Boolean logic and the conditional operator: &&, ||, !, ?:
//   - String operations: contains, startsWith, endsWith, matches, +
//   - Map and list access: user.name, user["name"], items[0], size(items)
package cel
