// Package template renders inline Handlebars strings. The worker uses it to
// name the keys rendered output is stored under.
//
// Example usage:
//
//	engine := template.NewEngine()
//
//	key, err := engine.Render("render:result:{{execution_id}}:{{slug template}}", map[string]interface{}{
//	    "execution_id": "exec-1",
//	    "template":     "emails/Welcome",
//	})
//	// key == "render:result:exec-1:emails-welcome"
//
// Helpers:
//   - lower, upper, trim
//   - slug - lowercase, non-alphanumeric runs become "-"
//   - default - second argument when the first is empty
//   - join - join array elements with a separator
package template
