// Package job executes render jobs received by the worker.
//
// A job renders a template or reads a raw resource:
//
//	config := &Config{
//	    Template:   "emails/welcome",
//	    Locals:     map[string]interface{}{"name": "Ada"},
//	    DataFile:   "data/site.yaml",
//	    UseState:   true,
//	}
//	result, err := runner.Run(ctx, executionID, config)
//
// Locals are merged from the data file, then the graph state (its inputs at
// the top level plus the whole state as ${state.*}), then the configured
// locals; later sources win.
//
// A raw job returns the content verbatim:
//
//	config := &Config{Raw: "snippets/banner.txt"}
//
// The mode is detected when it is not set: a job naming raw and no template
// is a raw job, anything else renders.
package job
