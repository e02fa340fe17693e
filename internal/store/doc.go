// Package store provides the read-only file store the render engine reads
// template resources from.
//
// The store is backed by an afero filesystem so the same engine can read from
// disk in production and from memory in tests.
//
// Example usage:
//
//	files := store.NewOSStore()
//	if files.Exists("/srv/templates/index.lt") {
//	    text, err := files.ReadFile("/srv/templates/index.lt")
//	    ...
//	}
//
//	mem := afero.NewMemMapFs()
//	_ = afero.WriteFile(mem, "/t/index.lt", []byte("${name}"), 0o644)
//	files = store.New(mem)
package store
