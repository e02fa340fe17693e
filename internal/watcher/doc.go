// Package watcher drops cached templates when their files change.
//
// A Watcher follows the template root recursively (directories created later
// are picked up as they appear) and calls Invalidate for each changed path
// once per debounce window:
//
//	w, err := watcher.New(cfg.TemplateRoot, engine.Cache(), cfg.WatchDebounce, logger)
//	if err != nil {
//	    return err
//	}
//	go w.Run(ctx)
package watcher
