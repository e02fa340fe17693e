// Package config loads the renderer worker configuration from environment
// variables.
//
// Template settings:
//   - TEMPLATE_ROOT - directory templates are resolved against (default: working directory)
//   - TEMPLATE_LAYOUT - default layout for top-level renders
//   - TEMPLATE_EXT - template file extension (default: .lt)
//   - DEBUG - disable the template caches
//   - WATCH, WATCH_DEBOUNCE - invalidate cached templates when files change
//
// Worker settings follow the other dago nodes: WORKER_ID, REDIS_ADDR,
// REDIS_PASS, REDIS_DB, STREAM_KEY, CONSUMER_GROUP, RESULT_STREAM, BLOCK_TIME,
// HEALTH_PORT and LOG_LEVEL. Rendered output is stored under the key rendered
// from RESULT_KEY_TEMPLATE (Handlebars) and expires after RESULT_TTL.
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.String())
package config
