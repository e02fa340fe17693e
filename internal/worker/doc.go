// Package worker implements the renderer worker lifecycle and Redis Streams integration.
//
// The worker consumes render jobs from a Redis Stream, runs them against the
// template engine, stores each output under a key rendered from
// RESULT_KEY_TEMPLATE and publishes a result event for the orchestrator.
//
// Example usage:
//
//	cfg, _ := config.Load()
//	redisClient := redis.NewClient(&redis.Options{...})
//	runner := job.NewRunner(engine, worker.NewRedisStateStore(redisClient, cfg.StateKeyPrefix, logger), files, logger)
//
//	w := worker.NewWorker(cfg, redisClient, runner, logger)
//	if err := w.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
//
// Failed jobs never stop the worker: the failure is published to
// RESULT_STREAM + ".errors" with its kind and, for render failures, the
// template stack, and the message is acknowledged.
//
// Health checks are provided via a separate HTTP server:
//
//	healthServer := worker.NewHealthServer(8083, redisClient, files, cfg.TemplateRoot, engine.Cache(), logger)
//	healthServer.Start()
//	defer healthServer.Stop()
package worker
