package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aescanero/dago-node-renderer/internal/config"
	"github.com/aescanero/dago-node-renderer/internal/eval/template"
	"github.com/aescanero/dago-node-renderer/internal/job"
	"github.com/aescanero/dago-node-renderer/internal/render"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Worker represents the renderer worker
type Worker struct {
	id            string
	config        *config.Config
	redisClient   *redis.Client
	runner        *job.Runner
	keys          *template.Engine
	logger        *zap.Logger
	ctx           context.Context
	cancel        context.CancelFunc
	done          chan struct{}
	streamKey     string
	consumerGroup string
	resultStream  string
}

// NewWorker creates a new worker
func NewWorker(
	cfg *config.Config,
	redisClient *redis.Client,
	runner *job.Runner,
	logger *zap.Logger,
) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	return &Worker{
		id:            cfg.WorkerID,
		config:        cfg,
		redisClient:   redisClient,
		runner:        runner,
		keys:          template.NewEngine(),
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
		streamKey:     cfg.StreamKey,
		consumerGroup: cfg.ConsumerGroup,
		resultStream:  cfg.ResultStream,
	}
}

// Start starts the worker
func (w *Worker) Start() error {
	w.logger.Info("starting renderer worker",
		zap.String("worker_id", w.id),
		zap.String("stream_key", w.streamKey),
		zap.String("consumer_group", w.consumerGroup),
	)

	if err := w.keys.Validate(w.config.ResultKeyTemplate); err != nil {
		return fmt.Errorf("invalid result key template: %w", err)
	}

	// Create consumer group if it doesn't exist
	if err := w.ensureConsumerGroup(); err != nil {
		return fmt.Errorf("failed to ensure consumer group: %w", err)
	}

	// Start processing work
	go w.processWork()

	w.logger.Info("renderer worker started", zap.String("worker_id", w.id))
	return nil
}

// Stop stops the worker gracefully
func (w *Worker) Stop() error {
	w.logger.Info("stopping renderer worker", zap.String("worker_id", w.id))

	// Cancel context to stop work processing
	w.cancel()

	// Wait a bit for in-flight work to complete
	select {
	case <-w.done:
	case <-time.After(2 * time.Second):
		w.logger.Warn("in-flight work did not finish in time", zap.String("worker_id", w.id))
	}

	w.logger.Info("renderer worker stopped", zap.String("worker_id", w.id))
	return nil
}

// ensureConsumerGroup creates the consumer group if it doesn't exist
func (w *Worker) ensureConsumerGroup() error {
	err := w.redisClient.XGroupCreateMkStream(w.ctx, w.streamKey, w.consumerGroup, "0").Err()
	if err != nil {
		// BUSYGROUP error means the group already exists, which is fine
		if err.Error() == "BUSYGROUP Consumer Group name already exists" {
			w.logger.Debug("consumer group already exists",
				zap.String("group", w.consumerGroup),
			)
			return nil
		}
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	w.logger.Info("created consumer group",
		zap.String("group", w.consumerGroup),
		zap.String("stream", w.streamKey),
	)
	return nil
}

// processWork processes work from the Redis stream
func (w *Worker) processWork() {
	defer close(w.done)
	w.logger.Info("starting work processing loop")

	for {
		select {
		case <-w.ctx.Done():
			w.logger.Info("work processing loop stopped")
			return
		default:
			streams, err := w.redisClient.XReadGroup(w.ctx, &redis.XReadGroupArgs{
				Group:    w.consumerGroup,
				Consumer: w.id,
				Streams:  []string{w.streamKey, ">"},
				Count:    1,
				Block:    w.config.BlockTime,
			}).Result()

			if err != nil {
				if err == redis.Nil || w.ctx.Err() != nil {
					// No messages available, or shutting down
					continue
				}
				w.logger.Error("failed to read from stream",
					zap.Error(err),
				)
				time.Sleep(time.Second)
				continue
			}

			for _, stream := range streams {
				for _, message := range stream.Messages {
					w.handleMessage(message)
				}
			}
		}
	}
}

// handleMessage handles a single render request message
func (w *Worker) handleMessage(message redis.XMessage) {
	messageID := message.ID
	w.logger.Info("processing render request",
		zap.String("message_id", messageID),
	)

	workRequest, err := w.parseWorkRequest(message.Values)
	if err != nil {
		w.logger.Error("failed to parse work request",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
		w.acknowledgeMessage(messageID)
		return
	}

	if err := w.processRenderRequest(workRequest); err != nil {
		w.logger.Error("failed to process render request",
			zap.String("message_id", messageID),
			zap.String("execution_id", workRequest.ExecutionID),
			zap.Error(err),
		)
		w.publishError(workRequest, err)
	}

	w.acknowledgeMessage(messageID)
}

// WorkRequest represents a render work request
type WorkRequest struct {
	ExecutionID string          `json:"execution_id"`
	NodeID      string          `json:"node_id"`
	Config      json.RawMessage `json:"config"`
}

// parseWorkRequest parses a work request from Redis message
func (w *Worker) parseWorkRequest(values map[string]interface{}) (*WorkRequest, error) {
	dataStr, ok := values["data"].(string)
	if !ok {
		return nil, fmt.Errorf("missing or invalid 'data' field")
	}

	var request WorkRequest
	if err := json.Unmarshal([]byte(dataStr), &request); err != nil {
		return nil, fmt.Errorf("failed to unmarshal work request: %w", err)
	}

	if request.ExecutionID == "" {
		return nil, fmt.Errorf("work request missing execution_id")
	}

	return &request, nil
}

// processRenderRequest runs the job and publishes its output
func (w *Worker) processRenderRequest(request *WorkRequest) error {
	ctx := w.ctx
	started := time.Now()

	jobConfig, err := w.parseJobConfig(request.Config)
	if err != nil {
		return fmt.Errorf("failed to parse node config: %w", err)
	}

	result, err := w.runner.Run(ctx, request.ExecutionID, jobConfig)
	if err != nil {
		return err
	}

	key, err := w.resultKey(request, result)
	if err != nil {
		return err
	}

	if err := w.redisClient.Set(ctx, key, result.Output, w.config.ResultTTL).Err(); err != nil {
		return fmt.Errorf("failed to store output: %w", err)
	}

	if err := w.publishResult(request, result, key, time.Since(started)); err != nil {
		return fmt.Errorf("failed to publish result: %w", err)
	}

	return nil
}

// parseJobConfig parses the node configuration into job.Config. The raw
// document is decoded directly so object collections keep their key order.
func (w *Worker) parseJobConfig(raw json.RawMessage) (*job.Config, error) {
	var jobConfig job.Config
	if len(raw) == 0 || string(raw) == "null" {
		return &jobConfig, nil
	}
	if err := json.Unmarshal(raw, &jobConfig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &jobConfig, nil
}

// resultKey renders the key the output is stored under
func (w *Worker) resultKey(request *WorkRequest, result *job.Result) (string, error) {
	key, err := w.keys.Render(w.config.ResultKeyTemplate, map[string]interface{}{
		"execution_id": request.ExecutionID,
		"node_id":      request.NodeID,
		"template":     result.Resource,
		"mode":         string(result.Mode),
		"worker_id":    w.id,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render result key: %w", err)
	}
	if key == "" {
		return "", fmt.Errorf("result key template rendered an empty key")
	}
	return key, nil
}

// publishResult publishes the rendered output
func (w *Worker) publishResult(request *WorkRequest, result *job.Result, key string, elapsed time.Duration) error {
	event := map[string]interface{}{
		"execution_id": request.ExecutionID,
		"node_id":      request.NodeID,
		"mode":         result.Mode,
		"template":     result.Resource,
		"result_key":   key,
		"output":       result.Output,
		"duration_ms":  elapsed.Milliseconds(),
		"timestamp":    time.Now().UTC(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	_, err = w.redisClient.XAdd(w.ctx, &redis.XAddArgs{
		Stream: w.resultStream,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()

	if err != nil {
		return fmt.Errorf("failed to publish to stream: %w", err)
	}

	w.logger.Info("published render result",
		zap.String("execution_id", request.ExecutionID),
		zap.String("template", result.Resource),
		zap.String("result_key", key),
	)

	return nil
}

// errorKind names the failure class reported in error events
func errorKind(err error) string {
	var (
		rf          *render.RenderFailure
		security    *render.PathSecurityError
		notFound    *render.ResourceNotFoundError
		argument    *render.ArgumentTypeError
		unsupported *render.UnsupportedCollectionError
	)
	switch {
	case errors.As(err, &rf):
		return "render_failure"
	case errors.As(err, &security):
		return "path_security"
	case errors.As(err, &notFound):
		return "resource_not_found"
	case errors.As(err, &argument):
		return "argument_type"
	case errors.As(err, &unsupported):
		return "unsupported_collection"
	default:
		return "internal"
	}
}

// publishError publishes an error event
func (w *Worker) publishError(request *WorkRequest, err error) {
	errorEvent := map[string]interface{}{
		"execution_id": request.ExecutionID,
		"node_id":      request.NodeID,
		"error":        err.Error(),
		"kind":         errorKind(err),
		"timestamp":    time.Now().UTC(),
	}

	var rf *render.RenderFailure
	if errors.As(err, &rf) {
		errorEvent["stack"] = rf.Stack()
	}

	data, marshalErr := json.Marshal(errorEvent)
	if marshalErr != nil {
		w.logger.Error("failed to marshal error event", zap.Error(marshalErr))
		return
	}

	// Publish error to a separate stream
	_, publishErr := w.redisClient.XAdd(w.ctx, &redis.XAddArgs{
		Stream: w.resultStream + ".errors",
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()

	if publishErr != nil {
		w.logger.Error("failed to publish error event", zap.Error(publishErr))
	}
}

// acknowledgeMessage acknowledges a message from the stream
func (w *Worker) acknowledgeMessage(messageID string) {
	err := w.redisClient.XAck(w.ctx, w.streamKey, w.consumerGroup, messageID).Err()
	if err != nil {
		w.logger.Error("failed to acknowledge message",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
	}
}
