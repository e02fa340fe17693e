package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aescanero/dago-libs/pkg/domain/state"
	"github.com/aescanero/dago-libs/pkg/ports"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultStateKeyPrefix is where the orchestrator stores graph state
const DefaultStateKeyPrefix = "graph:state:"

// RedisStateStore implements ports.StateStorage on plain Redis string keys
// holding JSON documents
type RedisStateStore struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

var _ ports.StateStorage = (*RedisStateStore)(nil)

// NewRedisStateStore creates a new Redis state store. An empty prefix selects
// DefaultStateKeyPrefix.
func NewRedisStateStore(client *redis.Client, prefix string, logger *zap.Logger) *RedisStateStore {
	if prefix == "" {
		prefix = DefaultStateKeyPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStateStore{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

func (s *RedisStateStore) key(executionID string) string {
	return s.prefix + executionID
}

// Save saves graph state
func (s *RedisStateStore) Save(ctx context.Context, executionID string, st state.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := s.client.Set(ctx, s.key(executionID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}

	return nil
}

// Load loads graph state
func (s *RedisStateStore) Load(ctx context.Context, executionID string) (state.State, error) {
	data, err := s.client.Get(ctx, s.key(executionID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("state not found for execution %s", executionID)
		}
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	var st state.State
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	s.logger.Debug("loaded graph state",
		zap.String("execution_id", executionID),
		zap.Int("fields", len(st)),
	)

	return st, nil
}

// Delete deletes graph state
func (s *RedisStateStore) Delete(ctx context.Context, executionID string) error {
	if err := s.client.Del(ctx, s.key(executionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete state: %w", err)
	}
	return nil
}

// Exists checks if state exists for an execution
func (s *RedisStateStore) Exists(ctx context.Context, executionID string) (bool, error) {
	result, err := s.client.Exists(ctx, s.key(executionID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	return result > 0, nil
}

// SetTTL sets a time-to-live for state data
func (s *RedisStateStore) SetTTL(ctx context.Context, executionID string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, s.key(executionID), ttl).Err(); err != nil {
		return fmt.Errorf("failed to set TTL: %w", err)
	}
	return nil
}

// List returns all execution IDs that have stored state
func (s *RedisStateStore) List(ctx context.Context) ([]string, error) {
	var executionIDs []string

	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if id := strings.TrimPrefix(iter.Val(), s.prefix); id != "" {
			executionIDs = append(executionIDs, id)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}

	return executionIDs, nil
}

// SaveState persists graph state keyed by its graph_id or execution_id field
func (s *RedisStateStore) SaveState(ctx context.Context, st interface{}) error {
	stateMap, ok := st.(map[string]interface{})
	if !ok {
		if typed, isState := st.(state.State); isState {
			stateMap = typed
		} else {
			return fmt.Errorf("expected map[string]interface{}, got %T", st)
		}
	}

	executionID, ok := stateMap["graph_id"].(string)
	if !ok {
		executionID, ok = stateMap["execution_id"].(string)
		if !ok {
			return fmt.Errorf("state missing graph_id or execution_id field")
		}
	}

	return s.Save(ctx, executionID, state.State(stateMap))
}

// GetState retrieves graph state
func (s *RedisStateStore) GetState(ctx context.Context, graphID string) (interface{}, error) {
	return s.Load(ctx, graphID)
}
