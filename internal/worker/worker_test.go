package worker

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/aescanero/dago-node-renderer/internal/config"
	"github.com/aescanero/dago-node-renderer/internal/job"
	"github.com/aescanero/dago-node-renderer/internal/render"
	"github.com/aescanero/dago-node-renderer/internal/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type testEnv struct {
	worker *Worker
	mr     *miniredis.Miniredis
	client *redis.Client
	engine *render.Engine
	files  *store.AferoStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	fs := afero.NewMemMapFs()
	for name, content := range map[string]string{
		"greet.lt":     "Hello ${name}!",
		"broken.lt":    "line1\n${missing}",
		"state.lt":     "${state.graph_id}",
		"snippet.html": "<b>${raw}</b>",
	} {
		require.NoError(t, afero.WriteFile(fs, filepath.Join("/tpl", name), []byte(content), 0o644))
	}
	files := store.New(fs)

	logger := zaptest.NewLogger(t)
	engine, err := render.New(render.WithRoot("/tpl"), render.WithStore(files), render.WithLogger(logger))
	require.NoError(t, err)

	states := NewRedisStateStore(client, "", logger)
	runner := job.NewRunner(engine, states, files, logger)

	cfg := &config.Config{
		WorkerID:          "renderer-test",
		StreamKey:         "renderer.work",
		ConsumerGroup:     "renderer-workers",
		ResultStream:      "renderer.rendered",
		BlockTime:         50 * time.Millisecond,
		ResultKeyTemplate: "render:result:{{execution_id}}:{{node_id}}",
		ResultTTL:         time.Hour,
	}

	w := NewWorker(cfg, client, runner, logger)
	require.NoError(t, w.ensureConsumerGroup())

	return &testEnv{worker: w, mr: mr, client: client, engine: engine, files: files}
}

func message(t *testing.T, id string, request map[string]interface{}) redis.XMessage {
	t.Helper()
	data, err := json.Marshal(request)
	require.NoError(t, err)
	return redis.XMessage{ID: id, Values: map[string]interface{}{"data": string(data)}}
}

func lastEvent(t *testing.T, client *redis.Client, stream string) map[string]interface{} {
	t.Helper()
	messages, err := client.XRange(context.Background(), stream, "-", "+").Result()
	require.NoError(t, err)
	require.NotEmpty(t, messages)

	var event map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(messages[len(messages)-1].Values["data"].(string)), &event))
	return event
}

func TestHandleMessageRender(t *testing.T) {
	env := newTestEnv(t)

	env.worker.handleMessage(message(t, "1-0", map[string]interface{}{
		"execution_id": "exec-1",
		"node_id":      "greeting",
		"config": map[string]interface{}{
			"template": "greet",
			"locals":   map[string]interface{}{"name": "Ada"},
		},
	}))

	key := "render:result:exec-1:greeting"
	stored, err := env.mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada!", stored)
	assert.Equal(t, time.Hour, env.mr.TTL(key))

	event := lastEvent(t, env.client, "renderer.rendered")
	assert.Equal(t, "exec-1", event["execution_id"])
	assert.Equal(t, "greeting", event["node_id"])
	assert.Equal(t, "render", event["mode"])
	assert.Equal(t, "greet", event["template"])
	assert.Equal(t, key, event["result_key"])
	assert.Equal(t, "Hello Ada!", event["output"])
}

func TestHandleMessageCollectionOrder(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, afero.WriteFile(env.files.Fs(), "/tpl/row.lt", []byte("${key}:${value}"), 0o644))

	env.worker.handleMessage(redis.XMessage{ID: "1-0", Values: map[string]interface{}{
		"data": `{"execution_id":"exec-7","node_id":"rows","config":{"template":"row","collection":{"z":1,"a":2},"sep":" "}}`,
	}})

	stored, err := env.mr.Get("render:result:exec-7:rows")
	require.NoError(t, err)
	assert.Equal(t, "z:1 a:2", stored)
}

func TestHandleMessageRaw(t *testing.T) {
	env := newTestEnv(t)

	env.worker.handleMessage(message(t, "1-0", map[string]interface{}{
		"execution_id": "exec-2",
		"node_id":      "snippet",
		"config":       map[string]interface{}{"raw": "snippet.html"},
	}))

	stored, err := env.mr.Get("render:result:exec-2:snippet")
	require.NoError(t, err)
	assert.Equal(t, "<b>${raw}</b>", stored)
}

func TestHandleMessageUseState(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.mr.Set("graph:state:exec-3", `{"graph_id":"exec-3"}`))

	env.worker.handleMessage(message(t, "1-0", map[string]interface{}{
		"execution_id": "exec-3",
		"node_id":      "n",
		"config":       map[string]interface{}{"template": "state", "use_state": true},
	}))

	stored, err := env.mr.Get("render:result:exec-3:n")
	require.NoError(t, err)
	assert.Equal(t, "exec-3", stored)
}

func TestHandleMessageRenderFailure(t *testing.T) {
	env := newTestEnv(t)

	env.worker.handleMessage(message(t, "1-0", map[string]interface{}{
		"execution_id": "exec-4",
		"node_id":      "n",
		"config":       map[string]interface{}{"template": "broken"},
	}))

	assert.False(t, env.mr.Exists("render:result:exec-4:n"))

	event := lastEvent(t, env.client, "renderer.rendered.errors")
	assert.Equal(t, "exec-4", event["execution_id"])
	assert.Equal(t, "render_failure", event["kind"])
	assert.Equal(t, "Render failed: missing is not defined", event["error"])
	assert.Contains(t, event["stack"], "at Template (/tpl/broken.lt:2:")
}

func TestHandleMessageErrorKinds(t *testing.T) {
	testCases := []struct {
		name   string
		config map[string]interface{}
		kind   string
	}{
		{name: "escape", config: map[string]interface{}{"template": "../etc/passwd"}, kind: "path_security"},
		{name: "missing", config: map[string]interface{}{"template": "nope"}, kind: "resource_not_found"},
		{name: "collection", config: map[string]interface{}{"template": "greet", "collection": 5}, kind: "unsupported_collection"},
		{name: "invalid", config: map[string]interface{}{"mode": "stream"}, kind: "internal"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.worker.handleMessage(message(t, "1-0", map[string]interface{}{
				"execution_id": "exec-5",
				"node_id":      "n",
				"config":       tc.config,
			}))

			event := lastEvent(t, env.client, "renderer.rendered.errors")
			assert.Equal(t, tc.kind, event["kind"])
			_, hasStack := event["stack"]
			assert.False(t, hasStack)
		})
	}
}

func TestParseWorkRequest(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.worker.parseWorkRequest(map[string]interface{}{"data": 5})
	assert.EqualError(t, err, "missing or invalid 'data' field")

	_, err = env.worker.parseWorkRequest(map[string]interface{}{"data": "{"})
	assert.ErrorContains(t, err, "failed to unmarshal work request")

	_, err = env.worker.parseWorkRequest(map[string]interface{}{"data": `{"node_id":"n"}`})
	assert.EqualError(t, err, "work request missing execution_id")

	// A malformed message is acknowledged without publishing anything
	env.worker.handleMessage(redis.XMessage{ID: "1-0", Values: map[string]interface{}{"data": 5}})
	assert.False(t, env.mr.Exists("renderer.rendered.errors"))
}

func TestWorkerLoop(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.worker.Start())

	data, err := json.Marshal(map[string]interface{}{
		"execution_id": "exec-6",
		"node_id":      "loop",
		"config":       map[string]interface{}{"template": "greet", "locals": map[string]interface{}{"name": "loop"}},
	})
	require.NoError(t, err)
	require.NoError(t, env.client.XAdd(context.Background(), &redis.XAddArgs{
		Stream: "renderer.work",
		Values: map[string]interface{}{"data": string(data)},
	}).Err())

	assert.Eventually(t, func() bool {
		return env.mr.Exists("render:result:exec-6:loop")
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, env.worker.Stop())
}

func TestStartRejectsBadKeyTemplate(t *testing.T) {
	env := newTestEnv(t)
	env.worker.config.ResultKeyTemplate = "{{#if}}"

	assert.ErrorContains(t, env.worker.Start(), "invalid result key template")
}
