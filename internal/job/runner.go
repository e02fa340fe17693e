package job

import (
	"context"
	"fmt"

	"github.com/aescanero/dago-libs/pkg/domain/state"
	"github.com/aescanero/dago-node-renderer/internal/render"
	"github.com/aescanero/dago-node-renderer/internal/store"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Renderer renders and reads template resources
type Renderer interface {
	Root() string
	Render(name string, opts render.Options) (string, error)
	RenderPartial(name string, opts render.Options) (string, error)
	Raw(name string, keepWhitespace bool) (string, error)
	RawPartial(name string, keepWhitespace bool) (string, error)
}

// StateLoader loads graph execution state
type StateLoader interface {
	Load(ctx context.Context, executionID string) (state.State, error)
}

// Runner executes render jobs
type Runner struct {
	renderer Renderer
	states   StateLoader
	files    store.FileStore
	logger   *zap.Logger
}

// NewRunner creates a new runner. states may be nil when no job uses
// use_state.
func NewRunner(renderer Renderer, states StateLoader, files store.FileStore, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		renderer: renderer,
		states:   states,
		files:    files,
		logger:   logger,
	}
}

// Run executes one job for the given execution
func (r *Runner) Run(ctx context.Context, executionID string, config *Config) (*Result, error) {
	if config == nil {
		return nil, fmt.Errorf("invalid config: config is nil")
	}

	// Detect mode if not specified
	if config.Mode == "" {
		config.Mode = detectMode(config)
	}
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	r.logger.Info("running render job",
		zap.String("execution_id", executionID),
		zap.String("mode", string(config.Mode)),
		zap.String("template", config.Resource()),
		zap.Bool("partial", config.Partial),
	)

	var output string
	var err error

	switch config.Mode {
	case ModeRaw:
		if config.Partial {
			output, err = r.renderer.RawPartial(config.Raw, config.KeepWhitespace)
		} else {
			output, err = r.renderer.Raw(config.Raw, config.KeepWhitespace)
		}
	case ModeRender:
		output, err = r.render(ctx, executionID, config)
	}
	if err != nil {
		return nil, err
	}

	r.logger.Debug("render job finished",
		zap.String("execution_id", executionID),
		zap.Int("output_bytes", len(output)),
	)

	return &Result{
		Mode:     config.Mode,
		Resource: config.Resource(),
		Output:   output,
	}, nil
}

func (r *Runner) render(ctx context.Context, executionID string, config *Config) (string, error) {
	locals, err := r.buildLocals(ctx, executionID, config)
	if err != nil {
		return "", err
	}

	opts := render.Options{
		Locals:         locals,
		Collection:     config.Collection,
		KeyName:        config.KeyName,
		ValueName:      config.ValueName,
		KeepWhitespace: config.KeepWhitespace,
		Layout:         config.Layout,
		Sep:            config.Sep,
	}

	if config.Partial {
		return r.renderer.RenderPartial(config.Template, opts)
	}
	return r.renderer.Render(config.Template, opts)
}

// buildLocals merges the data file, the execution state and the configured
// locals, in increasing order of precedence
func (r *Runner) buildLocals(ctx context.Context, executionID string, config *Config) (map[string]interface{}, error) {
	locals := make(map[string]interface{})

	if config.DataFile != "" {
		data, err := r.loadDataFile(config.DataFile)
		if err != nil {
			return nil, err
		}
		for k, v := range data {
			locals[k] = v
		}
	}

	if config.UseState {
		if r.states == nil {
			return nil, fmt.Errorf("use_state requires a state store")
		}

		stateData, err := r.states.Load(ctx, executionID)
		if err != nil {
			return nil, fmt.Errorf("failed to load state: %w", err)
		}

		graphState, err := convertToGraphState(executionID, stateData)
		if err != nil {
			return nil, fmt.Errorf("failed to convert state: %w", err)
		}

		for _, input := range render.Flatten(graphState.Inputs).RenderLocals() {
			locals[input.Name] = input.Value
		}
		locals["state"] = stateLocals(graphState)
	}

	for k, v := range config.Locals {
		locals[k] = v
	}

	return locals, nil
}

// loadDataFile reads a YAML (or JSON) mapping from a file under the root
func (r *Runner) loadDataFile(name string) (map[string]interface{}, error) {
	ref, err := render.NewRef(r.renderer.Root(), name, render.KindNone)
	if err != nil {
		return nil, err
	}
	path, err := ref.Resolve(r.files, "", true)
	if err != nil {
		return nil, err
	}

	text, err := r.files.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read data file: %w", err)
	}

	var data map[string]interface{}
	if err := yaml.Unmarshal([]byte(text), &data); err != nil {
		return nil, fmt.Errorf("failed to parse data file %s: %w", name, err)
	}

	return data, nil
}
