package render

import (
	"path/filepath"
	"testing"

	"github.com/aescanero/dago-node-renderer/internal/store"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const testRoot = "/tpl"

func newTestFs(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, filepath.Join(testRoot, name), []byte(content), 0o644))
	}
	return fs
}

func newTestEngine(t *testing.T, files map[string]string, opts ...Option) *Engine {
	t.Helper()
	fs := newTestFs(t, files)
	base := []Option{WithRoot(testRoot), WithStore(store.New(fs))}
	engine, err := New(append(base, opts...)...)
	require.NoError(t, err)
	return engine
}
