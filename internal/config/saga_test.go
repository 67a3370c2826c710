package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeSagaFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "saga.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestNewSagaConfigHolderFromFile(t *testing.T) {
	path := writeSagaFile(t, `
saga:
  retry:
    maxAttempts: 5
    baseDelay: 250ms
  deletion:
    mode: FOLDER
    concurrency: 2
`)

	holder, err := NewSagaConfigHolderFromFile(path, zap.NewNop())
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, DeleteModeFolder, cfg.Deletion.Mode)
	assert.Equal(t, 2, cfg.Deletion.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Metadata.CacheTTL)
}

func TestNewSagaConfigHolderFromFile_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "zero attempts", body: "saga:\n  retry:\n    maxAttempts: 0\n"},
		{name: "unknown mode", body: "saga:\n  deletion:\n    mode: shred\n"},
		{name: "zero concurrency", body: "saga:\n  deletion:\n    concurrency: 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSagaConfigHolderFromFile(writeSagaFile(t, tt.body), zap.NewNop())
			assert.Error(t, err)
		})
	}
}

func TestStaticSagaConfigHolder(t *testing.T) {
	holder := NewStaticSagaConfigHolder(DefaultSagaConfig())
	assert.Equal(t, DefaultSagaConfig(), holder.Get())
}
