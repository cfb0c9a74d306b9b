package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunk_size: 1048576\ndata_dir: /tmp/store\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint64(1048576), cfg.ChunkSize)
	require.Equal(t, "/tmp/store", cfg.DataDir)
	require.Equal(t, Default().IOAlign, cfg.IOAlign)
}

func TestValidateRejectsMisalignedChunkSize(t *testing.T) {
	cfg := Default()
	cfg.ChunkSize = 513
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsZeroBatchLimits(t *testing.T) {
	cfg := Default()
	cfg.MaxResyncBatchBlobs = 0
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsZeroChunksPerDevice(t *testing.T) {
	cfg := Default()
	cfg.NumChunksPerDevice = 0
	require.Error(t, cfg.Validate())
}
