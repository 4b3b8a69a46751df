package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLogPath(t *testing.T) {
	path := DefaultLogPath()
	assert.True(t, strings.HasSuffix(path, filepath.Join(".sharedwatch", "logs", "sharedwatch.log")))
	assert.Equal(t, DefaultLogDir(), filepath.Dir(path))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, DefaultLogPath(), cfg.FilePath)
	assert.Equal(t, 10, cfg.MaxSizeMB)
	assert.Equal(t, 5, cfg.MaxFiles)
	assert.True(t, cfg.WriteToStderr)

	assert.Equal(t, "debug", DebugConfig().Level)
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"nonsense", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, LevelFromString(tt.in))
		})
	}
}

func TestSetup_WritesJSONToFile(t *testing.T) {
	// Given: file logging at warn level
	path := filepath.Join(t.TempDir(), "logs", "test.log")
	logger, cleanup, err := Setup(Config{Level: "warn", FilePath: path})
	require.NoError(t, err)

	// When: logging below and at the level
	logger.Info("hidden")
	logger.Warn("shown", slog.String("dir", "/src"))
	cleanup()

	// Then: only the warning is written, as JSON
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "/src", entry["dir"])
}

func TestSetup_StderrOnly(t *testing.T) {
	logger, cleanup, err := Setup(Config{Level: "debug", Text: true})
	require.NoError(t, err)
	defer cleanup()

	assert.True(t, logger.Enabled(t.Context(), slog.LevelDebug))
}

func TestRotatingWriter_Rotation(t *testing.T) {
	// Given: a writer that rotates on every write
	path := filepath.Join(t.TempDir(), "rotate.log")
	w, err := NewRotatingWriter(path, 0, 3)
	require.NoError(t, err)
	defer w.Close()

	// When: writing twice
	data := bytes.Repeat([]byte("x"), 2048)
	_, err = w.Write(data)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)

	// Then: the previous file was rotated aside
	assert.FileExists(t, path)
	assert.FileExists(t, path+".1")
	assert.FileExists(t, lockPath(path))
}

func TestRotatingWriter_MaxFilesLimit(t *testing.T) {
	// Given: a writer keeping two rotated files
	path := filepath.Join(t.TempDir(), "maxfiles.log")
	w, err := NewRotatingWriter(path, 0, 2)
	require.NoError(t, err)
	defer w.Close()

	// When: rotating many times
	for i := 0; i < 6; i++ {
		_, _ = w.Write([]byte(fmt.Sprintf("line %d\n", i)))
	}

	// Then: nothing beyond .2 survives
	assert.FileExists(t, path+".1")
	assert.FileExists(t, path+".2")
	assert.NoFileExists(t, path+".3")
}

func TestRotatingWriter_SkipsWhenAlreadyRotatedElsewhere(t *testing.T) {
	// Given: two writers on one file, as two processes would have
	path := filepath.Join(t.TempDir(), "shared.log")
	a, err := NewRotatingWriter(path, 1, 3)
	require.NoError(t, err)
	defer a.Close()
	b, err := NewRotatingWriter(path, 1, 3)
	require.NoError(t, err)
	defer b.Close()

	// When: a fills the file and rotates, then b believes it is also full
	big := bytes.Repeat([]byte("a"), 1024*1024)
	_, err = a.Write(big)
	require.NoError(t, err)
	_, err = a.Write([]byte("after rotation\n"))
	require.NoError(t, err)

	b.mu.Lock()
	b.written = b.maxSize
	b.mu.Unlock()
	_, err = b.Write([]byte("from b\n"))
	require.NoError(t, err)

	// Then: b appended to the fresh file instead of rotating it away
	assert.NoFileExists(t, path+".2")
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "after rotation")
	assert.Contains(t, string(content), "from b")
}

func TestRotatingWriter_CloseAndSync(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.log")
	w, err := NewRotatingWriter(path, 1, 3)
	require.NoError(t, err)

	w.SetImmediateSync(false)
	_, err = w.Write([]byte("test data to sync\n"))
	require.NoError(t, err)
	require.NoError(t, w.Sync())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "test data to sync")

	require.NoError(t, w.Close())
	require.NoError(t, w.Close(), "second close is a no-op")
	require.NoError(t, w.Sync())
}

func TestRotatingWriter_ConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concurrent.log")
	w, err := NewRotatingWriter(path, 10, 3)
	require.NoError(t, err)
	defer w.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = w.Write([]byte(fmt.Sprintf(`{"id":%d,"iter":%d}`+"\n", id, j)))
			}
		}(i)
	}
	wg.Wait()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1000, strings.Count(string(data), "\n"))
}
