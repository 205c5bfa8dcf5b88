package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelWriter_SplitsLines(t *testing.T) {
	w := NewChannelWriter(4)

	n, err := w.Write([]byte("one\ntwo\n"))
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	assert.Equal(t, "one", <-w.C())
	assert.Equal(t, "two", <-w.C())
}

func TestChannelWriter_DropsWhenFull(t *testing.T) {
	w := NewChannelWriter(1)
	_, _ = w.Write([]byte("kept\n"))
	_, _ = w.Write([]byte("dropped\n"))

	assert.Equal(t, 1, w.Dropped())
	assert.Equal(t, "kept", <-w.C())
}

func TestChannelWriter_CloseIsIdempotent(t *testing.T) {
	w := NewChannelWriter(1)
	w.Close()
	w.Close()

	_, ok := <-w.C()
	assert.False(t, ok)

	n, err := w.Write([]byte("late\n"))
	assert.NoError(t, err, "writes after close are discarded")
	assert.Equal(t, 5, n)
}

func TestNew_WritesFileAndChannel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "rower.log")
	l, err := New(Options{File: path, MaxSizeMB: 1, Prefix: "test "})
	require.NoError(t, err)

	l.Logger.Println("Orchestrator: Waiting for workout request...")
	line := <-l.Lines()
	assert.Contains(t, line, "Orchestrator: Waiting for workout request...")
	assert.Contains(t, line, "test ")

	require.NoError(t, l.Close())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Waiting for workout request")
}

func TestNew_WithoutFile(t *testing.T) {
	l, err := New(Options{})
	require.NoError(t, err)
	l.Logger.Print("hello")
	assert.Contains(t, <-l.Lines(), "hello")
	assert.NoError(t, l.Rotate())
	assert.NoError(t, l.Close())
}
