package logfile_test

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"i4.energy/across/drivetest/logfile"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func TestOpen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "output")

	w, err := logfile.Open(dir, "modem")
	require.NoError(t, err)
	defer w.Close()

	name := filepath.Base(w.Path())
	assert.True(t, strings.HasPrefix(name, "modem_"), name)
	assert.True(t, strings.HasSuffix(name, ".log"), name)
	assert.Equal(t, dir, filepath.Dir(w.Path()))
}

func TestFileName(t *testing.T) {
	ts := time.Date(2024, 9, 16, 13, 23, 58, 0, time.Local)
	assert.Equal(t, "gnss_2024-09-16_13-23-58.log", logfile.FileName("gnss", ts))
}

func TestStamp(t *testing.T) {
	ts := time.Date(2024, 9, 16, 13, 23, 58, 0, time.Local)
	assert.Equal(t, "2024-09-16 13:23:58:'#Flight Mode Active...'", logfile.Stamp(ts, "'#Flight Mode Active...'"))
}

func TestAppend(t *testing.T) {
	t.Run("Records are durable and ordered", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "modem.log")
		w, err := logfile.OpenFile(path)
		require.NoError(t, err)

		for _, line := range []string{"one", "two", "three"} {
			require.NoError(t, w.Append(line))
		}
		// visible before Close
		assert.Equal(t, []string{"one", "two", "three"}, readLines(t, path))
		assert.Equal(t, 3, w.Lines())
		require.NoError(t, w.Close())
	})

	t.Run("Never truncates", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "modem.log")
		require.NoError(t, os.WriteFile(path, []byte("earlier\n"), 0o644))

		w, err := logfile.OpenFile(path)
		require.NoError(t, err)
		require.NoError(t, w.Append("later"))
		require.NoError(t, w.Close())

		assert.Equal(t, []string{"earlier", "later"}, readLines(t, path))
	})

	t.Run("One record per line", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "modem.log")
		w, err := logfile.OpenFile(path)
		require.NoError(t, err)
		require.NoError(t, w.Append("a\r\nb\nc"))
		require.NoError(t, w.Close())

		assert.Equal(t, []string{"a b c"}, readLines(t, path))
	})

	t.Run("Concurrent appends keep whole lines", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "modem.log")
		w, err := logfile.OpenFile(path)
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 10; j++ {
					assert.NoError(t, w.Append("record"))
				}
			}()
		}
		wg.Wait()
		require.NoError(t, w.Close())

		lines := readLines(t, path)
		assert.Len(t, lines, 80)
		for _, l := range lines {
			assert.Equal(t, "record", l)
		}
	})

	t.Run("ErrClosed after Close", func(t *testing.T) {
		w, err := logfile.OpenFile(filepath.Join(t.TempDir(), "modem.log"))
		require.NoError(t, err)
		require.NoError(t, w.Close())

		assert.ErrorIs(t, w.Append("late"), logfile.ErrClosed)
		assert.ErrorIs(t, w.Close(), logfile.ErrClosed)
	})
}
