// Package logfile writes the append-only measurement logs. Every record is
// flushed and synced to stable storage before Append returns, so a crash
// loses at most the record being written.
package logfile

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	// TimeLayout stamps every record.
	TimeLayout = "2006-01-02 15:04:05"
	// NameLayout is the timestamp embedded in log file names.
	NameLayout = "2006-01-02_15-04-05"
)

// ErrClosed is returned by Append and Close once the writer is closed.
var ErrClosed = errors.New("log file closed")

// Record is one log line together with the stream it belongs to.
type Record struct {
	Stream string    `json:"stream"`
	Time   time.Time `json:"time"`
	Line   string    `json:"line"`
}

// Stamp prefixes text with the formatted timestamp and the field delimiter.
func Stamp(t time.Time, text string) string {
	return t.Format(TimeLayout) + ":" + text
}

// FileName returns the name of a log started at t.
func FileName(base string, t time.Time) string {
	return fmt.Sprintf("%s_%s.log", base, t.Format(NameLayout))
}

// Writer appends lines to a single file.
type Writer struct {
	mu    sync.Mutex
	file  *os.File
	buf   *bufio.Writer
	path  string
	lines int
}

// Open creates dir when missing and opens <dir>/<base>_<timestamp>.log for
// appending.
func Open(dir, base string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	return OpenFile(filepath.Join(dir, FileName(base, time.Now())))
}

// OpenFile opens path for appending. Existing content is kept.
func OpenFile(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return &Writer{
		file: f,
		buf:  bufio.NewWriter(f),
		path: path,
	}, nil
}

// Path returns the file path.
func (w *Writer) Path() string {
	return w.path
}

// Lines returns the number of records appended through w.
func (w *Writer) Lines() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lines
}

// Append writes line followed by a newline, then flushes and syncs.
// Embedded line breaks are replaced by spaces so that one record is
// always one line.
func (w *Writer) Append(line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return ErrClosed
	}

	line = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ").Replace(line)
	if _, err := w.buf.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("flush record: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("sync record: %w", err)
	}
	w.lines++
	return nil
}

// Close flushes, syncs and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return ErrClosed
	}
	f := w.file
	w.file = nil

	err := w.buf.Flush()
	if syncErr := f.Sync(); err == nil {
		err = syncErr
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return err
}
