// Package logging builds the application logger: a rotating file plus a
// channel of lines for the terminal log pane.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

const uiLogBuffer = 256

type Options struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Prefix     string
	// Stderr also copies every line to standard error. Leave it off while
	// the curses UI owns the terminal.
	Stderr bool
}

// Logging owns the writers behind the application logger.
type Logging struct {
	Logger *log.Logger
	file   *lumberjack.Logger
	lines  *ChannelWriter
}

func New(opts Options) (*Logging, error) {
	writers := make([]io.Writer, 0, 3)

	var file *lumberjack.Logger
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, err
		}
		file = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		}
		writers = append(writers, file)
	}

	lines := NewChannelWriter(uiLogBuffer)
	writers = append(writers, lines)

	if opts.Stderr {
		writers = append(writers, os.Stderr)
	}

	return &Logging{
		Logger: log.New(io.MultiWriter(writers...), opts.Prefix, log.LstdFlags|log.Lmicroseconds),
		file:   file,
		lines:  lines,
	}, nil
}

// Lines returns the channel the UI log pane reads from.
func (l *Logging) Lines() <-chan string {
	return l.lines.C()
}

// Rotate starts a new log file, keeping the old one as a backup.
func (l *Logging) Rotate() error {
	if l.file == nil {
		return nil
	}
	return l.file.Rotate()
}

func (l *Logging) Close() error {
	l.lines.Close()
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// ChannelWriter turns writes into lines on a buffered channel. Lines are
// dropped when nobody keeps up; writes never block the logger.
type ChannelWriter struct {
	mu      sync.Mutex
	ch      chan string
	closed  bool
	dropped int
}

func NewChannelWriter(buffer int) *ChannelWriter {
	return &ChannelWriter{ch: make(chan string, buffer)}
}

func (w *ChannelWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return len(p), nil
	}
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		select {
		case w.ch <- line:
		default:
			w.dropped++
		}
	}
	return len(p), nil
}

func (w *ChannelWriter) C() <-chan string {
	return w.ch
}

// Dropped reports how many lines were discarded because the channel was full.
func (w *ChannelWriter) Dropped() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dropped
}

func (w *ChannelWriter) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	close(w.ch)
}
