package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/kebairia/zipbackup/internal/logger"
)

// LogTail follows a server log file and reports every line appended to it.
// It survives the file being rotated, truncated or created late.
type LogTail struct {
	path      string
	fromStart bool
	log       logger.Logger

	file    *os.File
	offset  int64
	partial []byte
}

type LogTailOption func(*LogTail)

// FromStart makes the tail report lines already in the file when Run starts.
func FromStart() LogTailOption {
	return func(t *LogTail) {
		t.fromStart = true
	}
}

func WithTailLogger(log logger.Logger) LogTailOption {
	return func(t *LogTail) {
		t.log = log
	}
}

func NewLogTail(path string, opts ...LogTailOption) *LogTail {
	t := &LogTail{path: filepath.Clean(path), log: logger.Nop()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run reports lines to handle until ctx is done.
func (t *LogTail) Run(ctx context.Context, handle LineHandler) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create log watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so rotation and late creation are seen.
	if err := watcher.Add(filepath.Dir(t.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(t.path), err)
	}
	defer t.closeFile()

	if err := t.open(!t.fromStart); err != nil {
		t.log.Warn("log file not available yet", "path", t.path, "error", err.Error())
	}
	t.drain(handle)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != t.path {
				continue
			}
			switch {
			case ev.Has(fsnotify.Create):
				t.closeFile()
				if err := t.open(false); err != nil {
					t.log.Warn("failed to reopen log file", "path", t.path, "error", err.Error())
					continue
				}
				t.drain(handle)
			case ev.Has(fsnotify.Write):
				if t.file == nil {
					if err := t.open(false); err != nil {
						continue
					}
				}
				t.drain(handle)
			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				t.closeFile()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			t.log.Warn("log watcher error", "error", err.Error())
		}
	}
}

func (t *LogTail) open(atEnd bool) error {
	f, err := os.Open(t.path)
	if err != nil {
		return err
	}
	t.file = f
	t.offset = 0
	t.partial = t.partial[:0]
	if atEnd {
		off, err := f.Seek(0, io.SeekEnd)
		if err != nil {
			f.Close()
			t.file = nil
			return err
		}
		t.offset = off
	}
	return nil
}

func (t *LogTail) closeFile() {
	if t.file != nil {
		t.file.Close()
		t.file = nil
	}
}

// drain reads everything appended since the last call and emits complete lines.
func (t *LogTail) drain(handle LineHandler) {
	if t.file == nil {
		return
	}
	if info, err := t.file.Stat(); err == nil && info.Size() < t.offset {
		// Truncated in place.
		t.offset = 0
		t.partial = t.partial[:0]
		if _, err := t.file.Seek(0, io.SeekStart); err != nil {
			t.log.Warn("failed to rewind log file", "error", err.Error())
			return
		}
	}

	buf := make([]byte, 32*1024)
	for {
		n, err := t.file.Read(buf)
		if n > 0 {
			t.offset += int64(n)
			t.partial = append(t.partial, buf[:n]...)
			t.emit(handle)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) {
				t.log.Warn("failed to read log file", "error", err.Error())
			}
			return
		}
	}
}

func (t *LogTail) emit(handle LineHandler) {
	for {
		i := bytes.IndexByte(t.partial, '\n')
		if i < 0 {
			return
		}
		line := string(bytes.TrimRight(t.partial[:i], "\r"))
		t.partial = t.partial[i+1:]
		if handle != nil {
			handle(line)
		}
	}
}
