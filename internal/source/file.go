package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/pulseguard/pulseguard/internal/event"
)

// filePollInterval is the fallback read cadence when filesystem events are
// unavailable or missed (network filesystems, editors using atomic renames).
const filePollInterval = time.Second

var errRotated = errors.New("file rotated")

// fileTailer follows one log file. A file present at startup is read from
// the end so only new lines are reported; truncation rewinds to the start,
// and rotation reopens the path from the start.
type fileTailer struct {
	path string
	opts Options

	// skipLong is set while discarding the tail of an oversized line whose
	// capped head has already been emitted.
	skipLong bool
}

// NewFile returns an adapter tailing the file at path. The file does not
// need to exist yet; the tailer waits for it to appear.
func NewFile(path string, opts Options) Adapter {
	return &fileTailer{path: path, opts: opts}
}

func (t *fileTailer) Descriptor() Descriptor {
	return Descriptor{ID: t.path, Kind: event.KindFile}
}

func (t *fileTailer) Run(ctx context.Context, out chan<- event.LogEvent) error {
	log := t.opts.logger()

	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		defer watcher.Close()
		if werr := watcher.Add(filepath.Dir(t.path)); werr != nil {
			log.Debug("file watch unavailable, polling only", "path", t.path, "error", werr)
		}
	} else {
		log.Debug("fsnotify unavailable, polling only", "path", t.path, "error", err)
	}

	ticker := time.NewTicker(filePollInterval)
	defer ticker.Stop()

	delay := t.opts.ReconnectDelay
	if delay <= 0 {
		delay = filePollInterval
	}

	var f *os.File
	var offset int64
	var retryAt time.Time
	seekEnd := true
	defer func() {
		if f != nil {
			f.Close()
			t.opts.setStatus(t.Descriptor(), false)
		}
	}()

	for {
		if f == nil && !time.Now().Before(retryAt) {
			nf, err := os.Open(t.path)
			if err != nil {
				retryAt = time.Now().Add(delay)
			} else {
				offset = 0
				if seekEnd {
					if end, err := nf.Seek(0, io.SeekEnd); err == nil {
						offset = end
					}
				}
				f = nf
				t.skipLong = false
				t.opts.setStatus(t.Descriptor(), true)
				log.Info("tailing file", "path", t.path, "offset", offset)
			}
			// Seek-to-end applies only to a file present at startup; a
			// file appearing later is all new content.
			seekEnd = false
		}

		if f != nil {
			if err := t.drain(ctx, f, &offset, out); err != nil {
				if !errors.Is(err, errRotated) {
					log.Warn("file read failed", "path", t.path, "error", err)
				} else {
					log.Info("file rotated, reopening", "path", t.path)
				}
				f.Close()
				f = nil
				t.opts.setStatus(t.Descriptor(), false)
				retryAt = time.Now().Add(delay)
			}
		}

		var events <-chan fsnotify.Event
		var werrs <-chan error
		if watcher != nil {
			events = watcher.Events
			werrs = watcher.Errors
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-events:
		case err := <-werrs:
			if err != nil {
				log.Debug("file watch error", "path", t.path, "error", err)
			}
		}
	}
}

// drain reads every complete appended line. A short trailing line without a
// newline stays unread until it completes; once it exceeds the line cap its
// head is emitted and the rest is discarded as it arrives, holding at most
// the cap in memory. Truncation (the file shrank below the read offset)
// rewinds to the start; rotation (the path now names a different file)
// returns errRotated so the caller reopens.
func (t *fileTailer) drain(ctx context.Context, f *os.File, offset *int64, out chan<- event.LogEvent) error {
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}
	if info.Size() < *offset {
		*offset = 0
		t.skipLong = false
	}
	if _, err := f.Seek(*offset, io.SeekStart); err != nil {
		return fmt.Errorf("seek: %w", err)
	}

	br := bufio.NewReader(f)
	max := t.opts.MaxLineBytes
	for {
		if t.skipLong {
			n, err := discardLine(br)
			*offset += int64(n)
			if err != nil {
				if err == io.EOF {
					break
				}
				return err
			}
			t.skipLong = false
			continue
		}

		raw, n, err := readLine(br, max)
		if err != nil {
			if err != io.EOF {
				return err
			}
			if max > 0 && n > max {
				*offset += int64(n)
				t.skipLong = true
				if !emit(ctx, out, t.Descriptor(), string(raw), max) {
					return ctx.Err()
				}
			}
			break
		}
		*offset += int64(n)
		line := strings.TrimRight(string(raw), "\r\n")
		if line == "" {
			continue
		}
		if !emit(ctx, out, t.Descriptor(), line, max) {
			return ctx.Err()
		}
	}

	pinfo, err := os.Stat(t.path)
	if err != nil || !os.SameFile(pinfo, info) {
		return errRotated
	}
	return nil
}
