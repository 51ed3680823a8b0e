package scanner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

var ErrAlreadyStarted = errors.New("scanner: source already started")

// Frame is one unit of input from a capture device. Image frames need
// decoding; Text frames come from devices that decode on their own
// (keyboard-wedge readers, manual entry).
type Frame struct {
	Seq   uint64
	At    time.Time
	Image image.Image
	Text  string
}

// FrameSource is a capture device. Stop must release the device before it
// returns and is safe to call more than once.
type FrameSource interface {
	Start(ctx context.Context) (<-chan Frame, error)
	Stop() error
}

type sequencer struct{ n atomic.Uint64 }

func (s *sequencer) next() uint64 { return s.n.Add(1) }

// LineSource turns each non-empty line of r into a text frame.
type LineSource struct {
	r   io.Reader
	seq sequencer

	// OnBlank, when set, is called for every blank line. Gates use it as
	// the operator's dismiss key.
	OnBlank func()

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
}

func NewLineSource(r io.Reader) *LineSource {
	return &LineSource{r: r}
}

func (s *LineSource) Start(ctx context.Context) (<-chan Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil, ErrAlreadyStarted
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	out := make(chan Frame)

	go func() {
		defer close(out)
		sc := bufio.NewScanner(s.r)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				if s.OnBlank != nil {
					s.OnBlank()
				}
				continue
			}
			select {
			case out <- Frame{Seq: s.seq.next(), At: time.Now(), Text: line}:
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil && ctx.Err() == nil {
			log.WithError(err).Warn("scanner: line source read failed")
		}
	}()
	return out, nil
}

// Stop cancels delivery and closes the reader when it can be closed. A read
// already blocked on a non-closable reader ends with its next line.
func (s *LineSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if c, ok := s.r.(io.Closer); ok && s.started {
		s.started = false
		if err := c.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			return fmt.Errorf("line source: close: %w", err)
		}
	}
	return nil
}

var imageExt = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true, ".tif": true, ".tiff": true}

// DirectorySource watches a drop folder a capture daemon writes snapshots
// into. Images already present at start are emitted first.
type DirectorySource struct {
	dir string
	seq sequencer

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewDirectorySource(dir string) *DirectorySource {
	return &DirectorySource{dir: dir}
}

func (s *DirectorySource) Start(ctx context.Context) (<-chan Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher != nil {
		return nil, ErrAlreadyStarted
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("directory source: fsnotify.NewWatcher: %w", err)
	}
	if err := w.Add(s.dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("directory source: watch %s: %w", s.dir, err)
	}
	existing, err := os.ReadDir(s.dir)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("directory source: read %s: %w", s.dir, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s.watcher, s.cancel, s.done = w, cancel, make(chan struct{})
	out := make(chan Frame)

	go func() {
		defer close(s.done)
		defer close(out)

		seen := make(map[string]bool)
		emit := func(path string) bool {
			if seen[path] || !imageExt[strings.ToLower(filepath.Ext(path))] {
				return true
			}
			img, err := imaging.Open(path, imaging.AutoOrientation(true))
			if err != nil {
				// partially written; the next write event retries it
				log.WithError(err).WithField("file", path).Debug("scanner: unreadable snapshot")
				return true
			}
			seen[path] = true
			select {
			case out <- Frame{Seq: s.seq.next(), At: time.Now(), Image: img}:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for _, e := range existing {
			if !e.IsDir() && !emit(filepath.Join(s.dir, e.Name())) {
				return
			}
		}
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
					if !emit(ev.Name) {
						return
					}
				}
				if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
					delete(seen, ev.Name)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("scanner: watch error")
			}
		}
	}()
	return out, nil
}

// Stop closes the watcher and waits for the capture loop to exit.
func (s *DirectorySource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher == nil {
		return nil
	}
	s.cancel()
	err := s.watcher.Close()
	<-s.done
	s.watcher = nil
	if err != nil {
		return fmt.Errorf("directory source: close: %w", err)
	}
	return nil
}
