// Package tailf follows files created in a directory and logs their lines.
package tailf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Follower logs every complete line appended to new files in Dir whose base
// name matches Pattern.
type Follower struct {
	dir     string
	pattern *regexp.Regexp
	log     *logrus.Entry

	files   map[string]*followed
	started chan struct{}
}

type followed struct {
	f   *os.File
	buf []byte
}

// New builds a follower for dir.
func New(dir string, pattern *regexp.Regexp, log *logrus.Entry) *Follower {
	return &Follower{
		dir:     dir,
		pattern: pattern,
		log:     log.WithField("dir", dir),
		files:   make(map[string]*followed),
		started: make(chan struct{}),
	}
}

// Started is closed once the directory is being watched.
func (f *Follower) Started() <-chan struct{} { return f.started }

// Run follows until ctx ends.
func (f *Follower) Run(ctx context.Context) error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(f.dir); err != nil {
		return fmt.Errorf("watch %s: %w", f.dir, err)
	}
	defer f.closeAll()
	close(f.started)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			f.log.WithError(err).Warn("watch error")
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			f.handle(ev)
		}
	}
}

func (f *Follower) handle(ev fsnotify.Event) {
	name := filepath.Base(ev.Name)
	switch {
	case ev.Has(fsnotify.Create):
		if !f.pattern.MatchString(name) {
			return
		}
		if _, ok := f.files[ev.Name]; ok {
			return
		}
		fh, err := os.Open(ev.Name)
		if err != nil {
			f.log.WithError(err).WithField("file", name).Debug("cannot open new file")
			return
		}
		f.log.WithField("file", name).Debug("following")
		f.files[ev.Name] = &followed{f: fh}
		f.read(ev.Name)
	case ev.Has(fsnotify.Write):
		f.read(ev.Name)
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		if t, ok := f.files[ev.Name]; ok {
			f.flush(name, t)
			t.f.Close()
			delete(f.files, ev.Name)
		}
	}
}

func (f *Follower) read(path string) {
	t, ok := f.files[path]
	if !ok {
		return
	}
	chunk := make([]byte, 32*1024)
	for {
		n, err := t.f.Read(chunk)
		t.buf = append(t.buf, chunk[:n]...)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				f.log.WithError(err).WithField("file", filepath.Base(path)).Warn("read failed")
			}
			break
		}
	}
	for {
		i := bytes.IndexByte(t.buf, '\n')
		if i < 0 {
			break
		}
		f.emit(filepath.Base(path), string(t.buf[:i]))
		t.buf = t.buf[i+1:]
	}
}

func (f *Follower) flush(name string, t *followed) {
	if len(t.buf) > 0 {
		f.emit(name, string(t.buf))
		t.buf = nil
	}
}

func (f *Follower) emit(name, line string) {
	f.log.WithField("file", name).Info(line)
}

func (f *Follower) closeAll() {
	for path, t := range f.files {
		f.flush(filepath.Base(path), t)
		t.f.Close()
	}
	f.files = map[string]*followed{}
}
