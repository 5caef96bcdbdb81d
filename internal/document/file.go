package document

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"k8s.io/klog/v2"
)

const debounceDelay = 100 * time.Millisecond

// File is a document stored on disk. External writes to the file are reported on
// Changes once they settle; writes made through File are not.
type File struct {
	watcher *fsnotify.Watcher
	changes chan struct{}
	done    chan struct{}
	once    sync.Once

	mu          sync.Mutex
	path        string
	lastWritten []byte
}

// Open watches the existing file at path.
func Open(path string) (*File, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// the directory is watched so that editors replacing the file and renames keep working
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("could not watch %s: %w", filepath.Dir(path), err)
	}

	f := &File{
		watcher: watcher,
		changes: make(chan struct{}, 1),
		done:    make(chan struct{}),
		path:    path,
	}
	go f.run()
	return f, nil
}

// Create writes text to dir/baseName, replacing any existing file, and opens it.
func Create(dir, baseName string, text []byte) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	path := filepath.Join(dir, baseName)
	if err := os.WriteFile(path, text, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write document: %w", err)
	}
	f, err := Open(path)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.lastWritten = append([]byte(nil), text...)
	f.mu.Unlock()
	return f, nil
}

func (f *File) Path() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.path
}

func (f *File) Read() ([]byte, error) {
	return os.ReadFile(f.Path())
}

func (f *File) Write(text []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.WriteFile(f.path, text, 0o644); err != nil {
		return err
	}
	f.lastWritten = append([]byte(nil), text...)
	return nil
}

// Rename moves the file within its directory. It refuses to overwrite another file.
func (f *File) Rename(newBase string) error {
	if newBase == "" || filepath.Base(newBase) != newBase {
		return fmt.Errorf("invalid document name %q", newBase)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	target := filepath.Join(filepath.Dir(f.path), newBase)
	if target == f.path {
		return nil
	}
	if _, err := os.Stat(target); err == nil {
		return fmt.Errorf("cannot rename %s: %s already exists", filepath.Base(f.path), newBase)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Rename(f.path, target); err != nil {
		return err
	}
	f.path = target
	return nil
}

func (f *File) Changes() <-chan struct{} {
	return f.changes
}

// Close stops watching the file. The file itself is left in place.
func (f *File) Close() error {
	var err error
	f.once.Do(func() {
		close(f.done)
		err = f.watcher.Close()
	})
	return err
}

func (f *File) run() {
	var timerC <-chan time.Time
	for {
		select {
		case <-timerC:
			timerC = nil
			if f.changedExternally() {
				select {
				case f.changes <- struct{}{}:
				default:
				}
			}
		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != f.Path() {
				continue
			}
			// debounce bursts of writes from editors
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if timerC == nil {
					timerC = time.After(debounceDelay)
				}
			}
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			klog.ErrorS(err, "Document watcher error", "document", f.Path())
		case <-f.done:
			return
		}
	}
}

func (f *File) changedExternally() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	text, err := os.ReadFile(f.path)
	if err != nil {
		klog.V(2).InfoS("Failed to read changed document", "document", f.path, "err", err)
		return false
	}
	if f.lastWritten != nil && bytes.Equal(text, f.lastWritten) {
		return false
	}
	f.lastWritten = nil
	return true
}
