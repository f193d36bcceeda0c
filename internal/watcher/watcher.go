// Package watcher watches files and directory trees and emits one debounced
// notification per burst of changes.
package watcher

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zjrosen/xh/internal/log"
)

// Watcher monitors a set of paths and sends a notification when any changes.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	paths     []string
	ignore    []string
	debounce  time.Duration
	files     map[string]bool // watched single files, keyed by clean path
	trees     []string        // watched directory roots
	onChange  chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
}

// Config holds watcher configuration options.
type Config struct {
	// Paths are files or directories. Directories are watched recursively.
	Paths []string

	// Ignore holds filepath.Match patterns tested against base names.
	Ignore []string

	DebounceDur time.Duration
}

// DefaultIgnore skips VCS metadata and editor swap files.
var DefaultIgnore = []string{".git", ".hg", "*.swp", "*.swx", "*~", ".#*"}

// DefaultConfig returns sensible defaults for the watcher.
func DefaultConfig(paths ...string) Config {
	return Config{
		Paths:       paths,
		Ignore:      DefaultIgnore,
		DebounceDur: 200 * time.Millisecond,
	}
}

// New creates a new watcher.
func New(cfg Config) (*Watcher, error) {
	if len(cfg.Paths) == 0 {
		return nil, fmt.Errorf("no paths to watch")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	return &Watcher{
		fsWatcher: fsw,
		paths:     cfg.Paths,
		ignore:    cfg.Ignore,
		debounce:  cfg.DebounceDur,
		files:     make(map[string]bool),
		onChange:  make(chan struct{}, 1),
		done:      make(chan struct{}),
	}, nil
}

// Start begins watching. Returns a channel that receives a signal when
// something under the watched paths changes.
func (w *Watcher) Start() (<-chan struct{}, error) {
	for _, p := range w.paths {
		if err := w.add(p); err != nil {
			return nil, err
		}
	}

	go w.loop()

	return w.onChange, nil
}

func (w *Watcher) add(path string) error {
	clean := filepath.Clean(path)
	info, err := os.Stat(clean)
	if err != nil {
		return fmt.Errorf("watching %s: %w", path, err)
	}

	if !info.IsDir() {
		// Editors replace files by rename, so watch the parent and filter
		w.files[clean] = true
		dir := filepath.Dir(clean)
		if err := w.fsWatcher.Add(dir); err != nil {
			return fmt.Errorf("watching directory %s: %w", dir, err)
		}
		return nil
	}

	w.trees = append(w.trees, clean)
	return w.addTree(clean)
}

// addTree adds root and every non-ignored directory below it.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && w.ignored(p) {
			return filepath.SkipDir
		}
		if err := w.fsWatcher.Add(p); err != nil {
			return fmt.Errorf("watching directory %s: %w", p, err)
		}
		return nil
	})
}

// Stop terminates the watcher and releases resources. Safe to call twice.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fsWatcher.Close()
	})
	return err
}

// loop processes file system events with debouncing.
func (w *Watcher) loop() {
	var (
		timer   *time.Timer
		pending bool
	)

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}

			if !w.isRelevantEvent(event) {
				continue
			}
			w.followNewDir(event)
			log.Debug(log.CatWatch, "change detected", "path", event.Name, "op", event.Op.String())

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			pending = true

		case <-func() <-chan time.Time {
			if timer != nil {
				return timer.C
			}
			return nil
		}():
			if pending {
				// Non-blocking send - drop if a notification is already queued
				select {
				case w.onChange <- struct{}{}:
				default:
				}
				pending = false
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.ErrorErr(log.CatWatch, "watch error", err)

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// followNewDir starts watching directories created inside a watched tree.
func (w *Watcher) followNewDir(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) || !w.inTree(filepath.Clean(event.Name)) {
		return
	}
	info, err := os.Stat(event.Name)
	if err != nil || !info.IsDir() {
		return
	}
	if err := w.addTree(event.Name); err != nil {
		log.ErrorErr(log.CatWatch, "failed to watch new directory", err, "path", event.Name)
	}
}

func (w *Watcher) ignored(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range w.ignore {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// isRelevantEvent checks if the event should trigger a restart.
func (w *Watcher) isRelevantEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	if w.ignored(event.Name) {
		return false
	}
	name := filepath.Clean(event.Name)
	return w.files[name] || w.inTree(name)
}

// inTree reports whether path lies under one of the watched directories.
func (w *Watcher) inTree(path string) bool {
	for _, root := range w.trees {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
