package workspace

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"agentedit/config"
)

// Watcher reports on-disk changes below a workspace root. The composition
// root connects it to ContentCache.Invalidate so edits made outside the
// editor are never served stale.
type Watcher struct {
	watcher  *fsnotify.Watcher
	onChange func(Ref)
	stop     chan struct{}
	done     sync.WaitGroup
	once     sync.Once
}

// NewWatcher starts watching root and all of its non-ignored subdirectories.
func NewWatcher(root string, onChange func(Ref)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && ignoredDirs[d.Name()] {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
	if err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch workspace: %w", err)
	}

	w := &Watcher{
		watcher:  fw,
		onChange: onChange,
		stop:     make(chan struct{}),
	}
	w.done.Add(1)
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	defer w.done.Done()
	for {
		select {
		case <-w.stop:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename|fsnotify.Create) == 0 {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				// New directories need their own watch
				_ = w.watcher.Add(event.Name)
			}
			if w.onChange != nil {
				w.onChange(Ref(filepath.Clean(event.Name)))
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Workspace] File watcher error: %v", err)
			}
		}
	}
}

// Close stops the watcher. It is safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.stop)
		err = w.watcher.Close()
		w.done.Wait()
	})
	return err
}
