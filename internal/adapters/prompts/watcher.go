package prompts

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/buildloop/buildloop/internal/logging"
)

const debounceInterval = 300 * time.Millisecond

// Watcher calls onChange after edits to the prompt directory settle
type Watcher struct {
	done      chan struct{}
	fsWatcher *fsnotify.Watcher
	onChange  func()
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// Watch starts watching dir and its agents sub-directory
func Watch(dir string, onChange func()) (*Watcher, error) {
	fsW, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsW.Add(dir); err != nil {
		fsW.Close()
		return nil, err
	}
	agents := filepath.Join(dir, AgentsDir)
	if info, err := os.Stat(agents); err == nil && info.IsDir() {
		if err := fsW.Add(agents); err != nil {
			logging.Logger.Warn("Failed to watch agents directory", "path", agents, "error", err)
		}
	}

	w := &Watcher{
		done:      make(chan struct{}),
		fsWatcher: fsW,
		onChange:  onChange,
	}
	w.wg.Add(1)
	go w.loop(agents)
	return w, nil
}

// Close stops the watcher and waits for its loop to exit
func (w *Watcher) Close() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fsWatcher.Close()
		w.wg.Wait()
	})
	return err
}

func (w *Watcher) loop(agents string) {
	defer w.wg.Done()
	var timer *time.Timer

	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			// The agents directory may be created after startup
			if event.Name == agents && event.Has(fsnotify.Create) {
				if err := w.fsWatcher.Add(agents); err != nil {
					logging.Logger.Warn("Failed to watch agents directory", "path", agents, "error", err)
				}
			}
			logging.Logger.Debug("Prompt directory changed", "path", event.Name, "op", event.Op.String())
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceInterval, w.onChange)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			logging.Logger.Warn("Prompt watcher error", "error", err)
		}
	}
}
