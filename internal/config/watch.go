package config

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	logging "github.com/ipfs/go-log/v2"
)

var logger = logging.Logger("config")

// Watcher reloads a config file from disk whenever it changes and delivers
// the new value on Changes. The host uses this so an operator can edit
// room.max_songs or room.max_file_size_bytes without restarting a running
// room.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	Changes  chan Config
	closed   chan struct{}
}

// Watch starts watching path's parent directory (editors replace files via
// rename, which does not keep a direct file watch alive) for changes to
// path and pushes successfully-parsed configs onto Changes.
func Watch(path string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch config dir: %w", err)
	}

	w := &Watcher{
		path:    path,
		watcher: fw,
		Changes: make(chan Config, 1),
		closed:  make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	target := filepath.Clean(w.path)
	for {
		select {
		case <-w.closed:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				logger.Warnf("reload %s failed: %v", w.path, err)
				continue
			}
			select {
			case w.Changes <- cfg:
			default:
				// drop the stale pending config, keep only the latest
				select {
				case <-w.Changes:
				default:
				}
				w.Changes <- cfg
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warnf("watcher error: %v", err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.closed)
	return w.watcher.Close()
}
