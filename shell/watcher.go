// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package shell

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watcher reports changes to files in an asset directory
type Watcher struct {
	watcher *fsnotify.Watcher
	changes chan string
	done    chan struct{}
	log     log.FieldLogger
}

// NewWatcher starts watching dir, not its subdirectories
func NewWatcher(dir string, logger log.FieldLogger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	if logger == nil {
		logger = log.StandardLogger()
	}

	w := &Watcher{
		watcher: fw,
		changes: make(chan string, 1),
		done:    make(chan struct{}),
		log:     logger.WithField("dir", dir),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
				!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			name := filepath.Base(ev.Name)
			w.log.WithField("op", ev.Op.String()).Debug("asset changed: ", name)
			// a pending change already triggers a reload
			select {
			case w.changes <- name:
			default:
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("watcher error")
		}
	}
}

// Changes delivers the base name of a changed file. Bursts of
// changes are coalesced into one notification.
func (w *Watcher) Changes() <-chan string {
	return w.changes
}

// Close stops watching
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}
