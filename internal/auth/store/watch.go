package store

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// replaceCheckDelay allows an atomic replace (rename over the file) to
// settle before a Remove event is treated as a real deletion.
const replaceCheckDelay = 50 * time.Millisecond

// Watch reloads the in-memory credential cache whenever another process
// rewrites or removes auth.json (the companion CLI shares the file). It
// blocks until ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() {
		_ = watcher.Close()
	}()

	// Watch the directory, not the file: editors and the CLI replace the
	// file by rename, which would silently drop a file-level watch.
	if err = watcher.Add(s.codexHome); err != nil {
		return err
	}

	authFile := s.AuthFilePath()
	log.Debugf("watching %s for external credential changes", authFile)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != authFile {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				time.Sleep(replaceCheckDelay)
			}
			s.mu.Lock()
			if _, errLoad := s.loadLocked(); errLoad != nil {
				log.Warnf("failed to reload credentials after external change: %v", errLoad)
			} else {
				log.Debug("credential cache reloaded after external change")
			}
			s.mu.Unlock()
		case errWatch, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warnf("credential watcher error: %v", errWatch)
		}
	}
}
