package service

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch keeps the extracted document text in memory and drops it whenever the
// file is written, created, renamed or removed, until ctx is done. The parent
// directory is watched so editors that replace the file are noticed too.
func (s *QAService) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	target := filepath.Clean(s.opts.DocumentPath)
	if err := w.Add(filepath.Dir(target)); err != nil {
		_ = w.Close()
		return fmt.Errorf("watching %s: %w", filepath.Dir(target), err)
	}

	s.mu.Lock()
	s.cache = true
	s.mu.Unlock()

	go func() {
		defer func() {
			_ = w.Close()
			s.mu.Lock()
			s.cache = false
			s.cached = nil
			s.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				s.logger.Info("document changed", "path", event.Name, "op", event.Op.String())
				s.invalidate()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.logger.Warn("document watcher error", "error", err)
			}
		}
	}()
	return nil
}
