// Copyright (c) 2025 Mobile Trackpad authors
// All rights reserved. Use of this source code is governed by an
// MIT-style license that can be found in the LICENSE file.

package watcher

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/ddoffy/mobile-trackpad/internal/logging"
)

// RemoveFunc is called with the base name of a file that left the
// watched directory.
type RemoveFunc func(name string)

// Service watches one flat directory and reports removed files.
type Service struct {
	watcher  *fsnotify.Watcher
	dir      string
	onRemove RemoveFunc
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a watcher for dir.
func New(dir string, onRemove RemoveFunc) (*Service, error) {
	if onRemove == nil {
		return nil, errors.New("watcher: remove callback is required")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Service{
		watcher:  w,
		dir:      dir,
		onRemove: onRemove,
		done:     make(chan struct{}),
	}, nil
}

// Start adds the watch and begins delivering events.
func (s *Service) Start() error {
	if err := s.watcher.Add(s.dir); err != nil {
		return err
	}
	s.wg.Add(1)
	go s.loop()
	return nil
}

// Stop ends the event loop and waits for it to return.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.watcher.Close()
	})
	s.wg.Wait()
}

func (s *Service) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			name := filepath.Base(event.Name)
			// temp files are renamed into place by the store itself
			if strings.HasPrefix(name, ".") {
				continue
			}
			logging.Debug("payload left upload dir", zap.String("name", name), zap.Stringer("op", event.Op))
			s.onRemove(name)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			logging.Warn("watcher error", zap.Error(err))
		}
	}
}
