// SPDX-FileCopyrightText: 2026 rtps-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// configWatcher re-applies the logging block whenever the configuration file was written.
type configWatcher struct {
	filename string
	watcher  *fsnotify.Watcher

	stopSyn chan struct{}
	stopAck chan struct{}
}

// watchConfig starts watching the configuration file's directory, which also catches editors
// replacing the file.
func watchConfig(filename string) (*configWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(filepath.Dir(filename)); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	cw := &configWatcher{
		filename: filepath.Clean(filename),
		watcher:  watcher,
		stopSyn:  make(chan struct{}),
		stopAck:  make(chan struct{}),
	}
	go cw.handle()

	return cw, nil
}

func (cw *configWatcher) handle() {
	defer close(cw.stopAck)

	for {
		select {
		case <-cw.stopSyn:
			return

		case e, ok := <-cw.watcher.Events:
			if !ok {
				log.Error("fsnotify's Event channel was closed")
				return
			}

			if filepath.Clean(e.Name) != cw.filename || e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			conf, err := readConfig(cw.filename)
			if err != nil {
				log.WithError(err).Warn("Reloading configuration failed")
				continue
			}

			applyLogging(conf.Logging)
			log.WithField("file", cw.filename).Info("Reloaded logging configuration")

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				log.Error("fsnotify's Errors channel was closed")
				return
			}
			log.WithError(err).Warn("Configuration watcher errored")
		}
	}
}

// close stops watching.
func (cw *configWatcher) close() {
	close(cw.stopSyn)
	<-cw.stopAck

	if err := cw.watcher.Close(); err != nil {
		log.WithError(err).Warn("Closing configuration watcher errored")
	}
}
