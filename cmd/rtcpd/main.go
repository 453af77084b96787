// SPDX-FileCopyrightText: 2026 rtps-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// rtcpd runs a multiplexed TCP transport, configured by a TOML file.
package main

import (
	"errors"
	"net/http"
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"
)

// waitSigint blocks the current thread until a SIGINT appears.
func waitSigint() {
	signalSyn := make(chan os.Signal, 1)
	signalAck := make(chan struct{})

	signal.Notify(signalSyn, os.Interrupt)

	go func() {
		<-signalSyn
		close(signalAck)
	}()

	<-signalAck
}

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("Usage: %s configuration.toml", os.Args[0])
	}

	conf, err := parseConfig(os.Args[1])
	if err != nil {
		log.WithError(err).Fatal("Failed to parse config")
	}
	applyLogging(conf.logging)

	d, err := startDaemon(conf)
	if err != nil {
		log.WithError(err).Fatal("Failed to start transport")
	}

	watcher, err := watchConfig(os.Args[1])
	if err != nil {
		log.WithError(err).Warn("Failed to watch the configuration file")
	}

	var server *http.Server
	if conf.apiListen != "" {
		server = &http.Server{Addr: conf.apiListen, Handler: newRouter(d)}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("REST API failed")
			}
		}()
		log.WithField("listen", conf.apiListen).Info("Started REST API")
	}

	waitSigint()
	log.Info("Shutting down..")

	if server != nil {
		_ = server.Close()
	}
	if watcher != nil {
		watcher.close()
	}
	d.close()
}
