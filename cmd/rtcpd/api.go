// SPDX-FileCopyrightText: 2026 rtps-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"sync/atomic"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/rtps-go/pkg/transport/tcp"
)

// statusResponse is served on GET /status.
type statusResponse struct {
	Listening []string          `json:"listening"`
	Channels  []tcp.ChannelInfo `json:"channels"`
	Inputs    []inputStatus     `json:"inputs"`
	Peers     []peerStatus      `json:"peers"`
}

type inputStatus struct {
	Port   uint16 `json:"port"`
	Frames uint64 `json:"frames"`
	Bytes  uint64 `json:"bytes"`
}

type peerStatus struct {
	Name    string `json:"name"`
	Locator string `json:"locator"`
	Open    bool   `json:"open"`
}

// sendResponse is served on POST /peer/{name}.
type sendResponse struct {
	Error string `json:"error,omitempty"`
}

// newRouter for the daemon's REST API.
func newRouter(d *daemon) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/status", d.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/peer/{name}", d.handleSend).Methods(http.MethodPost)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return router
}

func (d *daemon) status() (resp statusResponse) {
	for _, loc := range d.transport.ListeningLocators() {
		resp.Listening = append(resp.Listening, loc.String())
	}

	resp.Channels = d.transport.Channels()

	for _, in := range d.inputs {
		resp.Inputs = append(resp.Inputs, inputStatus{
			Port:   in.port,
			Frames: atomic.LoadUint64(&in.frames),
			Bytes:  atomic.LoadUint64(&in.bytes),
		})
	}

	d.peersMutex.Lock()
	for name, loc := range d.peers {
		resp.Peers = append(resp.Peers, peerStatus{
			Name:    name,
			Locator: loc.String(),
			Open:    d.transport.IsOutputChannelOpen(loc),
		})
	}
	d.peersMutex.Unlock()

	sort.Slice(resp.Peers, func(i, j int) bool { return resp.Peers[i].Name < resp.Peers[j].Name })
	return
}

// handleStatus processes GET /status requests.
func (d *daemon) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(d.status()); err != nil {
		log.WithError(err).Warn("Failed to write status response")
	}
}

// handleSend processes POST /peer/{name} requests, sending the request's body.
func (d *daemon) handleSend(w http.ResponseWriter, r *http.Request) {
	var (
		name = mux.Vars(r)["name"]
		resp sendResponse
		code = http.StatusOK
	)

	if data, err := io.ReadAll(io.LimitReader(r.Body, int64(tcp.MaxMessageSizeLimit)+1)); err != nil {
		resp.Error, code = err.Error(), http.StatusBadRequest
	} else if err := d.send(name, data); err != nil {
		resp.Error = err.Error()
		switch {
		case errors.Is(err, tcp.ErrMessageTooLarge):
			code = http.StatusRequestEntityTooLarge
		case errors.Is(err, tcp.ErrChannelDisconnected), errors.Is(err, tcp.ErrPortNotOpen):
			code = http.StatusServiceUnavailable
		default:
			code = http.StatusNotFound
		}
	}

	log.WithFields(log.Fields{
		"peer":  name,
		"error": resp.Error,
	}).Debug("Processed REST send request")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.WithError(err).Warn("Failed to write send response")
	}
}
