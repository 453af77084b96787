// SPDX-FileCopyrightText: 2026 rtps-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package tcp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rtps",
		Subsystem: "tcp",
		Name:      "frames_sent_total",
		Help:      "Total number of frames written, by frame type",
	}, []string{"type"})

	framesReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rtps",
		Subsystem: "tcp",
		Name:      "frames_received_total",
		Help:      "Total number of frames read, by frame type",
	}, []string{"type"})

	bytesSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rtps",
		Subsystem: "tcp",
		Name:      "bytes_sent_total",
		Help:      "Total number of bytes written, including frame headers",
	})

	bytesReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rtps",
		Subsystem: "tcp",
		Name:      "bytes_received_total",
		Help:      "Total number of bytes read, including frame headers",
	})

	frameErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rtps",
		Subsystem: "tcp",
		Name:      "frame_errors_total",
		Help:      "Total number of faulty received frames, by reason",
	}, []string{"reason"})

	connectAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rtps",
		Subsystem: "tcp",
		Name:      "connect_attempts_total",
		Help:      "Total number of outbound connection attempts, by result",
	}, []string{"result"})

	acceptedConnectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rtps",
		Subsystem: "tcp",
		Name:      "accepted_connections_total",
		Help:      "Total number of accepted connections, by result",
	}, []string{"result"})

	channelsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rtps",
		Subsystem: "tcp",
		Name:      "channels",
		Help:      "Number of channels currently known to all transports",
	})
)

const (
	frameData    = "data"
	frameControl = "control"
)

func frameType(port uint16) string {
	if port == 0 {
		return frameControl
	}
	return frameData
}
