// SPDX-FileCopyrightText: 2026 rtps-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package utils contains helpers shared between the reliability and the transport layer.
package utils

import (
	"sync"
	"sync/atomic"
	"time"
)

// TimedEvent works like a wind-up clock: after being (re)started, its callback fires once
// after the configured interval unless the event was restarted or cancelled in between.
//
// The callback runs on its own goroutine and never concurrently with itself for the same
// arming. A stopped TimedEvent cannot be started again.
type TimedEvent struct {
	mutex    sync.Mutex
	interval time.Duration
	callback func()

	timer *time.Timer
	// generation invalidates pending firings of an earlier arming
	generation uint64

	// running counts callbacks in progress; Stop waits for them
	running sync.WaitGroup

	// stopped is set to != 0 if this event was stopped
	stopped uint32
}

// NewTimedEvent which needs to be started by calling RestartTimer.
func NewTimedEvent(interval time.Duration, callback func()) *TimedEvent {
	return &TimedEvent{
		interval: interval,
		callback: callback,
	}
}

// RestartTimer (re)arms this event for its interval. A pending firing is discarded.
func (te *TimedEvent) RestartTimer() {
	if atomic.LoadUint32(&te.stopped) != 0 {
		return
	}

	te.mutex.Lock()
	defer te.mutex.Unlock()

	if te.timer != nil {
		te.timer.Stop()
	}

	te.generation++
	generation := te.generation

	te.timer = time.AfterFunc(te.interval, func() {
		te.fire(generation)
	})
}

func (te *TimedEvent) fire(generation uint64) {
	if atomic.LoadUint32(&te.stopped) != 0 {
		return
	}

	te.mutex.Lock()
	valid := te.generation == generation && atomic.LoadUint32(&te.stopped) == 0
	if valid {
		te.timer = nil
		te.running.Add(1)
	}
	te.mutex.Unlock()

	if valid {
		defer te.running.Done()
		te.callback()
	}
}

// CancelTimer discards a pending firing. The event might be restarted afterwards.
func (te *TimedEvent) CancelTimer() {
	te.mutex.Lock()
	defer te.mutex.Unlock()

	if te.timer != nil {
		te.timer.Stop()
		te.timer = nil
	}
	te.generation++
}

// UpdateInterval for future (re)starts.
func (te *TimedEvent) UpdateInterval(interval time.Duration) {
	te.mutex.Lock()
	te.interval = interval
	te.mutex.Unlock()
}

// Interval currently configured.
func (te *TimedEvent) Interval() time.Duration {
	te.mutex.Lock()
	defer te.mutex.Unlock()

	return te.interval
}

// IsArmed checks if a firing is pending.
func (te *TimedEvent) IsArmed() bool {
	te.mutex.Lock()
	defer te.mutex.Unlock()

	return te.timer != nil
}

// Stop this event. No further callbacks will be started afterwards and Stop returns only
// after a callback in progress has finished. Thus, Stop must neither be called from within
// the callback nor while holding a lock the callback acquires.
func (te *TimedEvent) Stop() {
	te.mutex.Lock()
	atomic.StoreUint32(&te.stopped, 1)
	te.mutex.Unlock()

	te.CancelTimer()
	te.running.Wait()
}
