// SPDX-FileCopyrightText: 2026 rtps-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package utils

import (
	"testing"
	"time"
)

func TestTimedEvent(t *testing.T) {
	fired := make(chan struct{}, 8)
	te := NewTimedEvent(50*time.Millisecond, func() { fired <- struct{}{} })

	intervals := []time.Duration{50 * time.Millisecond, 75 * time.Millisecond, 100 * time.Millisecond}
	for _, interval := range intervals {
		te.UpdateInterval(interval)
		te.RestartTimer()

		// wait for tick
		select {
		case <-fired:
		case <-time.After(2 * interval):
			t.Fatalf("timeout at %v", interval)
		}

		// no second tick should occur
		select {
		case <-fired:
			t.Fatalf("second tick at %v", interval)
		case <-time.After(2 * interval):
		}
	}
}

func TestTimedEventRestartDiscardsPending(t *testing.T) {
	fired := make(chan struct{}, 8)
	te := NewTimedEvent(100*time.Millisecond, func() { fired <- struct{}{} })

	te.RestartTimer()
	time.Sleep(60 * time.Millisecond)
	te.RestartTimer()

	// The first arming would have fired at 100ms.
	select {
	case <-fired:
		t.Fatal("restart did not discard the first arming")
	case <-time.After(70 * time.Millisecond):
	}

	select {
	case <-fired:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout")
	}
}

func TestTimedEventCancelAndStop(t *testing.T) {
	fired := make(chan struct{}, 8)
	te := NewTimedEvent(50*time.Millisecond, func() { fired <- struct{}{} })

	te.RestartTimer()
	if !te.IsArmed() {
		t.Fatal("event is not armed after restart")
	}
	te.CancelTimer()
	if te.IsArmed() {
		t.Fatal("event is armed after cancel")
	}

	select {
	case <-fired:
		t.Fatal("no tick was expected after CancelTimer")
	case <-time.After(100 * time.Millisecond):
	}

	te.RestartTimer()
	te.Stop()
	te.RestartTimer()

	select {
	case <-fired:
		t.Fatal("no tick was expected after Stop")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTimedEventStopWaitsForCallback(t *testing.T) {
	entered := make(chan struct{})
	proceed := make(chan struct{})
	te := NewTimedEvent(10*time.Millisecond, func() {
		close(entered)
		<-proceed
	})

	te.RestartTimer()

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("callback was not called")
	}

	stopped := make(chan struct{})
	go func() {
		te.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while the callback is still running")
	case <-time.After(100 * time.Millisecond):
	}

	close(proceed)

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after the callback finished")
	}
}
