// SPDX-FileCopyrightText: 2026 rtps-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package writer

import (
	"sort"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/rtps-go/pkg/internal/utils"
	"github.com/dtn7/rtps-go/pkg/locator"
	"github.com/dtn7/rtps-go/pkg/rtps"
)

// Writer is the reliable writer owning ReaderProxies.
type Writer interface {
	// PerformNackSupression is called from a proxy's nack-supression timer after the
	// configured duration. The writer has to acquire the lock it uses to serialize access
	// to the proxy before calling ReaderProxy.PerformNackSupression.
	PerformNackSupression(reader rtps.GUID)
}

// ReaderProxy keeps the state of one remote reader regarding a reliable writer: which
// changes are unsent, in flight, unacknowledged, requested or acknowledged.
//
// A ReaderProxy is not safe for concurrent use. The owning writer must serialize all calls,
// including those triggered by the nack-supression timer.
type ReaderProxy struct {
	isActive   bool
	attributes RemoteReaderAttributes
	writer     Writer

	guidAsSlice []rtps.GUID

	// changes are ordered by their strictly increasing sequence numbers
	changes []ChangeForReader

	nackSupressionEvent *utils.TimedEvent
	// timersEnabled is accessed by sync.atomic functions; zero means disabled
	timersEnabled uint32

	lastAcknackCount  uint32
	lastNackfragCount uint32

	changesLowMark rtps.SequenceNumber
}

// NewReaderProxy for a writer. The proxy is inactive until Start is called.
func NewReaderProxy(times Times, writer Writer) *ReaderProxy {
	rp := &ReaderProxy{
		writer: writer,
	}

	rp.nackSupressionEvent = utils.NewTimedEvent(times.NackSupressionDuration, rp.onNackSupression)
	return rp
}

func (rp *ReaderProxy) log() *log.Entry {
	return log.WithField("reader", rp.attributes.GUID)
}

func (rp *ReaderProxy) onNackSupression() {
	if atomic.LoadUint32(&rp.timersEnabled) == 0 || rp.writer == nil {
		return
	}

	rp.writer.PerformNackSupression(rp.attributes.GUID)
}

// Start activates this proxy for a remote reader. All former state is reset.
func (rp *ReaderProxy) Start(attributes RemoteReaderAttributes) {
	rp.isActive = true
	rp.attributes = attributes
	rp.guidAsSlice = []rtps.GUID{attributes.GUID}

	rp.changes = nil
	rp.changesLowMark = rtps.SequenceNumber{}
	rp.lastAcknackCount = 0
	rp.lastNackfragCount = 0

	if attributes.Reliability == Reliable {
		atomic.StoreUint32(&rp.timersEnabled, 1)
	} else {
		atomic.StoreUint32(&rp.timersEnabled, 0)
	}

	rp.log().WithField("reliable", rp.IsReliable()).Debug("ReaderProxy started")
}

// Stop deactivates this proxy. Pending changes are dropped and timers are disabled; the proxy
// might be started again afterwards.
func (rp *ReaderProxy) Stop() {
	rp.isActive = false
	rp.disableTimers()
	rp.changes = nil

	rp.log().Debug("ReaderProxy stopped")
}

// Destroy stops the proxy for good, including its nack-supression timer. It waits for a
// running nack-supression callback, so the writer must not hold a lock its
// PerformNackSupression acquires.
func (rp *ReaderProxy) Destroy() {
	rp.Stop()
	rp.nackSupressionEvent.Stop()
}

// IsActive checks if a remote reader is associated.
func (rp *ReaderProxy) IsActive() bool {
	return rp.isActive
}

func (rp *ReaderProxy) disableTimers() {
	if atomic.CompareAndSwapUint32(&rp.timersEnabled, 1, 0) {
		rp.nackSupressionEvent.CancelTimer()
	}
}

func (rp *ReaderProxy) restartNackSupression() {
	if atomic.LoadUint32(&rp.timersEnabled) != 0 {
		rp.nackSupressionEvent.RestartTimer()
	}
}

// AddChange appends a change which was added to the writer's history. Its sequence number
// must be greater than every tracked one and the low mark.
func (rp *ReaderProxy) AddChange(change ChangeForReader, restartNackSupression bool) {
	if change.SequenceNumber.LessOrEqual(rp.changesLowMark) ||
		(len(rp.changes) > 0 && change.SequenceNumber.LessOrEqual(rp.changes[len(rp.changes)-1].SequenceNumber)) {
		rp.log().WithField("sequence number", change.SequenceNumber).Warn(
			"Ignoring change with a non increasing sequence number")
		return
	}

	rp.changes = append(rp.changes, change)

	if restartNackSupression {
		rp.restartNackSupression()
	}
}

// HasChanges checks if there are tracked changes pending for this reader.
func (rp *ReaderProxy) HasChanges() bool {
	return len(rp.changes) > 0
}

// ChangeIsAcked checks if a change was acknowledged. Irrelevant sequence numbers, i.e.,
// those without a tracked change, count as acknowledged.
func (rp *ReaderProxy) ChangeIsAcked(seq rtps.SequenceNumber) bool {
	if seq.LessOrEqual(rp.changesLowMark) {
		return true
	}

	idx, found := rp.findChange(seq)
	if !found {
		return true
	}
	return rp.changes[idx].status == Acknowledged
}

// AckedChangesSet acknowledges every change with a sequence number below seq.
func (rp *ReaderProxy) AckedChangesSet(seq rtps.SequenceNumber) {
	futureLowMark := seq

	if rp.changesLowMark.Less(seq) {
		idx := rp.lowerBound(seq)
		rp.eraseHead(idx)
	} else {
		// Acknowledgements lagging behind never move the low mark backwards.
		futureLowMark = rp.changesLowMark.Inc()
	}

	rp.changesLowMark = futureLowMark.Dec()
	rp.advanceOverAcknowledged()
}

// advanceOverAcknowledged drops leading changes which are already acknowledged.
func (rp *ReaderProxy) advanceOverAcknowledged() {
	n := 0
	for n < len(rp.changes) && rp.changes[n].status == Acknowledged {
		rp.changesLowMark = rp.changes[n].SequenceNumber
		n++
	}
	rp.eraseHead(n)
}

func (rp *ReaderProxy) eraseHead(n int) {
	if n <= 0 {
		return
	}
	rp.changes = append(rp.changes[:0], rp.changes[n:]...)
}

// RequestedChangesSet marks every tracked and not yet acknowledged change of the set as
// Requested. True is returned if at least one change was marked.
func (rp *ReaderProxy) RequestedChangesSet(set rtps.SequenceNumberSet) bool {
	requested := false

	set.ForEach(func(seq rtps.SequenceNumber) {
		if idx, found := rp.findChange(seq); found && rp.changes[idx].status != Acknowledged {
			rp.changes[idx].status = Requested
			rp.changes[idx].MarkAllFragmentsAsUnsent()
			requested = true
		}
	})

	if requested {
		rp.log().WithField("set", set).Debug("Requested changes")
	}
	return requested
}

// ProcessAcknack applies an incoming ACKNACK: stale or duplicate counts are ignored,
// everything below the set's base is acknowledged and the set's members are requested.
func (rp *ReaderProxy) ProcessAcknack(count uint32, set rtps.SequenceNumberSet) (accepted, requested bool) {
	if !rp.CheckAndSetAcknackCount(count) {
		return
	}

	accepted = true
	rp.AckedChangesSet(set.Base)
	requested = rp.RequestedChangesSet(set)
	return
}

// ForEachUnsentChange calls f exactly once for every sequence number after the low mark up
// to, not including, maxSeq in increasing order. The change is passed for tracked changes
// with status Unsent and nil otherwise. A nil change is either a gap, i.e., an irrelevant
// sequence number, or a tracked change in another status; ChangeIsAcked tells them apart.
func (rp *ReaderProxy) ForEachUnsentChange(maxSeq rtps.SequenceNumber, f func(rtps.SequenceNumber, *ChangeForReader)) {
	current := rp.changesLowMark.Inc()

	for i := range rp.changes {
		changeSeq := rp.changes[i].SequenceNumber
		if maxSeq.LessOrEqual(changeSeq) {
			break
		}

		// Holes before this change are informed as irrelevant.
		for ; current.Less(changeSeq); current = current.Inc() {
			f(current, nil)
		}

		if rp.changes[i].status == Unsent {
			f(current, &rp.changes[i])
		} else {
			f(current, nil)
		}
		current = current.Inc()
	}

	// After the last change there may be a hole at the end.
	for ; current.Less(maxSeq); current = current.Inc() {
		f(current, nil)
	}
}

// SetChangeToStatus of a tracked change. True is returned if the status was changed.
// Acknowledged changes keep their status.
func (rp *ReaderProxy) SetChangeToStatus(seq rtps.SequenceNumber, status ChangeForReaderStatus, restartNackSupression bool) bool {
	if restartNackSupression {
		rp.restartNackSupression()
	}

	if seq.LessOrEqual(rp.changesLowMark) {
		return false
	}

	idx, found := rp.findChange(seq)
	if !found || rp.changes[idx].status == Acknowledged || rp.changes[idx].status == status {
		return false
	}

	rp.changes[idx].status = status
	if status == Acknowledged && idx == 0 {
		rp.advanceOverAcknowledged()
	}
	return true
}

// MarkFragmentAsSentForChange removes a fragment from the unsent fragments of a change. The
// found result reports if the change is tracked; wasLast if no unsent fragment remains.
func (rp *ReaderProxy) MarkFragmentAsSentForChange(seq rtps.SequenceNumber, fn rtps.FragmentNumber) (found, wasLast bool) {
	idx, found := rp.findChange(seq)
	if !found {
		return
	}

	wasLast = rp.changes[idx].MarkFragmentAsSent(fn)
	return
}

// PerformNackSupression turns all Underway changes into Unacknowledged ones.
func (rp *ReaderProxy) PerformNackSupression() bool {
	return rp.convertStatusOnAllChanges(Underway, Unacknowledged)
}

// PerformAcknackResponse turns all Requested changes into Unsent ones to be resent. Underway
// changes are regarded as Unacknowledged from now on, without waiting for the
// nack-supression timer.
func (rp *ReaderProxy) PerformAcknackResponse() bool {
	underway := rp.convertStatusOnAllChanges(Underway, Unacknowledged)
	requested := rp.convertStatusOnAllChanges(Requested, Unsent)
	return underway || requested
}

func (rp *ReaderProxy) convertStatusOnAllChanges(previous, next ChangeForReaderStatus) bool {
	changed := false
	for i := range rp.changes {
		if rp.changes[i].status == previous {
			rp.changes[i].status = next
			changed = true
		}
	}
	return changed
}

// ChangeHasBeenRemoved informs about a change evicted from the writer's history. If it was
// the next change to be acknowledged, the low mark moves past it.
func (rp *ReaderProxy) ChangeHasBeenRemoved(seq rtps.SequenceNumber) {
	if len(rp.changes) == 0 || seq.Less(rp.changes[0].SequenceNumber) {
		return
	}

	idx, found := rp.findChange(seq)
	if !found {
		return
	}

	rp.changes = append(rp.changes[:idx], rp.changes[idx+1:]...)

	if rp.changesLowMark.Inc() == seq {
		rp.AckedChangesSet(seq.Inc())
	}
}

// HasUnacknowledged checks for Unacknowledged changes.
func (rp *ReaderProxy) HasUnacknowledged() bool {
	for i := range rp.changes {
		if rp.changes[i].status == Unacknowledged {
			return true
		}
	}
	return false
}

// CheckAndSetAcknackCount accepts an ACKNACK count only if it is greater than the last one.
func (rp *ReaderProxy) CheckAndSetAcknackCount(count uint32) bool {
	if rp.lastAcknackCount < count {
		rp.lastAcknackCount = count
		return true
	}
	return false
}

// ProcessNackFrag applies an incoming NACK_FRAG. True is returned if a change was modified.
func (rp *ReaderProxy) ProcessNackFrag(reader rtps.GUID, count uint32, seq rtps.SequenceNumber, fragments rtps.FragmentNumberSet) bool {
	if rp.attributes.GUID != reader || rp.lastNackfragCount >= count {
		return false
	}

	rp.lastNackfragCount = count
	return rp.requestedFragmentSet(seq, fragments)
}

// requestedFragmentSet marks fragments of a change as unsent again and requests the change.
func (rp *ReaderProxy) requestedFragmentSet(seq rtps.SequenceNumber, fragments rtps.FragmentNumberSet) bool {
	idx, found := rp.findChange(seq)
	if !found || rp.changes[idx].status == Acknowledged {
		return false
	}

	rp.changes[idx].MarkFragmentsAsUnsent(fragments)

	// An unsent change stays unsent, it will be sent anyway.
	if rp.changes[idx].status != Unsent {
		rp.changes[idx].status = Requested
	}
	return true
}

// ChangesLowMark is the highest sequence number up to which everything was acknowledged.
func (rp *ReaderProxy) ChangesLowMark() rtps.SequenceNumber {
	return rp.changesLowMark
}

// UpdateNackSupressionInterval for the next timer (re)starts.
func (rp *ReaderProxy) UpdateNackSupressionInterval(interval time.Duration) {
	rp.nackSupressionEvent.UpdateInterval(interval)
}

// Change returns a copy of a tracked change. Modifying the copy does not affect the proxy.
func (rp *ReaderProxy) Change(seq rtps.SequenceNumber) (change ChangeForReader, found bool) {
	idx, found := rp.findChange(seq)
	if found {
		change = rp.changes[idx].clone()
	}
	return
}

// lowerBound returns the index of the first change not less than seq.
func (rp *ReaderProxy) lowerBound(seq rtps.SequenceNumber) int {
	return sort.Search(len(rp.changes), func(i int) bool {
		return seq.LessOrEqual(rp.changes[i].SequenceNumber)
	})
}

func (rp *ReaderProxy) findChange(seq rtps.SequenceNumber) (idx int, found bool) {
	idx = rp.lowerBound(seq)
	found = idx < len(rp.changes) && rp.changes[idx].SequenceNumber == seq
	return
}

// GUID of the remote reader.
func (rp *ReaderProxy) GUID() rtps.GUID {
	return rp.attributes.GUID
}

// GUIDAsSlice contains just the remote reader's GUID, for APIs addressing multiple readers.
func (rp *ReaderProxy) GUIDAsSlice() []rtps.GUID {
	return rp.guidAsSlice
}

// DurabilityKind of the remote reader.
func (rp *ReaderProxy) DurabilityKind() DurabilityKind {
	return rp.attributes.Durability
}

// ExpectsInlineQos of the remote reader.
func (rp *ReaderProxy) ExpectsInlineQos() bool {
	return rp.attributes.ExpectsInlineQos
}

// IsReliable checks the remote reader's reliability kind.
func (rp *ReaderProxy) IsReliable() bool {
	return rp.attributes.Reliability == Reliable
}

// Attributes of the remote reader.
func (rp *ReaderProxy) Attributes() RemoteReaderAttributes {
	return rp.attributes
}

// RemoteLocators are all unicast and multicast locators of the remote reader.
func (rp *ReaderProxy) RemoteLocators() []locator.Locator {
	locs := make([]locator.Locator, 0, len(rp.attributes.UnicastLocators)+len(rp.attributes.MulticastLocators))
	locs = append(locs, rp.attributes.UnicastLocators...)
	return append(locs, rp.attributes.MulticastLocators...)
}

// RemoteLocatorsShrinked prefers unicast locators and falls back to multicast ones.
func (rp *ReaderProxy) RemoteLocatorsShrinked() []locator.Locator {
	if len(rp.attributes.UnicastLocators) == 0 {
		return rp.attributes.MulticastLocators
	}
	return rp.attributes.UnicastLocators
}
