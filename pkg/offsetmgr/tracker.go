package offsetmgr

import (
	"sync"

	"github.com/curtislarson/samza/pkg/ssp"
)

// taskOffsets is the inner level of the last-processed structure: one per
// task, guarded by its own lock so reader threads on distinct tasks never
// contend.
type taskOffsets struct {
	mu      sync.RWMutex
	offsets map[ssp.SSP]ssp.Offset
}

func (to *taskOffsets) get(s ssp.SSP) (ssp.Offset, bool) {
	to.mu.RLock()
	defer to.mu.RUnlock()
	off, ok := to.offsets[s]
	return off, ok
}

func (to *taskOffsets) set(s ssp.SSP, off ssp.Offset) {
	to.mu.Lock()
	to.offsets[s] = off
	to.mu.Unlock()
}

func (to *taskOffsets) snapshot() map[ssp.SSP]ssp.Offset {
	to.mu.RLock()
	defer to.mu.RUnlock()
	out := make(map[ssp.SSP]ssp.Offset, len(to.offsets))
	for s, off := range to.offsets {
		out[s] = off
	}
	return out
}

// Update records that task successfully processed s through offset. The
// incoming SSP may omit the key bucket the registered partition carries;
// exactly one registered partition must match. An empty offset or the
// end-of-stream sentinel leaves the tracked offset untouched.
func (om *OffsetManager) Update(task ssp.TaskName, s ssp.SSP, offset ssp.Offset) error {
	if err := om.requireState("update", StateStarted); err != nil {
		return err
	}
	resolved, err := om.resolveRegistered(task, s)
	if err != nil {
		return err
	}
	if offset == "" || offset == ssp.EndOfStream {
		return nil
	}
	om.lastProcessed[task].set(resolved, offset)
	return nil
}

// resolveRegistered finds the registered partition matching s for task.
// Matching is by system, stream, and partition; when s carries a key bucket
// the bucket must match too. Anything other than exactly one match is an
// UnknownPartition.
func (om *OffsetManager) resolveRegistered(task ssp.TaskName, s ssp.SSP) (ssp.SSP, error) {
	var (
		match ssp.SSP
		count int
	)
	for registered := range om.systemStreamPartitions[task] {
		if registered.SystemStream != s.SystemStream || registered.Partition != s.Partition {
			continue
		}
		if s.HasKeyBucket && (!registered.HasKeyBucket || registered.KeyBucket != s.KeyBucket) {
			continue
		}
		match = registered
		count++
	}
	if count != 1 {
		return ssp.SSP{}, &UnknownPartition{Task: task, SSP: s}
	}
	return match, nil
}

// LastProcessedOffset returns the last offset task successfully processed
// on s, if any. The read is lock-free with respect to other tasks.
func (om *OffsetManager) LastProcessedOffset(task ssp.TaskName, s ssp.SSP) (ssp.Offset, bool, error) {
	if err := om.requireState("getLastProcessedOffset", StateStarted); err != nil {
		return "", false, err
	}
	to, ok := om.lastProcessed[task]
	if !ok {
		return "", false, nil
	}
	off, found := to.get(s)
	return off, found, nil
}

// LastProcessedOffsets returns a point-in-time copy of task's last-processed
// offsets, filtered to the partitions currently registered to it. Returns
// an empty map when neither a checkpoint store nor any listener is
// configured, since nothing would consume the snapshot.
func (om *OffsetManager) LastProcessedOffsets(task ssp.TaskName) (map[ssp.SSP]ssp.Offset, error) {
	if err := om.requireState("getLastProcessedOffsets", StateStarted); err != nil {
		return nil, err
	}
	if om.checkpointManager == nil && !om.systems.HasListeners() {
		return map[ssp.SSP]ssp.Offset{}, nil
	}
	to, ok := om.lastProcessed[task]
	if !ok {
		return map[ssp.SSP]ssp.Offset{}, nil
	}
	registered := om.systemStreamPartitions[task]
	out := to.snapshot()
	for s := range out {
		if _, ok := registered[s]; !ok {
			delete(out, s)
		}
	}
	return out, nil
}
