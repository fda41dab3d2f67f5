package offsetmgr

import (
	"fmt"
	"time"

	"github.com/curtislarson/samza/pkg/checkpointstore"
	"github.com/curtislarson/samza/pkg/kgolog"
	"github.com/curtislarson/samza/pkg/ssp"
	"github.com/curtislarson/samza/pkg/system"
)

// WriteCheckpoint durably commits task's checkpoint. The full checkpoint,
// including partitions the core does not manage (e.g. changelog
// partitions), goes to the store; registered partitions then flow to each
// system's CheckpointListener; finally the task's absorbed startpoints are
// pruned from the startpoint store.
//
// The store write happens before listeners are notified, so listeners must
// be idempotent and cannot veto a commit. Any store or listener error is
// returned with in-memory startpoint state untouched, making the whole call
// retriable. Calls are serialized per task; a nil checkpoint is a no-op.
func (om *OffsetManager) WriteCheckpoint(task ssp.TaskName, cp checkpointstore.Checkpoint) error {
	if err := om.requireState("writeCheckpoint", StateStarted); err != nil {
		return err
	}
	if cp == nil {
		return nil
	}
	if om.checkpointManager == nil && !om.systems.HasListeners() {
		return nil
	}
	mu, ok := om.commitMu[task]
	if !ok {
		return fmt.Errorf("offsetmgr: writeCheckpoint for unregistered task %s", task)
	}
	mu.Lock()
	defer mu.Unlock()
	begin := time.Now()

	if om.checkpointManager != nil {
		if err := om.checkpointManager.WriteCheckpoint(task, cp); err != nil {
			return err
		}
		if om.metrics != nil {
			for s, off := range cp {
				om.metrics.ObserveCheckpointedOffset(s, off)
			}
		}
	}

	for systemName, offsets := range om.groupRegisteredBySystem(task, cp) {
		listener, ok := om.systems.Listener(systemName)
		if !ok {
			continue
		}
		if err := listener.OnCheckpoint(offsets); err != nil {
			return fmt.Errorf("checkpoint listener for system %s: %w", systemName, err)
		}
	}

	if err := om.pruneStartpoints(task); err != nil {
		return err
	}

	if om.metrics != nil {
		om.metrics.ObserveCommit(string(task), time.Since(begin).Seconds())
	}
	om.logger.Log(kgolog.LevelDebug, "wrote checkpoint", "task", task, "partitions", len(cp))
	return nil
}

// pruneStartpoints removes task's fan-out from the startpoint store once
// its overrides have been absorbed into a durable checkpoint, and stops the
// shared manager when no task has startpoints left.
func (om *OffsetManager) pruneStartpoints(task ssp.TaskName) error {
	if om.startpointManager == nil {
		return nil
	}
	om.spMu.Lock()
	_, pending := om.startpoints[task]
	om.spMu.Unlock()
	if !pending {
		return nil
	}

	if err := om.startpointManager.RemoveFanOutForTask(task); err != nil {
		return err
	}
	om.spMu.Lock()
	delete(om.startpoints, task)
	drained := len(om.startpoints) == 0
	om.spMu.Unlock()
	om.logger.Log(kgolog.LevelInfo, "removed startpoint fan-out after checkpoint", "task", task)
	if drained {
		om.stopStartpointManager()
	}
	return nil
}

// GetModifiedOffsets computes the offsets the container should checkpoint
// for task, giving each system's CheckpointListener a chance to rewrite
// them first. The base is the task's last-processed snapshot; a system's
// listener is consulted only once at least one of its partitions has
// progressed to or past its starting offset, since some brokers cannot
// produce a committable position before the first successful poll. Offsets
// the listener returns win over the tracked ones.
func (om *OffsetManager) GetModifiedOffsets(task ssp.TaskName) (map[ssp.SSP]ssp.Offset, error) {
	if err := om.requireState("getModifiedOffsets", StateStarted); err != nil {
		return nil, err
	}
	base, err := om.LastProcessedOffsets(task)
	if err != nil {
		return nil, err
	}

	modified := make(map[ssp.SSP]ssp.Offset, len(base))
	for s, off := range base {
		modified[s] = off
	}

	for systemName, offsets := range om.groupBySystem(base) {
		listener, ok := om.systems.Listener(systemName)
		if !ok {
			continue
		}
		if !om.anyProgressed(task, offsets) {
			om.logger.Log(kgolog.LevelDebug, "skipping pre-checkpoint listener, no partition has progressed past its starting offset",
				"task", task, "system", systemName)
			continue
		}
		rewritten, err := listener.BeforeCheckpoint(offsets)
		if err != nil {
			return nil, fmt.Errorf("pre-checkpoint listener for system %s: %w", systemName, err)
		}
		for s, off := range rewritten {
			modified[s] = off
		}
	}
	return modified, nil
}

// anyProgressed reports whether any partition's last-processed offset is no
// longer before its starting offset. An incomparable pair counts as
// progressed.
func (om *OffsetManager) anyProgressed(task ssp.TaskName, offsets map[ssp.SSP]ssp.Offset) bool {
	for s, last := range offsets {
		start, ok := om.startingOffsets[task][s]
		if !ok {
			return true
		}
		admin, ok := om.systems.Admin(s.System)
		if !ok {
			return true
		}
		if !system.Less(admin.OffsetComparator(last, start)) {
			return true
		}
	}
	return false
}

// groupRegisteredBySystem filters cp to the partitions registered to task
// and groups them by system name, the shape listeners are invoked with.
func (om *OffsetManager) groupRegisteredBySystem(task ssp.TaskName, cp checkpointstore.Checkpoint) map[string]map[ssp.SSP]ssp.Offset {
	registered := om.systemStreamPartitions[task]
	filtered := make(map[ssp.SSP]ssp.Offset, len(cp))
	for s, off := range cp {
		if _, ok := registered[s]; ok {
			filtered[s] = off
		}
	}
	return om.groupBySystem(filtered)
}

func (om *OffsetManager) groupBySystem(offsets map[ssp.SSP]ssp.Offset) map[string]map[ssp.SSP]ssp.Offset {
	out := make(map[string]map[ssp.SSP]ssp.Offset)
	for s, off := range offsets {
		group := out[s.System]
		if group == nil {
			group = make(map[ssp.SSP]ssp.Offset)
			out[s.System] = group
		}
		group[s] = off
	}
	return out
}
