package offsetmgr

import (
	"github.com/curtislarson/samza/pkg/checkpointstore"
	"github.com/curtislarson/samza/pkg/kgolog"
	"github.com/curtislarson/samza/pkg/ssp"
	"github.com/curtislarson/samza/pkg/system"
)

// loadCheckpoints reads each registered task's last committed offsets from
// the checkpoint store. When the store's history shows a prior deploy ran
// with elasticity (any checkpointed SSP carries a key bucket), the task's
// effective offsets are instead derived by the configured remap strategy
// over the full history. Entries for SSPs that are no longer registered to
// the task, or whose stream has no offset settings, are dropped.
//
// Returns an empty map when no checkpoint store is configured. Store errors
// propagate unchanged so the container can decide whether to retry start-up.
func (om *OffsetManager) loadCheckpoints() (map[ssp.TaskName]map[ssp.SSP]ssp.Offset, error) {
	loaded := make(map[ssp.TaskName]map[ssp.SSP]ssp.Offset, len(om.systemStreamPartitions))
	if om.checkpointManager == nil {
		om.logger.Log(kgolog.LevelInfo, "no checkpoint manager configured, skipping checkpoint load")
		return loaded, nil
	}

	if err := om.checkpointManager.Start(); err != nil {
		return nil, err
	}
	for task := range om.systemStreamPartitions {
		if err := om.checkpointManager.Register(task); err != nil {
			return nil, err
		}
	}

	history, err := om.checkpointManager.ReadAllCheckpoints()
	if err != nil {
		return nil, err
	}
	elastic := historyHasKeyBuckets(history)
	if elastic {
		om.logger.Log(kgolog.LevelInfo, "checkpoint history contains key-bucketed partitions, applying elasticity remap")
	}

	for task, registered := range om.systemStreamPartitions {
		var offsets map[ssp.SSP]ssp.Offset
		if elastic {
			offsets, err = om.remap.Remap(task, registered, flattenCheckpoints(history), adminLookup{om.systems})
			if err != nil {
				return nil, err
			}
		} else {
			cp, err := om.checkpointManager.ReadLastCheckpoint(task)
			if err != nil {
				return nil, err
			}
			offsets = make(map[ssp.SSP]ssp.Offset, len(cp))
			for s, off := range cp {
				offsets[s] = off
			}
		}

		kept := make(map[ssp.SSP]ssp.Offset, len(offsets))
		for s, off := range offsets {
			if _, ok := om.offsetSettings[s.SystemStream]; !ok {
				om.logger.Log(kgolog.LevelInfo, "ignoring checkpointed offset for stream that is no longer an input",
					"task", task, "ssp", s.String(), "offset", off)
				continue
			}
			if _, ok := registered[s]; !ok {
				continue
			}
			kept[s] = off
		}
		if len(kept) > 0 {
			loaded[task] = kept
			om.logger.Log(kgolog.LevelDebug, "loaded checkpointed offsets", "task", task, "count", len(kept))
		}
	}
	return loaded, nil
}

// stripResets removes loaded offsets for streams configured with
// samza.reset.offset, so those partitions fall through to the default fill.
func (om *OffsetManager) stripResets(loaded map[ssp.TaskName]map[ssp.SSP]ssp.Offset) error {
	for task, offsets := range loaded {
		for s, off := range offsets {
			setting, ok := om.offsetSettings[s.SystemStream]
			if !ok {
				return &ConfigError{Stream: s.SystemStream, Reason: "attempting to reset a stream that has no offset settings"}
			}
			if setting.ResetOffset {
				om.logger.Log(kgolog.LevelInfo, "ignoring checkpointed offset for reset stream",
					"task", task, "ssp", s.String(), "offset", off)
				delete(offsets, s)
			}
		}
	}
	return nil
}

func historyHasKeyBuckets(history map[ssp.TaskName]checkpointstore.Checkpoint) bool {
	for _, cp := range history {
		for s := range cp {
			if s.HasKeyBucket {
				return true
			}
		}
	}
	return false
}

func flattenCheckpoints(history map[ssp.TaskName]checkpointstore.Checkpoint) map[ssp.SSP]ssp.Offset {
	out := make(map[ssp.SSP]ssp.Offset)
	for _, cp := range history {
		for s, off := range cp {
			out[s] = off
		}
	}
	return out
}

// adminLookup adapts the system registry to the narrower comparator lookup
// the elasticity strategies take.
type adminLookup struct {
	systems *system.Registry
}

func (l adminLookup) OffsetComparator(systemName string, a, b ssp.Offset) (int, bool) {
	admin, ok := l.systems.Admin(systemName)
	if !ok {
		return 0, true
	}
	c := admin.OffsetComparator(a, b)
	return c.Result, c.Incomparable
}
