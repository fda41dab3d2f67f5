package offsetmgr

import (
	"github.com/curtislarson/samza/pkg/kgolog"
	"github.com/curtislarson/samza/pkg/ssp"
	"github.com/curtislarson/samza/pkg/startpointstore"
)

// loadStartpoints reads each registered task's pending fan-out entries from
// the startpoint store, keeping only entries for partitions the task
// actually owns. If nothing is pending across all tasks the startpoint
// manager is stopped immediately; otherwise it stays open so the commit
// pipeline can remove each task's fan-out once it is absorbed into a
// checkpoint.
func (om *OffsetManager) loadStartpoints() error {
	if om.startpointManager == nil {
		return nil
	}
	if err := om.startpointManager.Start(); err != nil {
		return err
	}

	om.spMu.Lock()
	defer om.spMu.Unlock()
	for task, registered := range om.systemStreamPartitions {
		fanOut, err := om.startpointManager.GetFanOutForTask(task)
		if err != nil {
			return err
		}
		kept := make(map[ssp.SSP]startpointstore.Startpoint, len(fanOut))
		for s, point := range fanOut {
			if _, ok := registered[s]; !ok {
				om.logger.Log(kgolog.LevelWarn, "ignoring startpoint for partition not registered to task",
					"task", task, "ssp", s.String())
				continue
			}
			kept[s] = point
		}
		if len(kept) > 0 {
			om.startpoints[task] = kept
			om.logger.Log(kgolog.LevelInfo, "loaded startpoints", "task", task, "count", len(kept))
		}
	}

	if len(om.startpoints) == 0 {
		om.startpointManagerStopped = true
		if err := om.startpointManager.Stop(); err != nil {
			om.logger.Log(kgolog.LevelWarn, "stopping startpoint manager failed", "err", err)
		}
	}
	return nil
}
