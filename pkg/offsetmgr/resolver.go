package offsetmgr

import (
	"fmt"

	"github.com/curtislarson/samza/pkg/kgolog"
	"github.com/curtislarson/samza/pkg/ssp"
)

// resolveOffsetsAfter is the first stage of starting-offset computation:
// group the loaded last-processed offsets by system and ask each system's
// admin for the offset to read *next*. Only entries the admin returns are
// adopted; anything it omits falls through to the later stages.
func (om *OffsetManager) resolveOffsetsAfter(loaded map[ssp.TaskName]map[ssp.SSP]ssp.Offset) error {
	bySystem := make(map[string]map[ssp.SSP]ssp.Offset)
	owner := make(map[ssp.SSP]ssp.TaskName)
	for task, offsets := range loaded {
		for s, off := range offsets {
			group := bySystem[s.System]
			if group == nil {
				group = make(map[ssp.SSP]ssp.Offset)
				bySystem[s.System] = group
			}
			group[s] = off
			owner[s] = task
		}
	}

	for systemName, group := range bySystem {
		admin, ok := om.systems.Admin(systemName)
		if !ok {
			om.logger.Log(kgolog.LevelWarn, "no admin registered for system, cannot compute offsets after checkpoint",
				"system", systemName, "partitions", len(group))
			continue
		}
		next, err := admin.GetOffsetsAfter(group)
		if err != nil {
			return fmt.Errorf("getting offsets after last processed for system %s: %w", systemName, err)
		}
		for s, off := range next {
			task, ok := owner[s]
			if !ok {
				continue
			}
			om.setStartingOffset(task, s, off)
		}
	}
	return nil
}

// resolveStartpoints is the second stage: each loaded startpoint is handed
// to its system's admin for resolution. A non-blank result overwrites
// whatever the checkpoint stage produced; a blank result or a resolution
// failure leaves the SSP as the checkpoint stage left it, and an SSP with
// no offset yet goes to the default fill. Failures never abort start.
func (om *OffsetManager) resolveStartpoints() {
	om.spMu.Lock()
	defer om.spMu.Unlock()
	for task, points := range om.startpoints {
		for s, point := range points {
			admin, ok := om.systems.Admin(s.System)
			if !ok {
				om.logger.Log(kgolog.LevelWarn, "no admin registered for system, cannot resolve startpoint",
					"system", s.System, "ssp", s.String())
				continue
			}
			off, err := admin.ResolveStartpointToOffset(s, point)
			if err != nil {
				rerr := &StartpointResolutionError{SSP: s, Err: err}
				om.logger.Log(kgolog.LevelWarn, "startpoint resolution failed, falling back",
					"task", task, "startpoint", point.String(), "err", rerr)
				continue
			}
			if off == "" {
				om.logger.Log(kgolog.LevelDebug, "startpoint resolved to no offset",
					"task", task, "ssp", s.String(), "startpoint", point.String())
				continue
			}
			om.logger.Log(kgolog.LevelInfo, "startpoint overrides starting offset",
				"task", task, "ssp", s.String(), "offset", off)
			om.setStartingOffset(task, s, off)
		}
	}
}

// fillDefaults is the final stage: any registered partition still without a
// starting offset takes the stream's configured default from the broker
// metadata. An empty stream falls back to the upcoming offset; a partition
// with no metadata at all is fatal.
func (om *OffsetManager) fillDefaults() error {
	for task, registered := range om.systemStreamPartitions {
		for s := range registered {
			if _, ok := om.startingOffsets[task][s]; ok {
				continue
			}
			setting := om.offsetSettings[s.SystemStream]
			pm, ok := setting.Metadata.Partitions[s.Partition]
			if !ok {
				return &MetadataMissing{SSP: s}
			}
			off, ok := pm.GetOffset(setting.DefaultOffset)
			if !ok {
				om.logger.Log(kgolog.LevelWarn, "stream has no offset for the configured default, falling back to upcoming",
					"ssp", s.String(), "default", setting.DefaultOffset.String())
				off, ok = pm.GetOffset(ssp.OffsetUpcoming)
				if !ok {
					return &MetadataMissing{SSP: s}
				}
			}
			om.logger.Log(kgolog.LevelDebug, "using default starting offset",
				"task", task, "ssp", s.String(), "offset", off)
			om.setStartingOffset(task, s, off)
		}
	}
	return nil
}

func (om *OffsetManager) setStartingOffset(task ssp.TaskName, s ssp.SSP, off ssp.Offset) {
	m := om.startingOffsets[task]
	if m == nil {
		m = make(map[ssp.SSP]ssp.Offset)
		om.startingOffsets[task] = m
	}
	m[s] = off
}
