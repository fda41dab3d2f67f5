// Package checkpointstore defines the Checkpoint type and the
// CheckpointManager interface, plus an in-memory reference implementation.
package checkpointstore

import "github.com/curtislarson/samza/pkg/ssp"

// Checkpoint is a durable snapshot of SSP -> Offset for one task, captured
// at commit time. It may carry SSPs beyond the container's registered set
// (e.g. changelog partitions owned by state management); those extras pass
// through to the store but never reach the offset manager's listener or
// tracker paths.
type Checkpoint map[ssp.SSP]ssp.Offset

func (c Checkpoint) Clone() Checkpoint {
	out := make(Checkpoint, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
