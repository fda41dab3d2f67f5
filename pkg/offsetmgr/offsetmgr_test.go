package offsetmgr

import (
	"errors"
	"strconv"

	"github.com/curtislarson/samza/pkg/checkpointstore"
	"github.com/curtislarson/samza/pkg/ssp"
	"github.com/curtislarson/samza/pkg/startpointstore"
	"github.com/curtislarson/samza/pkg/system"
)

var (
	errUnresolvable = errors.New("broker cannot resolve startpoint")
	errStoreDown    = errors.New("checkpoint store unavailable")
)

// failingCheckpointManager fails writes on demand to exercise the
// retriable-commit path.
type failingCheckpointManager struct {
	*checkpointstore.MemoryManager
	failWrites bool
}

func (f *failingCheckpointManager) WriteCheckpoint(task ssp.TaskName, cp checkpointstore.Checkpoint) error {
	if f.failWrites {
		return errStoreDown
	}
	return f.MemoryManager.WriteCheckpoint(task, cp)
}

// fakeAdmin behaves like a numeric-offset broker: "offset after" is +1 and
// the comparator is an integer compare. Hooks let tests override either.
type fakeAdmin struct {
	offsetsAfter func(map[ssp.SSP]ssp.Offset) (map[ssp.SSP]ssp.Offset, error)
	resolve      func(ssp.SSP, startpointstore.Startpoint) (ssp.Offset, error)
}

func (f *fakeAdmin) GetOffsetsAfter(offsets map[ssp.SSP]ssp.Offset) (map[ssp.SSP]ssp.Offset, error) {
	if f.offsetsAfter != nil {
		return f.offsetsAfter(offsets)
	}
	out := make(map[ssp.SSP]ssp.Offset, len(offsets))
	for s, off := range offsets {
		n, err := strconv.Atoi(string(off))
		if err != nil {
			continue
		}
		out[s] = ssp.Offset(strconv.Itoa(n + 1))
	}
	return out, nil
}

func (f *fakeAdmin) ResolveStartpointToOffset(s ssp.SSP, point startpointstore.Startpoint) (ssp.Offset, error) {
	if f.resolve != nil {
		return f.resolve(s, point)
	}
	if point.Kind == startpointstore.KindSpecificOffset {
		return ssp.Offset(point.Offset), nil
	}
	return "", nil
}

func (f *fakeAdmin) OffsetComparator(a, b ssp.Offset) system.Comparison {
	na, erra := strconv.Atoi(string(a))
	nb, errb := strconv.Atoi(string(b))
	if erra != nil || errb != nil {
		return system.Comparison{Incomparable: true}
	}
	switch {
	case na < nb:
		return system.Comparison{Result: -1}
	case na > nb:
		return system.Comparison{Result: 1}
	default:
		return system.Comparison{}
	}
}

// fakeListener records every invocation; hooks let tests rewrite offsets or
// inject failures.
type fakeListener struct {
	before    func(map[ssp.SSP]ssp.Offset) (map[ssp.SSP]ssp.Offset, error)
	onErr     error
	beforeGot []map[ssp.SSP]ssp.Offset
	onGot     []map[ssp.SSP]ssp.Offset
}

func (f *fakeListener) BeforeCheckpoint(offsets map[ssp.SSP]ssp.Offset) (map[ssp.SSP]ssp.Offset, error) {
	f.beforeGot = append(f.beforeGot, offsets)
	if f.before != nil {
		return f.before(offsets)
	}
	return offsets, nil
}

func (f *fakeListener) OnCheckpoint(offsets map[ssp.SSP]ssp.Offset) error {
	f.onGot = append(f.onGot, offsets)
	return f.onErr
}

// countingStartpointManager wraps the in-memory store to observe removals.
type countingStartpointManager struct {
	*startpointstore.MemoryManager
	removeCalls int
	stopCalls   int
}

func newCountingStartpointManager() *countingStartpointManager {
	return &countingStartpointManager{MemoryManager: startpointstore.NewMemoryManager()}
}

func (c *countingStartpointManager) RemoveFanOutForTask(task ssp.TaskName) error {
	c.removeCalls++
	return c.MemoryManager.RemoveFanOutForTask(task)
}

func (c *countingStartpointManager) Stop() error {
	c.stopCalls++
	return c.MemoryManager.Stop()
}

func mdPartition(oldest, newest, upcoming string) ssp.PartitionMetadata {
	var pm ssp.PartitionMetadata
	if oldest != "" {
		pm.Oldest, pm.HasOldest = ssp.Offset(oldest), true
	}
	if newest != "" {
		pm.Newest, pm.HasNewest = ssp.Offset(newest), true
	}
	if upcoming != "" {
		pm.Upcoming, pm.HasUpcoming = ssp.Offset(upcoming), true
	}
	return pm
}

func singleStreamSettings(stream ssp.SystemStream, def ssp.OffsetType, reset bool, partitions map[ssp.Partition]ssp.PartitionMetadata) map[ssp.SystemStream]OffsetSetting {
	return map[ssp.SystemStream]OffsetSetting{
		stream: {
			Stream:        stream,
			Metadata:      ssp.StreamMetadata{Partitions: partitions},
			DefaultOffset: def,
			ResetOffset:   reset,
		},
	}
}
