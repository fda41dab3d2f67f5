package startpointstore

import (
	"sync"

	"github.com/curtislarson/samza/pkg/ssp"
)

// Manager is the durable store of pending operator fan-out entries, shared
// between the outer job bootstrap (which produces fan-out) and the offset
// manager (which absorbs it into checkpoints and removes it once done).
type Manager interface {
	Start() error
	Stop() error

	// GetFanOutForTask returns the pending startpoint overrides for a task,
	// or nil if none are pending.
	GetFanOutForTask(task ssp.TaskName) (map[ssp.SSP]Startpoint, error)

	// RemoveFanOutForTask deletes every pending entry for a task, called
	// once its startpoints have been absorbed into a checkpoint.
	RemoveFanOutForTask(task ssp.TaskName) error
}

// MemoryManager is a reference Manager backed by an in-process map: a keyed
// store with a bulk per-task removal operation. A metadata-store-backed
// implementation (e.g. etcd, ZooKeeper) would satisfy the same interface.
type MemoryManager struct {
	mu      sync.Mutex
	started bool
	fanOut  map[ssp.TaskName]map[ssp.SSP]Startpoint
}

func NewMemoryManager() *MemoryManager {
	return &MemoryManager{fanOut: make(map[ssp.TaskName]map[ssp.SSP]Startpoint)}
}

func (m *MemoryManager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
	return nil
}

func (m *MemoryManager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = false
	return nil
}

// Put registers a pending fan-out entry for a task. Used by tests and by
// whatever outer component actually accepts operator overrides.
func (m *MemoryManager) Put(task ssp.TaskName, s ssp.SSP, point Startpoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fanOut[task] == nil {
		m.fanOut[task] = make(map[ssp.SSP]Startpoint)
	}
	m.fanOut[task][s] = point
}

func (m *MemoryManager) GetFanOutForTask(task ssp.TaskName) (map[ssp.SSP]Startpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.fanOut[task]
	if len(entries) == 0 {
		return nil, nil
	}
	out := make(map[ssp.SSP]Startpoint, len(entries))
	for k, v := range entries {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryManager) RemoveFanOutForTask(task ssp.TaskName) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.fanOut, task)
	return nil
}
