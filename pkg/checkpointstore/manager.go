package checkpointstore

import (
	"sync"

	"github.com/curtislarson/samza/pkg/ssp"
)

// Manager is the durable checkpoint store the offset manager commits
// through.
type Manager interface {
	Start() error
	Stop() error
	Register(task ssp.TaskName) error

	ReadLastCheckpoint(task ssp.TaskName) (Checkpoint, error)

	// ReadAllCheckpoints returns the store's full checkpoint history,
	// used at start-up to detect whether a prior deploy ran with
	// elasticity enabled.
	ReadAllCheckpoints() (map[ssp.TaskName]Checkpoint, error)

	WriteCheckpoint(task ssp.TaskName, checkpoint Checkpoint) error
}

// MemoryManager is a reference Manager backed by an in-process map. It keeps
// the latest checkpoint of every task that has written one (each write
// replaces that task's previous checkpoint), and ReadAllCheckpoints returns
// all of them. A durable, topic-backed implementation would satisfy the
// same interface.
type MemoryManager struct {
	mu          sync.Mutex
	started     bool
	registered  map[ssp.TaskName]bool
	checkpoints map[ssp.TaskName]Checkpoint
}

func NewMemoryManager() *MemoryManager {
	return &MemoryManager{
		registered:  make(map[ssp.TaskName]bool),
		checkpoints: make(map[ssp.TaskName]Checkpoint),
	}
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

func (m *MemoryManager) Register(task ssp.TaskName) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registered[task] = true
	return nil
}

func (m *MemoryManager) ReadLastCheckpoint(task ssp.TaskName) (Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.checkpoints[task]
	if !ok {
		return nil, nil
	}
	return cp.Clone(), nil
}

func (m *MemoryManager) ReadAllCheckpoints() (map[ssp.TaskName]Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[ssp.TaskName]Checkpoint, len(m.checkpoints))
	for k, v := range m.checkpoints {
		out[k] = v.Clone()
	}
	return out, nil
}

func (m *MemoryManager) WriteCheckpoint(task ssp.TaskName, checkpoint Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[task] = checkpoint.Clone()
	return nil
}
