// Package offsetmgr implements the per-container offset coordination core:
// deriving per-stream offset settings, registering task partitions, computing
// starting offsets with strict startpoint > checkpoint > default precedence,
// tracking last-processed offsets while tasks run, and committing them
// through the checkpoint pipeline.
package offsetmgr

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/curtislarson/samza/pkg/checkpointstore"
	"github.com/curtislarson/samza/pkg/elasticity"
	"github.com/curtislarson/samza/pkg/kgolog"
	"github.com/curtislarson/samza/pkg/metrics"
	"github.com/curtislarson/samza/pkg/ssp"
	"github.com/curtislarson/samza/pkg/startpointstore"
	"github.com/curtislarson/samza/pkg/system"
)

// State is the lifecycle state of an OffsetManager. Transitions are
// monotonic: UNINIT -> REGISTERING -> STARTED -> STOPPED.
type State int32

const (
	StateUninit State = iota
	StateRegistering
	StateStarted
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninit:
		return "UNINIT"
	case StateRegistering:
		return "REGISTERING"
	case StateStarted:
		return "STARTED"
	case StateStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// OffsetManager is the one-per-container coordination core. A single
// controller thread drives Register/Start/Stop; after Start, reader threads
// call Update concurrently (one writer per task) and commit threads call
// WriteCheckpoint/GetModifiedOffsets, serialized per task.
type OffsetManager struct {
	logger  kgolog.Logger
	systems *system.Registry
	metrics *metrics.Registry

	checkpointManager checkpointstore.Manager
	startpointManager startpointstore.Manager
	remap             elasticity.Strategy

	offsetSettings map[ssp.SystemStream]OffsetSetting

	// mu guards state transitions, registration, and the start sequence.
	// Hot-path state checks read the atomic instead.
	mu    sync.Mutex
	state atomic.Int32

	// systemStreamPartitions and startingOffsets are written only before
	// the transition to STARTED and are read-only afterward.
	systemStreamPartitions map[ssp.TaskName]map[ssp.SSP]struct{}
	startingOffsets        map[ssp.TaskName]map[ssp.SSP]ssp.Offset

	// lastProcessed is the two-level concurrent structure: the outer map is
	// frozen at start, each inner taskOffsets is guarded by its own lock.
	lastProcessed map[ssp.TaskName]*taskOffsets

	// commitMu serializes the commit pipeline per task.
	commitMu map[ssp.TaskName]*sync.Mutex

	// spMu guards startpoints and the stopped flag; entries are removed as
	// tasks absorb their startpoints into checkpoints.
	spMu                     sync.Mutex
	startpoints              map[ssp.TaskName]map[ssp.SSP]startpointstore.Startpoint
	startpointManagerStopped bool
}

// Opt configures an OffsetManager at construction.
type Opt func(*OffsetManager)

// WithCheckpointManager wires the durable checkpoint store. Without one, the
// manager starts from defaults and WriteCheckpoint only drives listeners.
func WithCheckpointManager(m checkpointstore.Manager) Opt {
	return func(om *OffsetManager) { om.checkpointManager = m }
}

// WithStartpointManager wires the shared startpoint fan-out store. The
// manager does not own its lifecycle beyond opportunistically stopping it
// once no startpoints are pending.
func WithStartpointManager(m startpointstore.Manager) Opt {
	return func(om *OffsetManager) { om.startpointManager = m }
}

// WithMetrics wires the per-SSP offset gauges and commit metrics.
func WithMetrics(r *metrics.Registry) Opt {
	return func(om *OffsetManager) { om.metrics = r }
}

// WithLogger replaces the default no-op logger.
func WithLogger(l kgolog.Logger) Opt {
	return func(om *OffsetManager) { om.logger = l }
}

// WithElasticityStrategy replaces the default identity remap used when the
// checkpoint history shows a prior elastic deploy.
func WithElasticityStrategy(s elasticity.Strategy) Opt {
	return func(om *OffsetManager) { om.remap = s }
}

// New constructs a manager in REGISTERING state. settings must cover every
// stream that will be registered; systems must hold an Admin for every
// system that will be registered.
func New(settings map[ssp.SystemStream]OffsetSetting, systems *system.Registry, opts ...Opt) *OffsetManager {
	om := &OffsetManager{
		logger:                 kgolog.Nop,
		systems:                systems,
		remap:                  elasticity.Identity{},
		offsetSettings:         settings,
		systemStreamPartitions: make(map[ssp.TaskName]map[ssp.SSP]struct{}),
		startingOffsets:        make(map[ssp.TaskName]map[ssp.SSP]ssp.Offset),
		lastProcessed:          make(map[ssp.TaskName]*taskOffsets),
		commitMu:               make(map[ssp.TaskName]*sync.Mutex),
		startpoints:            make(map[ssp.TaskName]map[ssp.SSP]startpointstore.Startpoint),
	}
	for _, opt := range opts {
		opt(om)
	}
	om.state.Store(int32(StateRegistering))
	return om
}

// State returns the current lifecycle state.
func (om *OffsetManager) State() State { return State(om.state.Load()) }

func (om *OffsetManager) requireState(op string, want State) error {
	if got := om.State(); got != want {
		return &LifecycleError{Operation: op, State: got}
	}
	return nil
}

// Register records that this container owns the given partitions for task.
// Legal only before Start. Each partition's stream must have an
// OffsetSetting; per-SSP metrics gauges are created here with an empty
// initial value.
func (om *OffsetManager) Register(task ssp.TaskName, ssps ...ssp.SSP) error {
	om.mu.Lock()
	defer om.mu.Unlock()
	if err := om.requireState("register", StateRegistering); err != nil {
		return err
	}
	for _, s := range ssps {
		if _, ok := om.offsetSettings[s.SystemStream]; !ok {
			return &ConfigError{Stream: s.SystemStream, Reason: "registered partition has no offset settings"}
		}
	}
	set := om.systemStreamPartitions[task]
	if set == nil {
		set = make(map[ssp.SSP]struct{})
		om.systemStreamPartitions[task] = set
	}
	for _, s := range ssps {
		set[s] = struct{}{}
		if om.metrics != nil {
			om.metrics.RegisterPartition(s)
		}
	}
	return nil
}

// Start computes starting offsets and transitions to STARTED. Sequence:
// start and register with the checkpoint store, load checkpoints (remapped
// if the history shows a prior elastic deploy), strip reset streams,
// resolve "offset after last processed" per system, load and resolve
// startpoints (which overwrite checkpointed positions), then default-fill
// anything still missing. Fatal errors abort start-up; store errors are
// propagated unchanged.
func (om *OffsetManager) Start() error {
	om.mu.Lock()
	defer om.mu.Unlock()
	if err := om.requireState("start", StateRegistering); err != nil {
		return err
	}

	loaded, err := om.loadCheckpoints()
	if err != nil {
		return err
	}
	if err := om.stripResets(loaded); err != nil {
		return err
	}
	if err := om.resolveOffsetsAfter(loaded); err != nil {
		return err
	}
	if err := om.loadStartpoints(); err != nil {
		return err
	}
	om.resolveStartpoints()
	if err := om.fillDefaults(); err != nil {
		return err
	}

	for task, ssps := range om.systemStreamPartitions {
		to := &taskOffsets{offsets: make(map[ssp.SSP]ssp.Offset, len(ssps))}
		for s, off := range loaded[task] {
			to.offsets[s] = off
		}
		om.lastProcessed[task] = to
		om.commitMu[task] = &sync.Mutex{}
	}

	om.state.Store(int32(StateStarted))
	om.logger.Log(kgolog.LevelInfo, "offset manager started",
		"tasks", len(om.systemStreamPartitions),
		"startpoints", len(om.startpoints))
	return nil
}

// Stop stops the checkpoint store and the startpoint manager if configured.
// Idempotent once started; illegal before Start. It does not interrupt
// in-flight listener or store calls.
func (om *OffsetManager) Stop() error {
	om.mu.Lock()
	defer om.mu.Unlock()
	switch om.State() {
	case StateStopped:
		return nil
	case StateStarted:
	default:
		return &LifecycleError{Operation: "stop", State: om.State()}
	}

	var errs []error
	if om.checkpointManager != nil {
		if err := om.checkpointManager.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	om.stopStartpointManager()
	om.state.Store(int32(StateStopped))
	om.logger.Log(kgolog.LevelInfo, "offset manager stopped")
	return errors.Join(errs...)
}

// stopStartpointManager stops the shared startpoint manager exactly once.
func (om *OffsetManager) stopStartpointManager() {
	if om.startpointManager == nil {
		return
	}
	om.spMu.Lock()
	if om.startpointManagerStopped {
		om.spMu.Unlock()
		return
	}
	om.startpointManagerStopped = true
	om.spMu.Unlock()
	if err := om.startpointManager.Stop(); err != nil {
		om.logger.Log(kgolog.LevelWarn, "stopping startpoint manager failed", "err", err)
	}
}

// StartingOffset returns the offset task should begin reading s from.
func (om *OffsetManager) StartingOffset(task ssp.TaskName, s ssp.SSP) (ssp.Offset, bool, error) {
	if err := om.requireState("getStartingOffset", StateStarted); err != nil {
		return "", false, err
	}
	off, ok := om.startingOffsets[task][s]
	return off, ok, nil
}

// StartingOffsets returns a copy of every starting offset for task.
func (om *OffsetManager) StartingOffsets(task ssp.TaskName) (map[ssp.SSP]ssp.Offset, error) {
	if err := om.requireState("getStartingOffsets", StateStarted); err != nil {
		return nil, err
	}
	out := make(map[ssp.SSP]ssp.Offset, len(om.startingOffsets[task]))
	for s, off := range om.startingOffsets[task] {
		out[s] = off
	}
	return out, nil
}

// Startpoints returns a copy of the pending startpoints for task, for
// diagnostics; entries disappear once absorbed into a checkpoint.
func (om *OffsetManager) Startpoints(task ssp.TaskName) map[ssp.SSP]startpointstore.Startpoint {
	om.spMu.Lock()
	defer om.spMu.Unlock()
	entries := om.startpoints[task]
	if len(entries) == 0 {
		return nil
	}
	out := make(map[ssp.SSP]startpointstore.Startpoint, len(entries))
	for s, p := range entries {
		out[s] = p
	}
	return out
}

// Snapshot returns a whole-manager copy of last-processed offsets across
// all tasks, for diagnostics. Best-effort: it takes each task's lock in
// turn, so the result is consistent per task but not across tasks.
func (om *OffsetManager) Snapshot() map[ssp.TaskName]map[ssp.SSP]ssp.Offset {
	out := make(map[ssp.TaskName]map[ssp.SSP]ssp.Offset, len(om.lastProcessed))
	for task, to := range om.lastProcessed {
		out[task] = to.snapshot()
	}
	return out
}
