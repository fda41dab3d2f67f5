// Package system defines the per-system broker adapter (Admin) and the
// consumer-side commit hook (CheckpointListener). This package holds no
// concrete broker logic; see pkg/kafkasystem for an Admin backed by
// franz-go.
package system

import (
	"github.com/curtislarson/samza/pkg/ssp"
	"github.com/curtislarson/samza/pkg/startpointstore"
)

// Comparison is the result of SystemAdmin.OffsetComparator: negative if a
// sorts before b, zero if equal, positive if a sorts after b. Incomparable
// is returned when the admin cannot order the two opaque offsets at all.
type Comparison struct {
	Result       int
	Incomparable bool
}

func Less(c Comparison) bool { return !c.Incomparable && c.Result < 0 }

// Admin is the per-system broker adapter. One Admin exists per system name;
// the offset manager looks one up from a registration table rather than
// assuming any class hierarchy.
type Admin interface {
	// GetOffsetsAfter returns, for each input SSP, the offset to read
	// *next* after the given last-processed offset. The admin may return
	// fewer or more entries than given; only returned entries are adopted.
	GetOffsetsAfter(offsets map[ssp.SSP]ssp.Offset) (map[ssp.SSP]ssp.Offset, error)

	// ResolveStartpointToOffset resolves an operator override to a
	// concrete offset. An empty Offset result means "no opinion": the
	// checkpoint-derived offset stands, or the stream's default if there
	// is none. An error falls through the same way, logged by the caller.
	ResolveStartpointToOffset(s ssp.SSP, point startpointstore.Startpoint) (ssp.Offset, error)

	// OffsetComparator orders two offsets of partitions this admin owns.
	OffsetComparator(a, b ssp.Offset) Comparison
}

// CheckpointListener is the optional, per-system consumer-side hook
// invoked around a commit.
type CheckpointListener interface {
	// BeforeCheckpoint is called pre-commit once at least one SSP of this
	// system has progressed to or past its starting offset; it may
	// rewrite the offsets about to be checkpointed.
	BeforeCheckpoint(offsets map[ssp.SSP]ssp.Offset) (map[ssp.SSP]ssp.Offset, error)

	// OnCheckpoint is called after the checkpoint store write succeeds,
	// with only the SSPs of this system that the offset manager manages.
	OnCheckpoint(offsets map[ssp.SSP]ssp.Offset) error
}

// Registry looks up an Admin or CheckpointListener by system name. The core
// depends on this instead of a hard-coded map so callers can swap in
// whatever discovery mechanism the container uses.
type Registry struct {
	admins    map[string]Admin
	listeners map[string]CheckpointListener
}

func NewRegistry() *Registry {
	return &Registry{admins: make(map[string]Admin), listeners: make(map[string]CheckpointListener)}
}

func (r *Registry) RegisterAdmin(system string, admin Admin) {
	r.admins[system] = admin
}

func (r *Registry) RegisterListener(system string, listener CheckpointListener) {
	r.listeners[system] = listener
}

func (r *Registry) Admin(system string) (Admin, bool) {
	a, ok := r.admins[system]
	return a, ok
}

func (r *Registry) Listener(system string) (CheckpointListener, bool) {
	l, ok := r.listeners[system]
	return l, ok
}

func (r *Registry) HasListeners() bool { return len(r.listeners) > 0 }
