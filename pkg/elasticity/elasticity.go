// Package elasticity reshapes a task's historical checkpoint offsets to its
// current SSP set when a prior deploy subdivided partitions by key bucket.
package elasticity

import "github.com/curtislarson/samza/pkg/ssp"

// Strategy reshapes a task's historical checkpoint offsets to its current
// SSP set. The default identity strategy is used when no elasticity-aware
// strategy is configured.
type Strategy interface {
	Remap(
		task ssp.TaskName,
		current map[ssp.SSP]struct{},
		historical map[ssp.SSP]ssp.Offset,
		admins AdminLookup,
	) (map[ssp.SSP]ssp.Offset, error)
}

// AdminLookup resolves the per-system ordering admin a remap strategy may
// need to reconcile overlapping key buckets. Kept minimal and separate from
// pkg/system.Registry to avoid this package depending on pkg/system.
type AdminLookup interface {
	OffsetComparator(system string, a, b ssp.Offset) (result int, incomparable bool)
}

// Identity is the default strategy: the historical map restricted to SSPs
// present in current, passed through unchanged. This is correct whenever no
// deploy in the task's history ever ran with elasticity enabled.
type Identity struct{}

func (Identity) Remap(_ ssp.TaskName, current map[ssp.SSP]struct{}, historical map[ssp.SSP]ssp.Offset, _ AdminLookup) (map[ssp.SSP]ssp.Offset, error) {
	out := make(map[ssp.SSP]ssp.Offset, len(current))
	for s := range current {
		if off, ok := historical[s]; ok {
			out[s] = off
		}
	}
	return out, nil
}

// KeyBucketAware handles the case where the historical checkpoint was
// written against coarser SSPs than the task's current key-bucketed set: a
// current bucketed SSP without a direct historical match falls back to the
// offset of its parent SSP (same system/stream/partition, no bucket), if
// one was checkpointed. This lets a container move from non-elastic to
// elastic partitioning across a deploy without losing progress. A current
// SSP without a bucket takes only a direct match; offsets of bucketed
// historical SSPs are not carried over to it.
type KeyBucketAware struct{}

func (KeyBucketAware) Remap(_ ssp.TaskName, current map[ssp.SSP]struct{}, historical map[ssp.SSP]ssp.Offset, _ AdminLookup) (map[ssp.SSP]ssp.Offset, error) {
	out := make(map[ssp.SSP]ssp.Offset, len(current))
	for s := range current {
		if off, ok := historical[s]; ok {
			out[s] = off
			continue
		}
		if !s.HasKeyBucket {
			continue
		}
		parent := s
		parent.HasKeyBucket = false
		parent.KeyBucket = 0
		if off, ok := historical[parent]; ok {
			out[s] = off
		}
	}
	return out, nil
}
