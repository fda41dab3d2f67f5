// Package ssp holds the core value types the offset-coordination runtime is
// built around: streams, partitions, SSPs, offsets, and task names. Nothing
// in this package parses an offset or talks to a broker; it only defines
// identity and equality.
package ssp

import (
	"fmt"
	"strings"
)

// SystemStream identifies a named, partitioned source by (system, stream).
// Immutable once constructed.
type SystemStream struct {
	System string
	Stream string
}

func (s SystemStream) String() string {
	return fmt.Sprintf("%s.%s", s.System, s.Stream)
}

// Partition is a non-negative index within a SystemStream.
type Partition int32

// SSP is a SystemStreamPartition: one addressable partition of a stream.
// Equality and hashing are by value, so an SSP is safe to use as a map key.
//
// Under the elasticity extension an SSP may additionally carry a KeyBucket;
// when KeyBucket is set (HasKeyBucket is true) it participates in identity.
type SSP struct {
	SystemStream
	Partition Partition

	HasKeyBucket bool
	KeyBucket    int32
}

func New(system, stream string, partition Partition) SSP {
	return SSP{SystemStream: SystemStream{System: system, Stream: stream}, Partition: partition}
}

// WithKeyBucket returns a copy of s carrying the given elasticity key bucket.
func (s SSP) WithKeyBucket(bucket int32) SSP {
	s.HasKeyBucket = true
	s.KeyBucket = bucket
	return s
}

func (s SSP) String() string {
	if s.HasKeyBucket {
		return fmt.Sprintf("%s.%s.%d#%d", s.System, s.Stream, s.Partition, s.KeyBucket)
	}
	return fmt.Sprintf("%s.%s.%d", s.System, s.Stream, s.Partition)
}

// TaskName is the opaque identifier of a logical task. A task owns a set of
// SSPs disjoint across tasks within one container.
type TaskName string

// Offset is a broker-defined cursor within a partition. The core never
// parses it; ordering is requested from the owning SystemAdmin.
type Offset string

// EndOfStream is the sentinel RuntimeTracker.Update treats as a no-op: a
// reader that has hit the end of a partition has nothing new to record.
const EndOfStream Offset = "END_OF_STREAM"

// OffsetType is the enumerated default-offset policy for a stream.
type OffsetType int

const (
	// OffsetTypeUnspecified is the zero value; never a legal resolved policy.
	OffsetTypeUnspecified OffsetType = iota
	OffsetOldest
	OffsetNewest
	// OffsetUpcoming is the safe default when no policy is configured.
	OffsetUpcoming
)

func (t OffsetType) String() string {
	switch t {
	case OffsetOldest:
		return "oldest"
	case OffsetNewest:
		return "newest"
	case OffsetUpcoming:
		return "upcoming"
	default:
		return "unspecified"
	}
}

// ParseOffsetType parses a case-insensitive configuration string. Unknown
// values are the caller's responsibility to reject (ConfigError).
func ParseOffsetType(s string) (OffsetType, bool) {
	switch strings.ToLower(s) {
	case "oldest":
		return OffsetOldest, true
	case "newest":
		return OffsetNewest, true
	case "upcoming":
		return OffsetUpcoming, true
	default:
		return OffsetTypeUnspecified, false
	}
}
