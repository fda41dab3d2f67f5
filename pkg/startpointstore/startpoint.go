// Package startpointstore defines the Startpoint override type and the
// StartpointManager interface, plus an in-memory reference implementation
// suitable for tests and small deployments.
package startpointstore

import (
	"fmt"
	"time"
)

// Kind enumerates the Startpoint variants.
type Kind int

const (
	KindUnspecified Kind = iota
	// KindSpecificOffset pins a partition to an exact broker offset.
	KindSpecificOffset
	// KindTimestamp asks the owning SystemAdmin to resolve the offset at or
	// after a wall-clock time.
	KindTimestamp
	KindOldest
	KindUpcoming
	// KindCustom carries an opaque payload a particular SystemAdmin knows
	// how to interpret; any other admin should fail the resolution, which
	// leaves the checkpoint-derived starting offset, or the stream's
	// default when there is none.
	KindCustom
)

func (k Kind) String() string {
	switch k {
	case KindSpecificOffset:
		return "specific-offset"
	case KindTimestamp:
		return "timestamp"
	case KindOldest:
		return "oldest"
	case KindUpcoming:
		return "upcoming"
	case KindCustom:
		return "custom"
	default:
		return "unspecified"
	}
}

// Startpoint is a polymorphic, operator-issued override of the starting
// position for one SSP. Resolution to a concrete offset is delegated to the
// owning SystemAdmin; the offset manager never interprets these fields
// itself.
type Startpoint struct {
	Kind Kind

	// Offset is populated for KindSpecificOffset.
	Offset string

	// Timestamp is populated for KindTimestamp.
	Timestamp time.Time

	// Custom is populated for KindCustom; opaque to everything but the
	// SystemAdmin that understands it.
	Custom string

	// CreatedAt records when the operator issued the override, for
	// diagnostics only; it plays no role in resolution.
	CreatedAt time.Time
}

func (s Startpoint) String() string {
	switch s.Kind {
	case KindSpecificOffset:
		return fmt.Sprintf("startpoint(offset=%s)", s.Offset)
	case KindTimestamp:
		return fmt.Sprintf("startpoint(timestamp=%s)", s.Timestamp)
	case KindCustom:
		return fmt.Sprintf("startpoint(custom=%s)", s.Custom)
	default:
		return fmt.Sprintf("startpoint(%s)", s.Kind)
	}
}

func SpecificOffset(offset string) Startpoint {
	return Startpoint{Kind: KindSpecificOffset, Offset: offset, CreatedAt: time.Now()}
}

func AtTimestamp(t time.Time) Startpoint {
	return Startpoint{Kind: KindTimestamp, Timestamp: t, CreatedAt: time.Now()}
}

func Oldest() Startpoint {
	return Startpoint{Kind: KindOldest, CreatedAt: time.Now()}
}

func Upcoming() Startpoint {
	return Startpoint{Kind: KindUpcoming, CreatedAt: time.Now()}
}

func Custom(payload string) Startpoint {
	return Startpoint{Kind: KindCustom, Custom: payload, CreatedAt: time.Now()}
}
