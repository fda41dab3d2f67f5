package offsetmgr

import (
	"fmt"

	"github.com/curtislarson/samza/pkg/ssp"
)

// ConfigError is returned at start-up for an unrecognized OffsetType string
// or a reset requested against a stream with no OffsetSetting.
type ConfigError struct {
	Stream ssp.SystemStream
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("offsetmgr: config error for %s: %s", e.Stream, e.Reason)
}

// MetadataMissing is returned during the default fill when a registered
// partition has no broker metadata at all.
type MetadataMissing struct {
	SSP ssp.SSP
}

func (e *MetadataMissing) Error() string {
	return fmt.Sprintf("offsetmgr: no metadata for partition %s", e.SSP)
}

// UnknownPartition is returned by Update for a task/SSP that is not in the
// registry; it is a programmer error, never a runtime condition the caller
// should retry around.
type UnknownPartition struct {
	Task ssp.TaskName
	SSP  ssp.SSP
}

func (e *UnknownPartition) Error() string {
	return fmt.Sprintf("offsetmgr: task %s has no registered partition matching %s", e.Task, e.SSP)
}

// LifecycleError is returned when an operation is invoked in the wrong
// lifecycle state.
type LifecycleError struct {
	Operation string
	State     State
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("offsetmgr: %s is illegal in state %s", e.Operation, e.State)
}

// StartpointResolutionError wraps a failure from
// Admin.ResolveStartpointToOffset. It is caught and logged per entry
// during start; it is exported so callers can distinguish the cause if
// they inspect a wrapped error chain, but it never aborts start-up.
type StartpointResolutionError struct {
	SSP ssp.SSP
	Err error
}

func (e *StartpointResolutionError) Error() string {
	return fmt.Sprintf("offsetmgr: resolving startpoint for %s: %v", e.SSP, e.Err)
}

func (e *StartpointResolutionError) Unwrap() error { return e.Err }
