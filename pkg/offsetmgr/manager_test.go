package offsetmgr

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/curtislarson/samza/pkg/checkpointstore"
	"github.com/curtislarson/samza/pkg/ssp"
	"github.com/curtislarson/samza/pkg/startpointstore"
	"github.com/curtislarson/samza/pkg/system"
)

var (
	topicX = ssp.SystemStream{System: "sysA", Stream: "topicX"}
	t0     = ssp.TaskName("t0")
	sspX0  = ssp.New("sysA", "topicX", 0)
)

func registryWithAdmin(admin system.Admin) *system.Registry {
	r := system.NewRegistry()
	r.RegisterAdmin("sysA", admin)
	return r
}

func TestStartColdUsesDefaultOldest(t *testing.T) {
	settings := singleStreamSettings(topicX, ssp.OffsetOldest, false, map[ssp.Partition]ssp.PartitionMetadata{
		0: mdPartition("10", "", "42"),
	})
	om := New(settings, registryWithAdmin(&fakeAdmin{}))
	require.NoError(t, om.Register(t0, sspX0))
	require.NoError(t, om.Start())

	off, ok, err := om.StartingOffset(t0, sspX0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ssp.Offset("10"), off)
}

func TestStartWarmUsesOffsetAfterCheckpoint(t *testing.T) {
	settings := singleStreamSettings(topicX, ssp.OffsetOldest, false, map[ssp.Partition]ssp.PartitionMetadata{
		0: mdPartition("10", "", "42"),
	})
	cm := checkpointstore.NewMemoryManager()
	require.NoError(t, cm.WriteCheckpoint(t0, checkpointstore.Checkpoint{sspX0: "100"}))

	om := New(settings, registryWithAdmin(&fakeAdmin{}), WithCheckpointManager(cm))
	require.NoError(t, om.Register(t0, sspX0))
	require.NoError(t, om.Start())

	off, ok, err := om.StartingOffset(t0, sspX0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ssp.Offset("101"), off)

	last, found, err := om.LastProcessedOffset(t0, sspX0)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, ssp.Offset("100"), last)
}

func TestStartResetDiscardsCheckpoint(t *testing.T) {
	settings := singleStreamSettings(topicX, ssp.OffsetNewest, true, map[ssp.Partition]ssp.PartitionMetadata{
		0: mdPartition("10", "500", "501"),
	})
	cm := checkpointstore.NewMemoryManager()
	require.NoError(t, cm.WriteCheckpoint(t0, checkpointstore.Checkpoint{sspX0: "100"}))

	om := New(settings, registryWithAdmin(&fakeAdmin{}), WithCheckpointManager(cm))
	require.NoError(t, om.Register(t0, sspX0))
	require.NoError(t, om.Start())

	off, ok, err := om.StartingOffset(t0, sspX0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ssp.Offset("500"), off)

	_, found, err := om.LastProcessedOffset(t0, sspX0)
	require.NoError(t, err)
	require.False(t, found, "reset stream must not keep its checkpointed offset")
}

func TestStartStartpointOverridesCheckpoint(t *testing.T) {
	settings := singleStreamSettings(topicX, ssp.OffsetOldest, false, map[ssp.Partition]ssp.PartitionMetadata{
		0: mdPartition("10", "", "42"),
	})
	cm := checkpointstore.NewMemoryManager()
	require.NoError(t, cm.WriteCheckpoint(t0, checkpointstore.Checkpoint{sspX0: "100"}))
	spm := newCountingStartpointManager()
	spm.Put(t0, sspX0, startpointstore.SpecificOffset("250"))

	om := New(settings, registryWithAdmin(&fakeAdmin{}),
		WithCheckpointManager(cm), WithStartpointManager(spm))
	require.NoError(t, om.Register(t0, sspX0))
	require.NoError(t, om.Start())

	off, ok, err := om.StartingOffset(t0, sspX0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ssp.Offset("250"), off)
	require.Len(t, om.Startpoints(t0), 1)

	require.NoError(t, om.WriteCheckpoint(t0, checkpointstore.Checkpoint{sspX0: "250"}))
	require.Nil(t, om.Startpoints(t0))
	fanOut, err := spm.GetFanOutForTask(t0)
	require.NoError(t, err)
	require.Empty(t, fanOut)
}

func TestStartStartpointResolutionFailureFallsThrough(t *testing.T) {
	settings := singleStreamSettings(topicX, ssp.OffsetOldest, false, map[ssp.Partition]ssp.PartitionMetadata{
		0: mdPartition("10", "", "42"),
	})
	spm := newCountingStartpointManager()
	spm.Put(t0, sspX0, startpointstore.Custom("opaque"))

	admin := &fakeAdmin{resolve: func(ssp.SSP, startpointstore.Startpoint) (ssp.Offset, error) {
		return "", errUnresolvable
	}}
	om := New(settings, registryWithAdmin(admin), WithStartpointManager(spm))
	require.NoError(t, om.Register(t0, sspX0))
	require.NoError(t, om.Start())

	off, ok, err := om.StartingOffset(t0, sspX0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ssp.Offset("10"), off, "unresolvable startpoint falls through to the default")
	require.Len(t, om.Startpoints(t0), 1, "failed resolution still leaves the startpoint pending")
}

func TestStartEmptyStreamFallsBackToUpcoming(t *testing.T) {
	settings := singleStreamSettings(topicX, ssp.OffsetNewest, false, map[ssp.Partition]ssp.PartitionMetadata{
		0: mdPartition("", "", "0"),
	})
	om := New(settings, registryWithAdmin(&fakeAdmin{}))
	require.NoError(t, om.Register(t0, sspX0))
	require.NoError(t, om.Start())

	off, ok, err := om.StartingOffset(t0, sspX0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ssp.Offset("0"), off)
}

func TestStartMissingPartitionMetadataIsFatal(t *testing.T) {
	settings := singleStreamSettings(topicX, ssp.OffsetOldest, false, map[ssp.Partition]ssp.PartitionMetadata{})
	om := New(settings, registryWithAdmin(&fakeAdmin{}))
	require.NoError(t, om.Register(t0, sspX0))

	err := om.Start()
	var missing *MetadataMissing
	require.ErrorAs(t, err, &missing)
	require.Equal(t, sspX0, missing.SSP)
}

func TestStartEveryRegisteredPartitionGetsAStartingOffset(t *testing.T) {
	sspX1 := ssp.New("sysA", "topicX", 1)
	settings := singleStreamSettings(topicX, ssp.OffsetUpcoming, false, map[ssp.Partition]ssp.PartitionMetadata{
		0: mdPartition("10", "", "42"),
		1: mdPartition("0", "", "7"),
	})
	cm := checkpointstore.NewMemoryManager()
	require.NoError(t, cm.WriteCheckpoint(t0, checkpointstore.Checkpoint{sspX0: "100"}))

	om := New(settings, registryWithAdmin(&fakeAdmin{}), WithCheckpointManager(cm))
	require.NoError(t, om.Register(t0, sspX0, sspX1))
	require.NoError(t, om.Start())

	starting, err := om.StartingOffsets(t0)
	require.NoError(t, err)
	require.Equal(t, map[ssp.SSP]ssp.Offset{
		sspX0: "101", // after checkpoint
		sspX1: "7",   // default fill
	}, starting)
}

func TestStartElasticityRemapFromBucketedHistory(t *testing.T) {
	bucketed := sspX0.WithKeyBucket(1)
	settings := singleStreamSettings(topicX, ssp.OffsetOldest, false, map[ssp.Partition]ssp.PartitionMetadata{
		0: mdPartition("10", "", "42"),
	})
	cm := checkpointstore.NewMemoryManager()
	require.NoError(t, cm.WriteCheckpoint(t0, checkpointstore.Checkpoint{bucketed: "100"}))

	om := New(settings, registryWithAdmin(&fakeAdmin{}), WithCheckpointManager(cm))
	require.NoError(t, om.Register(t0, bucketed))
	require.NoError(t, om.Start())

	off, ok, err := om.StartingOffset(t0, bucketed)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ssp.Offset("101"), off)
}

func TestStartNoStartpointsStopsManagerImmediately(t *testing.T) {
	settings := singleStreamSettings(topicX, ssp.OffsetOldest, false, map[ssp.Partition]ssp.PartitionMetadata{
		0: mdPartition("10", "", "42"),
	})
	spm := newCountingStartpointManager()
	om := New(settings, registryWithAdmin(&fakeAdmin{}), WithStartpointManager(spm))
	require.NoError(t, om.Register(t0, sspX0))
	require.NoError(t, om.Start())
	require.Equal(t, 1, spm.stopCalls)
}

func TestRegisterUnknownStreamIsConfigError(t *testing.T) {
	om := New(map[ssp.SystemStream]OffsetSetting{}, registryWithAdmin(&fakeAdmin{}))
	err := om.Register(t0, sspX0)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestLifecycleOrdering(t *testing.T) {
	settings := singleStreamSettings(topicX, ssp.OffsetOldest, false, map[ssp.Partition]ssp.PartitionMetadata{
		0: mdPartition("10", "", "42"),
	})
	om := New(settings, registryWithAdmin(&fakeAdmin{}))
	require.Equal(t, StateRegistering, om.State())

	var lcErr *LifecycleError
	require.ErrorAs(t, om.Update(t0, sspX0, "1"), &lcErr)
	_, err := om.LastProcessedOffsets(t0)
	require.ErrorAs(t, err, &lcErr)
	require.ErrorAs(t, om.WriteCheckpoint(t0, checkpointstore.Checkpoint{}), &lcErr)
	require.ErrorAs(t, om.Stop(), &lcErr)

	require.NoError(t, om.Register(t0, sspX0))
	require.NoError(t, om.Start())
	require.Equal(t, StateStarted, om.State())

	require.ErrorAs(t, om.Register(t0, sspX0), &lcErr)
	require.ErrorAs(t, om.Start(), &lcErr)

	require.NoError(t, om.Stop())
	require.Equal(t, StateStopped, om.State())
	require.NoError(t, om.Stop(), "stop is idempotent once stopped")
}

func TestStopStopsConfiguredStores(t *testing.T) {
	settings := singleStreamSettings(topicX, ssp.OffsetOldest, false, map[ssp.Partition]ssp.PartitionMetadata{
		0: mdPartition("10", "", "42"),
	})
	cm := checkpointstore.NewMemoryManager()
	spm := newCountingStartpointManager()
	spm.Put(t0, sspX0, startpointstore.Oldest())

	admin := &fakeAdmin{resolve: func(ssp.SSP, startpointstore.Startpoint) (ssp.Offset, error) {
		return "10", nil
	}}
	om := New(settings, registryWithAdmin(admin),
		WithCheckpointManager(cm), WithStartpointManager(spm))
	require.NoError(t, om.Register(t0, sspX0))
	require.NoError(t, om.Start())
	require.Zero(t, spm.stopCalls, "pending startpoints keep the manager open")

	require.NoError(t, om.Stop())
	require.Equal(t, 1, spm.stopCalls)
	require.NoError(t, om.Stop())
	require.Equal(t, 1, spm.stopCalls, "second stop does not re-stop the startpoint manager")
}

// Restart scenario: a new manager over the same stores resumes from the
// offsets the previous incarnation committed.
func TestRestartResumesAfterCommittedOffsets(t *testing.T) {
	settings := singleStreamSettings(topicX, ssp.OffsetOldest, false, map[ssp.Partition]ssp.PartitionMetadata{
		0: mdPartition("10", "", "42"),
	})
	cm := checkpointstore.NewMemoryManager()

	om := New(settings, registryWithAdmin(&fakeAdmin{}), WithCheckpointManager(cm))
	require.NoError(t, om.Register(t0, sspX0))
	require.NoError(t, om.Start())
	require.NoError(t, om.Update(t0, sspX0, "123"))
	snap, err := om.LastProcessedOffsets(t0)
	require.NoError(t, err)
	require.NoError(t, om.WriteCheckpoint(t0, checkpointstore.Checkpoint(snap)))
	require.NoError(t, om.Stop())

	om2 := New(settings, registryWithAdmin(&fakeAdmin{}), WithCheckpointManager(cm))
	require.NoError(t, om2.Register(t0, sspX0))
	require.NoError(t, om2.Start())
	off, ok, err := om2.StartingOffset(t0, sspX0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ssp.Offset("124"), off)
}
