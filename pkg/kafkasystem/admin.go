// Package kafkasystem implements the per-system broker adapter for Kafka on
// top of franz-go. Kafka offsets are monotonically increasing int64s, which
// makes "offset after" simple arithmetic and the comparator a numeric
// compare; startpoint resolution that needs the broker goes through a
// ListOffsets request.
package kafkasystem

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"

	"github.com/curtislarson/samza/pkg/kgolog"
	"github.com/curtislarson/samza/pkg/ssp"
	"github.com/curtislarson/samza/pkg/startpointstore"
	"github.com/curtislarson/samza/pkg/system"
)

const (
	// kafkaOffsetStart is the ListOffsets timestamp meaning the beginning
	// of the partition.
	kafkaOffsetStart = int64(-2)

	// kafkaOffsetEnd is the ListOffsets timestamp meaning the end of the
	// partition.
	kafkaOffsetEnd = int64(-1)

	defaultRequestTimeout = 30 * time.Second
)

// Admin adapts one Kafka cluster to the system.Admin contract. The caller
// owns the *kgo.Client, including connection, auth, and shutdown.
type Admin struct {
	systemName string
	client     *kgo.Client
	admin      *kadm.Client
	logger     kgolog.Logger
	timeout    time.Duration
}

// Opt configures an Admin at construction.
type Opt func(*Admin)

// WithLogger replaces the default no-op logger.
func WithLogger(l kgolog.Logger) Opt {
	return func(a *Admin) { a.logger = l }
}

// WithRequestTimeout bounds each broker request this admin issues.
func WithRequestTimeout(d time.Duration) Opt {
	return func(a *Admin) { a.timeout = d }
}

// NewAdmin wraps client as the adapter for systemName.
func NewAdmin(systemName string, client *kgo.Client, opts ...Opt) *Admin {
	a := &Admin{
		systemName: systemName,
		client:     client,
		admin:      kadm.NewClient(client),
		logger:     kgolog.Nop,
		timeout:    defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// GetOffsetsAfter returns, for each input partition, the next offset to
// read after the given last-processed offset. Kafka offsets are contiguous
// integers, so this is offset+1 with no broker round trip; entries whose
// offset does not parse are omitted from the result.
func (a *Admin) GetOffsetsAfter(offsets map[ssp.SSP]ssp.Offset) (map[ssp.SSP]ssp.Offset, error) {
	out := make(map[ssp.SSP]ssp.Offset, len(offsets))
	for s, off := range offsets {
		n, err := strconv.ParseInt(string(off), 10, 64)
		if err != nil {
			a.logger.Log(kgolog.LevelWarn, "dropping non-numeric kafka offset",
				"ssp", s.String(), "offset", off)
			continue
		}
		out[s] = ssp.Offset(strconv.FormatInt(n+1, 10))
	}
	return out, nil
}

// ResolveStartpointToOffset resolves an operator override to a concrete
// offset. Specific offsets resolve locally; oldest, upcoming, and
// timestamp variants ask the broker via ListOffsets. Custom startpoints
// are not understood by this admin.
func (a *Admin) ResolveStartpointToOffset(s ssp.SSP, point startpointstore.Startpoint) (ssp.Offset, error) {
	switch point.Kind {
	case startpointstore.KindSpecificOffset:
		if _, err := strconv.ParseInt(point.Offset, 10, 64); err != nil {
			return "", fmt.Errorf("kafkasystem: startpoint offset %q is not a kafka offset: %w", point.Offset, err)
		}
		return ssp.Offset(point.Offset), nil
	case startpointstore.KindOldest:
		return a.listOffset(s, kafkaOffsetStart)
	case startpointstore.KindUpcoming:
		return a.listOffset(s, kafkaOffsetEnd)
	case startpointstore.KindTimestamp:
		return a.listOffset(s, point.Timestamp.UnixMilli())
	default:
		return "", fmt.Errorf("kafkasystem: unsupported startpoint %s for %s", point, s)
	}
}

// OffsetComparator orders two Kafka offsets numerically. A side that does
// not parse as an int64 makes the pair incomparable.
func (a *Admin) OffsetComparator(x, y ssp.Offset) system.Comparison {
	nx, errx := strconv.ParseInt(string(x), 10, 64)
	ny, erry := strconv.ParseInt(string(y), 10, 64)
	if errx != nil || erry != nil {
		return system.Comparison{Incomparable: true}
	}
	switch {
	case nx < ny:
		return system.Comparison{Result: -1}
	case nx > ny:
		return system.Comparison{Result: 1}
	default:
		return system.Comparison{}
	}
}

// listOffset issues a single-partition ListOffsets request, sharded across
// brokers the way the client routes it.
func (a *Admin) listOffset(s ssp.SSP, timestamp int64) (ssp.Offset, error) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	partitionReq := kmsg.NewListOffsetsRequestTopicPartition()
	partitionReq.Partition = int32(s.Partition)
	partitionReq.Timestamp = timestamp

	topicReq := kmsg.NewListOffsetsRequestTopic()
	topicReq.Topic = s.Stream
	topicReq.Partitions = []kmsg.ListOffsetsRequestTopicPartition{partitionReq}

	req := kmsg.NewPtrListOffsetsRequest()
	req.IsolationLevel = 0 // READ_UNCOMMITTED
	req.Topics = []kmsg.ListOffsetsRequestTopic{topicReq}

	shards := a.client.RequestSharded(ctx, req)
	for _, shard := range shards {
		if shard.Err != nil {
			return "", shard.Err
		}
		resp := shard.Resp.(*kmsg.ListOffsetsResponse)
		for _, topic := range resp.Topics {
			if topic.Topic != s.Stream {
				continue
			}
			for _, partition := range topic.Partitions {
				if partition.Partition != int32(s.Partition) {
					continue
				}
				if err := kerr.ErrorForCode(partition.ErrorCode); err != nil {
					return "", err
				}
				return ssp.Offset(strconv.FormatInt(partition.Offset, 10)), nil
			}
		}
	}
	return "", fmt.Errorf("kafkasystem: no list offsets response for %s", s)
}

// FetchStreamMetadata reads the oldest, newest, and upcoming offsets for
// every partition of the given streams, in the shape SettingsBuilder and
// the default fill consume. The newest offset is the last produced record
// (end-1), absent on an empty partition.
func (a *Admin) FetchStreamMetadata(ctx context.Context, streams ...string) (map[ssp.SystemStream]ssp.StreamMetadata, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	starts, err := a.admin.ListStartOffsets(ctx, streams...)
	if err != nil {
		return nil, fmt.Errorf("kafkasystem: listing start offsets: %w", err)
	}
	if err := starts.Error(); err != nil {
		return nil, fmt.Errorf("kafkasystem: listing start offsets: %w", err)
	}
	ends, err := a.admin.ListEndOffsets(ctx, streams...)
	if err != nil {
		return nil, fmt.Errorf("kafkasystem: listing end offsets: %w", err)
	}
	if err := ends.Error(); err != nil {
		return nil, fmt.Errorf("kafkasystem: listing end offsets: %w", err)
	}

	out := make(map[ssp.SystemStream]ssp.StreamMetadata, len(streams))
	for _, stream := range streams {
		md := ssp.StreamMetadata{Partitions: make(map[ssp.Partition]ssp.PartitionMetadata)}
		ends.Each(func(end kadm.ListedOffset) {
			if end.Topic != stream {
				return
			}
			start, ok := starts.Lookup(end.Topic, end.Partition)
			if !ok {
				return
			}
			pm := ssp.PartitionMetadata{
				Upcoming:    ssp.Offset(strconv.FormatInt(end.Offset, 10)),
				HasUpcoming: true,
			}
			if start.Offset >= 0 {
				pm.Oldest = ssp.Offset(strconv.FormatInt(start.Offset, 10))
				pm.HasOldest = true
			}
			if end.Offset > start.Offset {
				pm.Newest = ssp.Offset(strconv.FormatInt(end.Offset-1, 10))
				pm.HasNewest = true
			}
			md.Partitions[ssp.Partition(end.Partition)] = pm
		})
		out[ssp.SystemStream{System: a.systemName, Stream: stream}] = md
	}
	return out, nil
}
