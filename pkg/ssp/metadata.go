package ssp

// PartitionMetadata is the broker-reported {oldest, newest, upcoming}
// triple for one partition, consulted when a starting offset must come
// from the stream's configured default.
type PartitionMetadata struct {
	Oldest    Offset
	HasOldest bool

	Newest    Offset
	HasNewest bool

	Upcoming    Offset
	HasUpcoming bool
}

// GetOffset returns the offset for the requested default policy. The second
// return value is false if the stream is empty for that policy (e.g. a
// brand-new partition has no "newest" record yet).
func (m PartitionMetadata) GetOffset(t OffsetType) (Offset, bool) {
	switch t {
	case OffsetOldest:
		return m.Oldest, m.HasOldest
	case OffsetNewest:
		return m.Newest, m.HasNewest
	case OffsetUpcoming:
		return m.Upcoming, m.HasUpcoming
	default:
		return "", false
	}
}

// StreamMetadata is the broker-reported metadata for every partition of one
// SystemStream, as returned by a metadata fetch ahead of SettingsBuilder.
type StreamMetadata struct {
	Partitions map[Partition]PartitionMetadata
}
