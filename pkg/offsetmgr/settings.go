package offsetmgr

import (
	"github.com/curtislarson/samza/pkg/kgolog"
	"github.com/curtislarson/samza/pkg/offsetcfg"
	"github.com/curtislarson/samza/pkg/ssp"
)

// OffsetSetting binds one SystemStream's broker metadata, default-offset
// policy, and reset flag.
type OffsetSetting struct {
	Stream        ssp.SystemStream
	Metadata      ssp.StreamMetadata
	DefaultOffset ssp.OffsetType
	ResetOffset   bool
}

// BuildSettings derives an OffsetSetting per input stream from fetched
// broker metadata and configuration.
//
// defaultOffset precedence is per-stream config, then per-system config,
// then OffsetUpcoming with an informational log. An unrecognized
// configured value is a ConfigError.
func BuildSettings(
	metadata map[ssp.SystemStream]ssp.StreamMetadata,
	cfg *offsetcfg.Config,
	log kgolog.Logger,
) (map[ssp.SystemStream]OffsetSetting, error) {
	settings := make(map[ssp.SystemStream]OffsetSetting, len(metadata))

	for stream, md := range metadata {
		defaultOffset, err := resolveDefaultOffset(stream, cfg, log)
		if err != nil {
			return nil, err
		}

		settings[stream] = OffsetSetting{
			Stream:        stream,
			Metadata:      md,
			DefaultOffset: defaultOffset,
			ResetOffset:   cfg.ResetOffset(stream.Stream),
		}
	}

	return settings, nil
}

func resolveDefaultOffset(stream ssp.SystemStream, cfg *offsetcfg.Config, log kgolog.Logger) (ssp.OffsetType, error) {
	if raw, ok := cfg.StreamDefaultOffset(stream.Stream); ok {
		t, valid := ssp.ParseOffsetType(raw)
		if !valid {
			return ssp.OffsetTypeUnspecified, &ConfigError{Stream: stream, Reason: "unrecognized streams.*.samza.offset.default value: " + raw}
		}
		return t, nil
	}

	if raw, ok := cfg.SystemDefaultOffset(stream.System); ok {
		t, valid := ssp.ParseOffsetType(raw)
		if !valid {
			return ssp.OffsetTypeUnspecified, &ConfigError{Stream: stream, Reason: "unrecognized systems.*.samza.offset.default value: " + raw}
		}
		return t, nil
	}

	log.Log(kgolog.LevelInfo, "no configured default offset, defaulting to upcoming", "stream", stream.String())
	return ssp.OffsetUpcoming, nil
}
