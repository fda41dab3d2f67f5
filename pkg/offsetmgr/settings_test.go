package offsetmgr

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/curtislarson/samza/pkg/kgolog"
	"github.com/curtislarson/samza/pkg/offsetcfg"
	"github.com/curtislarson/samza/pkg/ssp"
)

func TestBuildSettingsPrecedence(t *testing.T) {
	streamA := ssp.SystemStream{System: "kafka", Stream: "a"}
	streamB := ssp.SystemStream{System: "kafka", Stream: "b"}
	streamC := ssp.SystemStream{System: "other", Stream: "c"}
	metadata := map[ssp.SystemStream]ssp.StreamMetadata{
		streamA: {}, streamB: {}, streamC: {},
	}
	cfg := offsetcfg.NewFromMap(map[string]string{
		"streams.a.samza.offset.default":     "OLDEST",
		"systems.kafka.samza.offset.default": "newest",
		"streams.a.samza.reset.offset":       "true",
	})

	settings, err := BuildSettings(metadata, cfg, kgolog.Nop)
	require.NoError(t, err)

	require.Equal(t, ssp.OffsetOldest, settings[streamA].DefaultOffset, "per-stream wins, case-insensitively")
	require.True(t, settings[streamA].ResetOffset)
	require.Equal(t, ssp.OffsetNewest, settings[streamB].DefaultOffset, "per-system fallback")
	require.False(t, settings[streamB].ResetOffset)
	require.Equal(t, ssp.OffsetUpcoming, settings[streamC].DefaultOffset, "upcoming when nothing is configured")
}

func TestBuildSettingsRejectsUnknownOffsetType(t *testing.T) {
	stream := ssp.SystemStream{System: "kafka", Stream: "a"}
	cfg := offsetcfg.NewFromMap(map[string]string{
		"streams.a.samza.offset.default": "earliest",
	})

	_, err := BuildSettings(map[ssp.SystemStream]ssp.StreamMetadata{stream: {}}, cfg, kgolog.Nop)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, stream, cfgErr.Stream)
}

func TestBuildSettingsRejectsUnknownSystemDefault(t *testing.T) {
	stream := ssp.SystemStream{System: "kafka", Stream: "a"}
	cfg := offsetcfg.NewFromMap(map[string]string{
		"systems.kafka.samza.offset.default": "latest",
	})

	_, err := BuildSettings(map[ssp.SystemStream]ssp.StreamMetadata{stream: {}}, cfg, kgolog.Nop)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}
