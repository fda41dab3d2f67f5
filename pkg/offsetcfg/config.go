// Package offsetcfg wraps a *viper.Viper to answer the offset-related
// configuration questions, without forcing the rest of pkg/offsetmgr to
// import viper directly.
package offsetcfg

import (
	"strings"

	"github.com/spf13/viper"
)

// Config answers the dotted offset configuration keys:
//
//	streams.<stream>.samza.offset.default
//	systems.<system>.samza.offset.default
//	streams.<stream>.samza.reset.offset
type Config struct {
	v *viper.Viper
}

// New wraps an already-populated viper instance; the outer container owns
// loading it from file/env/flags.
func New(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewFromMap is a convenience constructor for tests and small embeddings
// that builds a viper instance from a flat dotted-key map.
func NewFromMap(m map[string]string) *Config {
	v := viper.New()
	for k, val := range m {
		v.Set(k, val)
	}
	return &Config{v: v}
}

// StreamDefaultOffset returns the per-stream samza.offset.default value, if
// set.
func (c *Config) StreamDefaultOffset(stream string) (string, bool) {
	return c.lookup("streams." + stream + ".samza.offset.default")
}

// SystemDefaultOffset returns the per-system samza.offset.default fallback,
// if set.
func (c *Config) SystemDefaultOffset(system string) (string, bool) {
	return c.lookup("systems." + system + ".samza.offset.default")
}

// ResetOffset returns streams.<stream>.samza.reset.offset, defaulting to
// false when unset.
func (c *Config) ResetOffset(stream string) bool {
	return c.v.GetBool("streams." + stream + ".samza.reset.offset")
}

func (c *Config) lookup(key string) (string, bool) {
	if !c.v.IsSet(key) {
		return "", false
	}
	val := strings.TrimSpace(c.v.GetString(key))
	if val == "" {
		return "", false
	}
	return val, true
}
