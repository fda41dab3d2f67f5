// Package kgolog defines the leveled, structured logging interface this
// module logs through, in the same shape franz-go uses for its own
// internal logging: callers inject a Logger rather than the package
// reaching for a concrete framework.
package kgolog

// Level is a logging severity. After LevelNone, levels run from most severe
// (LevelError) to least severe (LevelDebug), so a higher value is more
// verbose.
type Level int8

const (
	LevelNone Level = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	default:
		return "NONE"
	}
}

// Logger is implemented by anything this module can log through. keyvals is
// an alternating key/value list, mirroring kgo.Logger's
// Log(LogLevelDebug, "msg", "k1", v1, "k2", v2) call convention.
type Logger interface {
	Level() Level
	Log(level Level, msg string, keyvals ...interface{})
}

// Nop discards everything. Used as the manager default so callers never
// have to nil-check before logging.
var Nop Logger = nopLogger{}

type nopLogger struct{}

func (nopLogger) Level() Level { return LevelNone }
func (nopLogger) Log(Level, string, ...interface{}) {}
