package kgolog

import (
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kzap"
	"go.uber.org/zap"
)

// ZapLogger adapts a *zap.Logger to Logger. KzapAdapter hands out a kzap
// logger over the same *zap.Logger, so a single *zap.Logger can back both
// the franz-go client used by pkg/kafkasystem and this package's own
// logging.
type ZapLogger struct {
	z     *zap.Logger
	level Level
}

// NewZapLogger wraps z. level controls what this adapter reports via
// Level() and which messages Log passes on; callers that want franz-go's
// own kgo.Logger should use KzapAdapter or kzap.New(z) directly.
func NewZapLogger(z *zap.Logger, level Level) *ZapLogger {
	return &ZapLogger{z: z, level: level}
}

// KzapAdapter returns the franz-go-native logger wrapping the same
// underlying *zap.Logger, for handing to kgo.WithLogger when constructing
// the kafkasystem SystemAdmin's client.
func (l *ZapLogger) KzapAdapter() *kzap.Logger {
	return kzap.New(l.z, kzap.Level(toKzapLevel(l.level)))
}

func (l *ZapLogger) Level() Level { return l.level }

func (l *ZapLogger) Log(level Level, msg string, keyvals ...interface{}) {
	if level > l.level {
		return
	}
	fields := make([]zap.Field, 0, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, keyvals[i+1]))
	}
	switch level {
	case LevelError:
		l.z.Error(msg, fields...)
	case LevelWarn:
		l.z.Warn(msg, fields...)
	case LevelInfo:
		l.z.Info(msg, fields...)
	case LevelDebug:
		l.z.Debug(msg, fields...)
	}
}

func toKzapLevel(l Level) kgo.LogLevel {
	switch l {
	case LevelError:
		return kgo.LogLevelError
	case LevelWarn:
		return kgo.LogLevelWarn
	case LevelInfo:
		return kgo.LogLevelInfo
	case LevelDebug:
		return kgo.LogLevelDebug
	default:
		return kgo.LogLevelError
	}
}
