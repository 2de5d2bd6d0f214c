package transport

import "github.com/rs/zerolog"

// leveledLogger adapts zerolog to retryablehttp.LeveledLogger.
type leveledLogger struct {
	l zerolog.Logger
}

func (a leveledLogger) Error(msg string, kv ...any) { a.l.Error().Fields(kv).Msg(msg) }
func (a leveledLogger) Warn(msg string, kv ...any)  { a.l.Warn().Fields(kv).Msg(msg) }
func (a leveledLogger) Info(msg string, kv ...any)  { a.l.Debug().Fields(kv).Msg(msg) }
func (a leveledLogger) Debug(msg string, kv ...any) { a.l.Trace().Fields(kv).Msg(msg) }
