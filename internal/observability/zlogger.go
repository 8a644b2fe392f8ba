package observability

import "github.com/rs/zerolog/log"

// ZeroLogger adapts the zerolog global logger configured by InitLogger to
// internal/pipeline.Logger's structured Info/Error/Debug shape, so the
// retrieval pipeline logs through the same sink and format as the rest of
// the process instead of its own noop default.
type ZeroLogger struct{}

func NewZeroLogger() ZeroLogger { return ZeroLogger{} }

func (ZeroLogger) Info(msg string, fields map[string]any) {
	log.Info().Fields(fields).Msg(msg)
}

func (ZeroLogger) Error(msg string, fields map[string]any) {
	log.Error().Fields(fields).Msg(msg)
}

func (ZeroLogger) Debug(msg string, fields map[string]any) {
	log.Debug().Fields(fields).Msg(msg)
}
