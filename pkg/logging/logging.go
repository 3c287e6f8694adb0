package logging

import (
	"github.com/canopy-network/ammx/pkg/utils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger tagged with service. LOG_LEVEL takes any zap level name
// (unknown names fall back to info) and LOG_ENCODING is json or console.
func New(service string) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(utils.Env("LOG_LEVEL", "debug"))
	if err != nil {
		level = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.Development = level == zapcore.DebugLevel
	cfg.Encoding = utils.Env("LOG_ENCODING", "json")
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.InitialFields = map[string]any{"service": service}

	enc := &cfg.EncoderConfig
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.Encoding == "console" {
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return cfg.Build()
}
