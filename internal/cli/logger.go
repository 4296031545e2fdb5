package cli

import (
	"github.com/johnwmail/pasties/config"
	"github.com/johnwmail/pasties/utils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newLogger builds a JSON production logger. Debug output is switched on by
// LOG_LEVEL=debug or any GIN_MODE other than release.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level.SetLevel(zapcore.InfoLevel)
	}
	if utils.DebugEnabled(cfg.GinMode, cfg.LogLevel) {
		level.SetLevel(zapcore.DebugLevel)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = level
	zcfg.EncoderConfig.TimeKey = "time"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Named("pasties"), nil
}
