// Package logger holds the process-wide structured logger.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Standard field names.
const (
	FieldHeader   = "header"
	FieldQualName = "qualname"
	FieldCount    = "count"
	FieldFile     = "file"
	FieldError    = "error"
)

// Logger is the global logger. It is a no-op until Initialize is called.
var Logger = zap.NewNop().Sugar()

// Initialize configures the global logger. Console output goes to stderr so
// generated text on stdout stays clean.
func Initialize(verbose, jsonOutput bool) error {
	level := zap.WarnLevel
	if verbose {
		level = zap.DebugLevel
	}

	var zl *zap.Logger
	if jsonOutput {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(level)
		cfg.OutputPaths = []string{"stderr"}
		var err error
		zl, err = cfg.Build()
		if err != nil {
			return err
		}
	} else {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.TimeKey = ""
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		zl = zap.New(zapcore.NewCore(
			zapcore.NewConsoleEncoder(encCfg),
			zapcore.AddSync(os.Stderr),
			level,
		))
	}

	Logger = zl.Sugar()
	return nil
}

// Named returns a child of the global logger for one component.
func Named(component string) *zap.SugaredLogger {
	return Logger.Named(component)
}
