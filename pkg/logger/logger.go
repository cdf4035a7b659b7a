// Package logger holds the process-wide zap logger used by every service.
package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "pokertable"

// Log is a no-op until InitLogger runs, so services are safe to use from tests.
var Log = zap.NewNop()

// InitLogger builds the process logger. Release mode writes JSON at info
// level; any other mode writes colored console lines at debug level.
func InitLogger(mode string) {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if mode == "release" {
		config = zap.NewProductionConfig()
	}
	config.OutputPaths = []string{"stdout"}
	config.InitialFields = map[string]interface{}{"service": serviceName}

	l, err := config.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	Replace(l)
}

// Replace swaps the process logger and returns a func that restores the
// previous one.
func Replace(l *zap.Logger) func() {
	prev := Log
	Log = l
	undo := zap.ReplaceGlobals(l)
	return func() {
		Log = prev
		undo()
	}
}
