package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestReplaceRestores(t *testing.T) {
	before := Log
	core, logs := observer.New(zap.InfoLevel)

	restore := Replace(zap.New(core))
	Log.Info("hand started", zap.Int64("tableID", 7))
	zap.L().Info("via globals")
	restore()

	assert.Same(t, before, Log)
	entries := logs.All()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, "hand started", entries[0].Message)
		assert.Equal(t, int64(7), entries[0].ContextMap()["tableID"])
	}
}
