package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestGormLoggerQueryEvents(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	l := NewGormLogger(GormLoggerConfig{
		Level:                gormlogger.Info,
		SlowThreshold:        50 * time.Millisecond,
		IgnoreRecordNotFound: true,
	})
	query := func() (string, int64) { return "SELECT * FROM customers", 3 }
	ctx := context.Background()

	l.Trace(ctx, time.Now(), query, nil)
	l.Trace(ctx, time.Now().Add(-time.Second), query, nil)
	l.Trace(ctx, time.Now(), query, errors.New("boom"))
	l.Trace(ctx, time.Now(), query, gormlogger.ErrRecordNotFound)

	entries := logs.AllUntimed()
	require.Len(t, entries, 4)
	assert.Equal(t, "db.query", entries[0].Message)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "db.query.slow", entries[1].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "db.query", entries[2].Message)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, zapcore.DebugLevel, entries[3].Level)
	assert.Equal(t, "SELECT", entries[0].ContextMap()["operation"])
}
