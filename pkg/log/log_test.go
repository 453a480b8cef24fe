package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/goope/pkg/errors"
)

func TestTestLoggerCapturesFields(t *testing.T) {
	logger, _ := NewTestLogger(LevelDebug)

	logger.Debug("slot fitted", PositionKey, 0, SamplesKey, 100)
	logger.Error("fit failed", fmt.Errorf("boom"), FoldKey, 1)

	assert.True(t, logger.ContainsMessage("slot fitted"))
	assert.True(t, logger.ContainsField(SamplesKey, 100.0))
	assert.True(t, logger.ContainsField("error", "boom"))
	assert.True(t, logger.ContainsField(FoldKey, 1.0))
}

func TestTestLoggerLevelFilter(t *testing.T) {
	logger, buf := NewTestLogger(LevelWarn)
	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.False(t, logger.Enabled(context.Background(), LevelDebug))
	assert.True(t, logger.Enabled(context.Background(), LevelError))
}

func TestTestLoggerWithIsConcurrentSafe(t *testing.T) {
	logger, _ := NewTestLogger(LevelDebug)
	base := logger.With(ComponentKey, "ope.regression")

	var wg sync.WaitGroup
	for fold := 0; fold < 8; fold++ {
		wg.Add(1)
		go func(fold int) {
			defer wg.Done()
			base.With(FoldKey, fold).Debug("fold fitted")
		}(fold)
	}
	wg.Wait()

	assert.Equal(t, 8, logger.Count("fold fitted"))
	assert.True(t, logger.ContainsField(ComponentKey, "ope.regression"))
}

func TestZerologLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, LevelInfo)

	logger.Debug("not written")
	logger.With(EstimatorNameKey, "IPS").Info("estimated", EstimateKey, 0.42)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "info", rec["level"])
	assert.Equal(t, "estimated", rec["message"])
	assert.Equal(t, "IPS", rec[EstimatorNameKey])
	assert.InDelta(t, 0.42, rec[EstimateKey], 1e-12)
}

func TestZerologLoggerErrorField(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, LevelDebug)

	logger.Error("run failed", errors.New("singular"), OperationKey, OperationFit)

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec))
	assert.Equal(t, "singular", rec["error"])
	assert.Equal(t, OperationFit, rec[OperationKey])
}

func TestZerologProviderNamedLoggerAndLevel(t *testing.T) {
	var buf bytes.Buffer
	p := NewZerologProvider(&buf, LevelWarn)

	p.GetLoggerWithName("ope.marginal").Info("dropped")
	assert.Empty(t, buf.String())

	p.SetLevel(LevelDebug)
	l := p.GetLoggerWithName("ope.marginal")
	assert.True(t, l.Enabled(context.Background(), LevelDebug))
	l.Debug("kept")
	assert.Contains(t, buf.String(), `"ml.component":"ope.marginal"`)
}

func TestWarningsRouteToProvider(t *testing.T) {
	var buf bytes.Buffer
	prev := SetProvider(NewZerologProvider(&buf, LevelWarn))
	defer SetProvider(prev)

	errors.Warn(errors.NewNumericalWarning("marginal_weight", 2, 10))

	out := buf.String()
	assert.Contains(t, out, `"operation":"marginal_weight"`)
	assert.Contains(t, out, `"count":2`)
	assert.Contains(t, out, `"level":"warn"`)
}

func TestSlogProvider(t *testing.T) {
	var buf bytes.Buffer
	prev := SetProvider(NewZerologProvider(io.Discard, LevelWarn))
	defer SetProvider(prev)
	defer slog.SetDefault(slog.Default())

	SetupLogger(&buf, "info")
	GetLoggerWithName("cmd").Error("evaluate failed", errors.New("bad data"))

	out := buf.String()
	assert.Contains(t, out, `"severity":"ERROR"`)
	assert.Contains(t, out, `"message":"evaluate failed"`)
	assert.Contains(t, out, `"ml.component":"cmd"`)
	assert.Contains(t, out, StacktraceAttrKey)

	buf.Reset()
	GetLogger().Debug("quiet")
	assert.Empty(t, buf.String())
}

func TestErrFmtHandlerStacktrace(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(WrapByErrFmtHandler(slog.NewJSONHandler(&buf, nil))).With("run", 1).WithGroup("g")

	logger.Error("with stack", ErrAttr(errors.New("boom")))
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	group, ok := rec["g"].(map[string]any)
	require.True(t, ok, "%v", rec)
	frames, ok := group[StacktraceAttrKey].(string)
	require.True(t, ok, "%v", group)
	assert.Contains(t, frames, "log_test.go")
	assert.LessOrEqual(t, strings.Count(frames, " <- "), stackDepth-1)

	buf.Reset()
	logger.Error("plain", ErrAttr(fmt.Errorf("no stack")))
	assert.NotContains(t, buf.String(), StacktraceAttrKey)

	buf.Reset()
	logger.Info("no error", "k", "v")
	assert.NotContains(t, buf.String(), StacktraceAttrKey)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
		ok   bool
	}{
		{"debug", LevelDebug, true},
		{"info", LevelInfo, true},
		{"warn", LevelWarn, true},
		{"error", LevelError, true},
		{"verbose", LevelInfo, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
	}
}
