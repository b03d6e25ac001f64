package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func plainHandler(buf *bytes.Buffer, level slog.Level) *PrettyHandler {
	h := NewPrettyHandler(buf, &slog.HandlerOptions{Level: level})
	h.color = false
	return h
}

func TestPrettyHandler_Enabled(t *testing.T) {
	h := NewPrettyHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})

	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelWarn))

	assert.True(t, NewPrettyHandler(&bytes.Buffer{}, nil).Enabled(context.Background(), slog.LevelInfo))
}

func TestPrettyHandler_Line(t *testing.T) {
	var buf bytes.Buffer
	slog.New(plainHandler(&buf, slog.LevelInfo)).
		Info("renamed", "from", "Art/hero idle.png", "to", "Art/HeroIdle.png", "batch", 2)

	line := buf.String()
	assert.True(t, strings.HasSuffix(line, "\n"))
	assert.Contains(t, line, ` INF renamed from="Art/hero idle.png" to=Art/HeroIdle.png batch=2`)
}

func TestPrettyHandler_Colors(t *testing.T) {
	var buf bytes.Buffer
	slog.New(NewPrettyHandler(&buf, nil)).Warn("scan failed")

	assert.Contains(t, buf.String(), ansiYellow+"WRN"+ansiReset)
	assert.Contains(t, buf.String(), ansiBold+"scan failed"+ansiReset)
}

func TestPrettyHandler_GroupsAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := plainHandler(&buf, slog.LevelInfo)
	assert.Same(t, h, h.WithGroup(""))

	base := slog.New(h).With("component", "store")
	base.WithGroup("convention").WithGroup("edit").
		Info("registered", "path", "Art/Trees", slog.Group("style", "name", "pascal"))
	base.Info("saved")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "component=store convention.edit.path=Art/Trees convention.edit.style.name=pascal")
	assert.True(t, strings.HasSuffix(lines[1], "saved component=store"), lines[1])
}

func TestPrettyHandler_DerivedHandlersDoNotShareAttrs(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(plainHandler(&buf, slog.LevelInfo)).With("a", 1)
	base.With("b", 2).Info("one")
	base.With("c", 3).Info("two")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Contains(t, lines[0], "one a=1 b=2")
	assert.Contains(t, lines[1], "two a=1 c=3")
	assert.NotContains(t, lines[1], "b=2")
}

func TestPrettyHandler_Source(t *testing.T) {
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, &slog.HandlerOptions{AddSource: true})
	slog.New(h).Info("here")

	assert.Contains(t, buf.String(), "pretty_test.go:")
}

func TestPrettyHandler_ConcurrentWritesStayWhole(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(plainHandler(&buf, slog.LevelInfo))

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.With("worker", i).Info("tick")
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 20)
	for _, l := range lines {
		assert.Contains(t, l, "INF tick worker=")
	}
}

func TestStyleFor(t *testing.T) {
	assert.Equal(t, levelStyle{"DBG", ansiMagenta}, styleFor(slog.LevelDebug))
	assert.Equal(t, levelStyle{"ERR", ansiRed}, styleFor(slog.LevelError))
	assert.Equal(t, levelStyle{"ERROR+4", ansiGray}, styleFor(slog.LevelError+4))
}

func TestFormatValue(t *testing.T) {
	now := time.Now()

	assert.Equal(t, "Assets", formatValue(slog.StringValue("Assets")))
	assert.Equal(t, `"a b"`, formatValue(slog.StringValue("a b")))
	assert.Equal(t, `""`, formatValue(slog.StringValue("")))
	assert.Equal(t, now.Format(time.RFC3339), formatValue(slog.TimeValue(now)))
	assert.Equal(t, "500ms", formatValue(slog.DurationValue(500*time.Millisecond)))
	assert.Equal(t, "42", formatValue(slog.IntValue(42)))
	assert.Equal(t, `"target exists"`, formatValue(slog.AnyValue(errors.New("target exists"))))
}
