package logger

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	ansiReset   = "\033[0m"
	ansiBold    = "\033[1m"
	ansiDim     = "\033[2m"
	ansiRed     = "\033[31m"
	ansiGreen   = "\033[32m"
	ansiYellow  = "\033[33m"
	ansiMagenta = "\033[35m"
	ansiCyan    = "\033[36m"
	ansiGray    = "\033[37m"
)

type levelStyle struct {
	label string
	color string
}

var levelStyles = map[slog.Level]levelStyle{
	slog.LevelDebug: {"DBG", ansiMagenta},
	slog.LevelInfo:  {"INF", ansiGreen},
	slog.LevelWarn:  {"WRN", ansiYellow},
	slog.LevelError: {"ERR", ansiRed},
}

func styleFor(l slog.Level) levelStyle {
	if s, ok := levelStyles[l]; ok {
		return s
	}
	return levelStyle{l.String(), ansiGray}
}

// output is shared by a handler and every handler derived from it so lines
// from different components never interleave.
type output struct {
	mu sync.Mutex
	w  io.Writer
}

// PrettyHandler writes "15:04:05 INF message key=value" lines. Group members
// get dotted keys such as store.path=Art.
type PrettyHandler struct {
	opts   slog.HandlerOptions
	out    *output
	attrs  []string
	prefix string
	color  bool
}

// NewPrettyHandler returns a handler with colors on.
func NewPrettyHandler(w io.Writer, opts *slog.HandlerOptions) *PrettyHandler {
	h := &PrettyHandler{out: &output{w: w}, color: true}
	if opts != nil {
		h.opts = *opts
	}
	return h
}

func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	threshold := slog.LevelInfo
	if h.opts.Level != nil {
		threshold = h.opts.Level.Level()
	}
	return level >= threshold
}

func (h *PrettyHandler) paint(b *strings.Builder, color, s string) {
	if h.color {
		b.WriteString(color)
		b.WriteString(s)
		b.WriteString(ansiReset)
		return
	}
	b.WriteString(s)
}

func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder

	h.paint(&b, ansiDim, r.Time.Format(time.TimeOnly))
	b.WriteByte(' ')
	st := styleFor(r.Level)
	h.paint(&b, st.color, st.label)
	b.WriteByte(' ')

	if h.opts.AddSource && r.PC != 0 {
		f, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		h.paint(&b, ansiDim, filepath.Base(f.File)+":"+strconv.Itoa(f.Line))
		b.WriteByte(' ')
	}
	h.paint(&b, ansiBold, r.Message)

	fields := slices.Grow(slices.Clip(h.attrs), r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		fields = flatten(fields, h.prefix, a)
		return true
	})
	if len(fields) > 0 {
		b.WriteByte(' ')
		h.paint(&b, ansiCyan, strings.Join(fields, " "))
	}
	b.WriteByte('\n')

	h.out.mu.Lock()
	defer h.out.mu.Unlock()
	_, err := io.WriteString(h.out.w, b.String())
	return err
}

// flatten appends a as key=value fields, expanding groups into dotted keys.
func flatten(fields []string, prefix string, a slog.Attr) []string {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return fields
	}

	key := a.Key
	switch {
	case prefix == "":
	case key == "":
		key = prefix
	default:
		key = prefix + "." + key
	}

	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			fields = flatten(fields, key, ga)
		}
		return fields
	}
	return append(fields, key+"="+formatValue(a.Value))
}

func (h *PrettyHandler) clone() *PrettyHandler {
	c := *h
	c.attrs = slices.Clip(h.attrs)
	return &c
}

func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := h.clone()
	for _, a := range attrs {
		c.attrs = flatten(c.attrs, h.prefix, a)
	}
	return c
}

func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := h.clone()
	if c.prefix == "" {
		c.prefix = name
	} else {
		c.prefix += "." + name
	}
	return c
}

// formatValue quotes strings that would not survive a split on spaces.
func formatValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if s == "" || strings.ContainsAny(s, " \t\"=") {
			return strconv.Quote(s)
		}
		return s
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return strconv.Quote(err.Error())
		}
	}
	return v.String()
}
