package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// maxLevelWidth pads level names so messages line up
const maxLevelWidth = 5

// textHandler renders records as "LEVEL [module] message key=value ...".
// Timestamps are omitted; the terminal or supervisor adds them.
type textHandler struct {
	mu    *sync.Mutex
	w     io.Writer
	level slog.Leveler
	tz    *time.Location
	attrs []slog.Attr
	group string
}

// newTextHandler creates the human-readable console handler
func newTextHandler(w io.Writer, level slog.Leveler, tz *time.Location) slog.Handler {
	if tz == nil {
		tz = time.Local
	}
	return &textHandler{mu: &sync.Mutex{}, w: w, level: level, tz: tz}
}

// newJSONHandler creates the file handler with timestamps converted to tz
func newJSONHandler(w io.Writer, level slog.Leveler, tz *time.Location) slog.Handler {
	if tz == nil {
		tz = time.Local
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}
			switch a.Key {
			case slog.TimeKey:
				return slog.String(slog.TimeKey, a.Value.Time().In(tz).Format(time.RFC3339))
			case slog.LevelKey:
				if lvl, ok := a.Value.Any().(slog.Level); ok {
					return slog.String(slog.LevelKey, levelName(lvl))
				}
			}
			return a
		},
	})
}

func (h *textHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

//nolint:gocritic // slog.Handler interface requires record by value
func (h *textHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%-*s ", maxLevelWidth, levelName(r.Level))

	var module string
	var rest []slog.Attr
	collect := func(a slog.Attr) bool {
		if a.Key == moduleKey && module == "" {
			module = a.Value.String()
			return true
		}
		rest = append(rest, a)
		return true
	}
	for _, a := range h.attrs {
		collect(a)
	}
	r.Attrs(collect)

	if module != "" {
		sb.WriteString("[")
		sb.WriteString(module)
		sb.WriteString("] ")
	}
	sb.WriteString(r.Message)

	for _, a := range rest {
		writeAttr(&sb, h.group, a, h.tz)
	}
	sb.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, sb.String())
	return err
}

func (h *textHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

func (h *textHandler) WithGroup(name string) slog.Handler {
	clone := *h
	if clone.group != "" {
		clone.group += "." + name
	} else {
		clone.group = name
	}
	return &clone
}

func writeAttr(sb *strings.Builder, prefix string, a slog.Attr, tz *time.Location) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}

	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			writeAttr(sb, key, ga, tz)
		}
		return
	}

	sb.WriteByte(' ')
	sb.WriteString(key)
	sb.WriteByte('=')

	var val string
	switch a.Value.Kind() {
	case slog.KindTime:
		val = a.Value.Time().In(tz).Format(time.RFC3339)
	default:
		val = a.Value.String()
	}
	if val == "" || strings.ContainsAny(val, " \t\"=") {
		val = fmt.Sprintf("%q", val)
	}
	sb.WriteString(val)
}

// levelName maps slog levels, including the custom trace level, to names
func levelName(level slog.Level) string {
	switch {
	case level <= traceLevelValue:
		return "TRACE"
	case level < slog.LevelInfo:
		return "DEBUG"
	case level < slog.LevelWarn:
		return "INFO"
	case level < slog.LevelError:
		return "WARN"
	default:
		return "ERROR"
	}
}
