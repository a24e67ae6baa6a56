// Package logging provides named slog loggers that print
//
//	LEVEL:     name - message key=value
//
// with the level and name coloured when the destination is a terminal.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var defaultLevel = new(slog.LevelVar)

// SetLevel changes the level of every logger created by New.
func SetLevel(level slog.Level) {
	defaultLevel.Set(level)
}

// New returns a logger writing to stderr under the given name.
func New(name string) *slog.Logger {
	return slog.New(NewHandler(os.Stderr, name, defaultLevel))
}

// Handler is a slog.Handler producing single-line coloured records.
type Handler struct {
	mu     *sync.Mutex
	w      io.Writer
	name   string
	level  slog.Leveler
	prefix string
	attrs  []slog.Attr
	styles styles
}

type styles struct {
	debug, info, warn, err, name lipgloss.Style
}

// NewHandler creates a handler for w. Colour is only emitted when w is a terminal.
func NewHandler(w io.Writer, name string, level slog.Leveler) *Handler {
	if level == nil {
		level = slog.LevelInfo
	}
	r := lipgloss.NewRenderer(w)
	return &Handler{
		mu:    &sync.Mutex{},
		w:     w,
		name:  name,
		level: level,
		styles: styles{
			debug: r.NewStyle().Foreground(lipgloss.Color("6")),
			info:  r.NewStyle().Foreground(lipgloss.Color("2")),
			warn:  r.NewStyle().Foreground(lipgloss.Color("3")),
			err:   r.NewStyle().Foreground(lipgloss.Color("1")),
			name:  r.NewStyle().Foreground(lipgloss.Color("6")),
		},
	}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *Handler) Handle(_ context.Context, record slog.Record) error {
	var b strings.Builder
	b.WriteString(h.levelStyle(record.Level).Render(levelName(record.Level)))
	b.WriteString(":     ")
	b.WriteString(h.styles.name.Render(h.name))
	b.WriteString(" - ")
	b.WriteString(record.Message)

	for _, attr := range h.attrs {
		writeAttr(&b, "", attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		writeAttr(&b, h.prefix, attr)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, attr := range attrs {
		if h.prefix != "" {
			attr.Key = h.prefix + attr.Key
		}
		clone.attrs = append(clone.attrs, attr)
	}
	return &clone
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}

func (h *Handler) levelStyle(level slog.Level) lipgloss.Style {
	switch {
	case level >= slog.LevelError:
		return h.styles.err
	case level >= slog.LevelWarn:
		return h.styles.warn
	case level >= slog.LevelInfo:
		return h.styles.info
	default:
		return h.styles.debug
	}
}

func levelName(level slog.Level) string {
	if level == slog.LevelWarn {
		return "WARNING"
	}
	return level.String()
}

func writeAttr(b *strings.Builder, prefix string, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}
	if attr.Value.Kind() == slog.KindGroup {
		group := prefix
		if attr.Key != "" {
			group += attr.Key + "."
		}
		for _, a := range attr.Value.Group() {
			writeAttr(b, group, a)
		}
		return
	}
	fmt.Fprintf(b, " %s%s=%v", prefix, attr.Key, attr.Value)
}
