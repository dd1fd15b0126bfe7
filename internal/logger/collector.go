package logger

import (
	"context"
	"log/slog"
	"sync"
)

// Entry is one record captured by a Collector.
type Entry struct {
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// Collector is a slog.Handler that keeps records in memory. Conversions use it
// to report skipped channels back to the caller alongside normal logging.
type Collector struct {
	mu      *sync.Mutex
	entries *[]Entry
	level   slog.Level
	attrs   []slog.Attr
	group   string
}

// NewCollector returns a Collector that keeps records at or above level.
func NewCollector(level slog.Level) *Collector {
	return &Collector{
		mu:      &sync.Mutex{},
		entries: &[]Entry{},
		level:   level,
	}
}

// Logger wraps the collector in the Logger interface.
func (c *Collector) Logger() Logger {
	return New(c)
}

// Entries returns a copy of the captured records.
func (c *Collector) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(*c.entries))
	copy(out, *c.entries)
	return out
}

// Warnings returns the messages of records at warn level or above.
func (c *Collector) Warnings() []string {
	var out []string
	for _, e := range c.Entries() {
		if e.Level >= slog.LevelWarn {
			out = append(out, e.Message)
		}
	}
	return out
}

func (c *Collector) Enabled(_ context.Context, level slog.Level) bool {
	return level >= c.level
}

func (c *Collector) Handle(_ context.Context, r slog.Record) error {
	e := Entry{
		Level:   r.Level,
		Message: r.Message,
		Attrs:   make(map[string]any, len(c.attrs)+r.NumAttrs()),
	}
	add := func(a slog.Attr) bool {
		key := a.Key
		if c.group != "" {
			key = c.group + "." + key
		}
		e.Attrs[key] = a.Value.Any()
		return true
	}
	for _, a := range c.attrs {
		add(a)
	}
	r.Attrs(add)

	c.mu.Lock()
	*c.entries = append(*c.entries, e)
	c.mu.Unlock()
	return nil
}

func (c *Collector) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *c
	next.attrs = append(append([]slog.Attr{}, c.attrs...), attrs...)
	return &next
}

func (c *Collector) WithGroup(name string) slog.Handler {
	if name == "" {
		return c
	}
	next := *c
	if c.group != "" {
		next.group = c.group + "." + name
	} else {
		next.group = name
	}
	return &next
}
