// Package common provides shared utilities including timing functionality.
package common

import (
	"fmt"
	"strings"
	"time"
)

// Lap is one named phase measured by a Timer.
type Lap struct {
	Name     string
	Duration time.Duration
}

// Timer measures a request as a sequence of named phases.
type Timer struct {
	start time.Time
	last  time.Time
	name  string
	laps  []Lap
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	now := time.Now()
	return &Timer{start: now, last: now}
}

// NewNamedTimer creates a new timer with the given name.
func NewNamedTimer(name string) *Timer {
	t := NewTimer()
	t.name = name
	return t
}

// Lap closes the current phase under name and starts the next one.
func (t *Timer) Lap(name string) time.Duration {
	now := time.Now()
	d := now.Sub(t.last)
	t.last = now
	t.laps = append(t.laps, Lap{Name: name, Duration: d})
	return d
}

// Laps returns the recorded phases in order.
func (t *Timer) Laps() []Lap {
	return append([]Lap(nil), t.laps...)
}

// Elapsed returns the time since the timer started.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// Name returns the timer name (empty string if unnamed).
func (t *Timer) Name() string {
	return t.name
}

// LogAttrs flattens the laps into slog-style key/value pairs,
// e.g. "stage_ms", 3.
func (t *Timer) LogAttrs() []any {
	attrs := make([]any, 0, 2*len(t.laps)+2)
	for _, l := range t.laps {
		attrs = append(attrs, l.Name+"_ms", l.Duration.Milliseconds())
	}
	attrs = append(attrs, "total_ms", t.Elapsed().Milliseconds())
	return attrs
}

// String returns a formatted string representation of the timer.
func (t *Timer) String() string {
	parts := make([]string, 0, len(t.laps))
	for _, l := range t.laps {
		parts = append(parts, fmt.Sprintf("%s=%v", l.Name, l.Duration))
	}
	s := strings.Join(parts, " ")
	if t.name != "" {
		return fmt.Sprintf("%s: %s", t.name, s)
	}
	return s
}
