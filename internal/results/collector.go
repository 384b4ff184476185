// Package results turns the external program's standard output into the
// ordered list of result identifiers shown to the user.
package results

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ResultSet is the ordered list of result paths, relative to the public
// asset root. Order is the program's print order; duplicates are kept.
type ResultSet []string

// Collect splits stdout on newlines and drops blank lines. Lines are kept
// as printed apart from a trailing carriage return; they are not
// normalised or checked for existence.
func Collect(stdout string) ResultSet {
	lines := strings.Split(stdout, "\n")
	set := make(ResultSet, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		set = append(set, strings.TrimSuffix(line, "\r"))
	}
	return set
}

// Truncate returns a copy holding at most n entries.
func (rs ResultSet) Truncate(n int) ResultSet {
	if n < 0 || len(rs) <= n {
		n = len(rs)
	}
	out := make(ResultSet, n)
	copy(out, rs[:n])
	return out
}

// Join renders the set as a sep-joined list, e.g. for a query string.
func (rs ResultSet) Join(sep string) string {
	return strings.Join(rs, sep)
}

// ParseList is the inverse of Join for the comma-joined query form.
func ParseList(s string) ResultSet {
	parts := strings.Split(s, ",")
	set := make(ResultSet, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			set = append(set, p)
		}
	}
	return set
}

// Remover is anything that can delete staged input.
type Remover interface {
	Remove() error
}

// CleanupFunc is notified about staging cleanup failures.
type CleanupFunc func(requestID string, err error)

// Collector parses output and always removes the staged input afterwards.
type Collector struct {
	OnCleanupError CleanupFunc
}

// Finish collects stdout and removes staged. Cleanup is best-effort: a
// failure is logged and reported to OnCleanupError, never returned.
func (c *Collector) Finish(requestID, stdout string, staged Remover) ResultSet {
	set := Collect(stdout)
	c.Cleanup(requestID, staged)
	return set
}

// Cleanup removes staged on a path where nothing is collected.
func (c *Collector) Cleanup(requestID string, staged Remover) {
	if staged == nil {
		return
	}
	if err := staged.Remove(); err != nil {
		slog.Warn("Failed to clean up staged input", "request_id", requestID, "error", err)
		if c != nil && c.OnCleanupError != nil {
			c.OnCleanupError(requestID, err)
		}
	}
}

// ErrOutsideRoot is returned by VerifyUnder for paths escaping the root.
var ErrOutsideRoot = errors.New("result path escapes asset root")

// VerifyUnder checks that every entry names an existing file below root.
func (rs ResultSet) VerifyUnder(root string) error {
	for _, p := range rs {
		rel := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(p, "/")))
		if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
			return fmt.Errorf("%w: %s", ErrOutsideRoot, p)
		}
		info, err := os.Stat(filepath.Join(root, rel))
		if err != nil {
			return fmt.Errorf("result %s: %w", p, err)
		}
		if info.IsDir() {
			return fmt.Errorf("result %s is a directory", p)
		}
	}
	return nil
}
