package batch

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// ValidFormat reports whether f is a supported output format.
func ValidFormat(f string) bool {
	switch f {
	case FormatText, FormatJSON, FormatCSV:
		return true
	}
	return false
}

// Write renders the result in the given format.
func (r *Result) Write(w io.Writer, format string) error {
	switch format {
	case FormatJSON:
		return r.writeJSON(w)
	case FormatCSV:
		return r.writeCSV(w)
	case FormatText, "":
		return r.writeText(w)
	}
	return fmt.Errorf("invalid format: %s (must be text, json or csv)", format)
}

type jsonItem struct {
	File      string   `json:"file"`
	RequestID string   `json:"request_id,omitempty"`
	Images    []string `json:"images"`
	Duration  float64  `json:"duration_seconds"`
	Error     string   `json:"error,omitempty"`
}

func (r *Result) writeJSON(w io.Writer) error {
	out := struct {
		Files []jsonItem `json:"files"`
	}{Files: make([]jsonItem, len(r.Items))}

	for i, it := range r.Items {
		images := it.Images
		if images == nil {
			images = []string{}
		}
		out.Files[i] = jsonItem{
			File:      it.File,
			RequestID: it.RequestID,
			Images:    images,
			Duration:  it.Duration.Seconds(),
		}
		if it.Err != nil {
			out.Files[i].Error = it.Err.Error()
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// writeCSV emits one row per result image, and one row without an image
// for files that failed or produced nothing.
func (r *Result) writeCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"file", "image_index", "image", "error"}); err != nil {
		return err
	}

	for _, it := range r.Items {
		errText := ""
		if it.Err != nil {
			errText = it.Err.Error()
		}
		if len(it.Images) == 0 {
			if err := cw.Write([]string{it.File, "", "", errText}); err != nil {
				return err
			}
			continue
		}
		for j, img := range it.Images {
			if err := cw.Write([]string{it.File, strconv.Itoa(j), img, ""}); err != nil {
				return err
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

func (r *Result) writeText(w io.Writer) error {
	var b strings.Builder
	for i, it := range r.Items {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "# %s\n", it.File)
		if it.Err != nil {
			fmt.Fprintf(&b, "error: %v\n", it.Err)
			continue
		}
		for _, img := range it.Images {
			b.WriteString(img)
			b.WriteString("\n")
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteStats prints processing statistics.
func (r *Result) WriteStats(w io.Writer) {
	s := r.Stats()
	_, _ = fmt.Fprintf(w, "\nProcessing Statistics:\n")
	_, _ = fmt.Fprintf(w, "  Total files: %d\n", s.Files)
	_, _ = fmt.Fprintf(w, "  Processed: %d\n", s.Processed)
	_, _ = fmt.Fprintf(w, "  Failed: %d\n", s.Failed)
	_, _ = fmt.Fprintf(w, "  Images: %d\n", s.Images)
	_, _ = fmt.Fprintf(w, "  Workers: %d\n", s.Workers)
	_, _ = fmt.Fprintf(w, "  Duration: %v\n", s.TotalDuration.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "  Avg per file: %v\n", s.AveragePerFile.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "  Throughput: %.1f files/sec\n", s.ThroughputPerSec)
}
