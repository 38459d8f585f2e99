package output

import (
	"fmt"
	"io"
	"os"

	"github.com/dshills/kemote/internal/emote"
)

// Report is an emote listing produced by a search or the recency list.
type Report struct {
	Tool    string  `json:"tool"`
	Version string  `json:"version"`
	Query   string  `json:"query,omitempty"`
	Source  string  `json:"source"`
	Emotes  []Entry `json:"emotes"`
	Timing  Timing  `json:"timing"`
}

// Entry is one listed emote, with image details when it was fetched.
type Entry struct {
	emote.Emote
	CachedPath string `json:"cached_path,omitempty"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	Frames     int    `json:"frames,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Timing records how long the listing took.
type Timing struct {
	TotalMs int64 `json:"totalMs"`
}

// Writer writes a report in a specific format.
type Writer interface {
	Write(w io.Writer, report *Report) error
}

// GetWriter returns a writer for the specified format.
func GetWriter(format string) (Writer, error) {
	switch format {
	case "text":
		return &TextWriter{}, nil
	case "json":
		return &JSONWriter{}, nil
	case "markdown":
		return &MarkdownWriter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// WriteReport writes the report to outPath, or to stdout when outPath is empty.
func WriteReport(report *Report, format, outPath string, stdout io.Writer) error {
	writer, err := GetWriter(format)
	if err != nil {
		return err
	}

	var w io.Writer
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		w = f
	} else {
		w = stdout
	}

	return writer.Write(w, report)
}
