package output

import (
	"fmt"
	"io"
	"strings"
)

// TextWriter outputs a human-readable listing.
type TextWriter struct{}

func (t *TextWriter) Write(w io.Writer, report *Report) error {
	ew := &errWriter{w: w}

	if report.Query != "" {
		ew.printf("Emotes matching %q (%s)\n", report.Query, report.Source)
	} else {
		ew.printf("Recent emotes (%s)\n", report.Source)
	}
	ew.println(strings.Repeat("─", 60))

	if len(report.Emotes) == 0 {
		ew.println("No emotes found.")
		return ew.err
	}

	width := nameWidth(report.Emotes)
	for i, e := range report.Emotes {
		ew.printf("%3d  %-*s  %s\n", i+1, width, e.Name, e.ID)
		ew.printf("     %-*s  %s\n", width, "", e.URL)
		switch {
		case e.Error != "":
			ew.printf("     %-*s  error: %s\n", width, "", e.Error)
		case e.CachedPath != "":
			ew.printf("     %-*s  %dx%d, %s  %s\n", width, "", e.Width, e.Height, frames(e.Frames), e.CachedPath)
		}
	}

	ew.printf("%s\n", strings.Repeat("─", 60))
	ew.printf("%d emotes in %dms\n", len(report.Emotes), report.Timing.TotalMs)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first error.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...interface{}) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func (ew *errWriter) println(s string) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintln(ew.w, s)
}

func nameWidth(entries []Entry) int {
	width := 4
	for _, e := range entries {
		if n := len([]rune(e.Name)); n > width {
			width = n
		}
	}
	return min(width, 32)
}

func frames(n int) string {
	if n == 1 {
		return "1 frame"
	}
	return fmt.Sprintf("%d frames", n)
}
