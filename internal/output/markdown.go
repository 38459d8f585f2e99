package output

import (
	"io"
	"strings"
)

// MarkdownWriter outputs a table with inline image previews, suitable for
// pasting into chat or a document.
type MarkdownWriter struct{}

func (m *MarkdownWriter) Write(w io.Writer, report *Report) error {
	ew := &errWriter{w: w}

	if report.Query != "" {
		ew.printf("## Emotes matching `%s`\n\n", report.Query)
	} else {
		ew.printf("## Recent emotes\n\n")
	}

	if len(report.Emotes) == 0 {
		ew.println("No emotes found.")
		return ew.err
	}

	ew.println("| Preview | Name | ID |")
	ew.println("|---------|------|----|")
	for _, e := range report.Emotes {
		name := mdEscape(e.Name)
		ew.printf("| ![%s](%s) | %s | `%s` |\n", name, e.URL, name, e.ID)
	}
	return ew.err
}

var mdReplacer = strings.NewReplacer("|", `\|`, "[", `\[`, "]", `\]`, "`", "'")

func mdEscape(s string) string {
	return mdReplacer.Replace(s)
}
