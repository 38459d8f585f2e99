// Package output formats emote listings for display or machine consumption.
//
// Three formats are supported:
//   - text: aligned terminal listing (default)
//   - json: the full [Report], with emotes in the recency document schema
//   - markdown: a table with inline image previews
//
// Use [GetWriter] to obtain a [Writer] for a given format string, then call
// [Writer.Write] with an [io.Writer] and a [*Report]. [WriteReport] handles
// destination selection.
package output
