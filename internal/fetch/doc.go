// Package fetch performs kemote's outbound HTTP reads: raw byte retrieval for
// emote images and JSON submission for search queries.
//
// Every failure is reported as a [*NetworkError] classified as unreachable,
// non-success status, or timeout. Nothing is retried here: callers
// store a failure as a terminal outcome. An optional rate limit bounds how
// fast requests leave the process, and every request is wrapped in an
// OpenTelemetry client span.
//
// The HTTP client is injectable through [Options] so that tests can redirect
// calls to local httptest servers.
package fetch
