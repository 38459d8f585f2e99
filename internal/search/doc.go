// Package search turns keystrokes into search results.
//
// A [Session] owns one input's generation counter. Every text change advances
// the generation and schedules a search after a quiescence window (200ms by
// default) on the worker pool. When the timer fires, the search runs only if
// its generation is still current; after the possibly slow lookup the
// generation is checked again, so a result that went stale during network
// latency is discarded. Cancellation is logical: superseded work runs to
// completion and its result is dropped.
//
// An empty query skips the lookup and delivers the recency list instead.
// Lookups go through a [Searcher], which serves query documents from the disk
// store and falls back to the remote service, persisting its answer.
package search
