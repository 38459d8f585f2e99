// Package picker is the terminal front end: a query input above a scrolling
// emote list.
//
// The model never blocks. Text changes go to a search session, results come
// back as [ResultsMsg] and are applied only while their generation is
// current. Rows ask the image cache for their emote on every render, and
// [ImageReadyMsg] triggers the re-render that shows a finished image.
// Enter records the selection through a command and quits when it lands. A
// [Relay] bridges session and cache callbacks, which run on worker
// goroutines, into program messages.
package picker
