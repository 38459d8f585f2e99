// Package diskstore provides content-addressed file storage for kemote.
//
// Entries are keyed by a SHA-256 hash of their identifier: the source URL for
// image blobs, and the normalized query text for search result documents.
// The resulting layout under the base directory is:
//
//	blobs/<sha256(url)>.<ext>
//	queries/<sha256(query)>.json
//	recent.json
//
// This layout is a compatibility contract: other readers of the cache
// directory rely on the same hashing. Writes go through a temporary file and
// a rename, so an entry is visible only once it has been fully written.
// There is no expiry; entries are immutable once stored and are removed only
// by [Store.Clear]. The store assumes a single process owns its directory.
package diskstore
