// Package imagecache is the in-memory tier of kemote's two-tier image cache.
//
// [Cache.Load] never blocks: it returns Pending or Ready (with an [Artifact]
// or an error). The first load of a URL creates its entry immediately, so
// concurrent callers share one background load instead of starting another.
// The background load reads the blob from the disk store or, on a miss,
// fetches it, persists the raw bytes and decodes them. The entry then becomes
// Ready exactly once and the OnReady hook runs exactly once for the key.
//
// Fetch and decode failures are terminal for their key; nothing is retried.
// A failure to persist a fetched blob is logged and the bytes are still
// decoded and served. Entries are never evicted. [Cache.Close] hands every
// decoded artifact to the configured Releaser.
package imagecache
