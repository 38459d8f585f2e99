// Package seventv queries the 7TV GraphQL API for emotes.
//
// A search posts a fixed query document with the query text, tag filters,
// sort order, page and page size. Each returned item carries several image
// variants; [SelectVariant] picks the one matching the configured format and
// scale, and items without one are dropped with a warning rather than failing
// the whole batch.
package seventv
