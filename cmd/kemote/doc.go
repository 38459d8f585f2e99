// Kemote searches the 7TV emote catalogue from the terminal.
//
// Every image and search result is cached on disk, so repeated searches and
// previously seen emotes work without the network. Picked emotes are kept in
// a short most-recent-first list that is shown whenever the query is empty.
//
// Usage:
//
//	kemote                        # open the picker (when attached to a terminal)
//	kemote pick                   # same, explicitly
//	kemote search pepe            # one-shot search, text output
//	kemote search pepe --fetch --format json
//	kemote recent                 # list recently picked emotes
//	kemote cache show             # cache statistics
//	kemote cache clear --category queries
//	kemote config set search.debounce 300ms
package main
