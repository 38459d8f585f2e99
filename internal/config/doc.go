// Package config loads and merges kemote configuration from multiple sources.
//
// Precedence (highest to lowest):
//  1. CLI flags
//  2. Environment variables (KEMOTE_CACHE_DIR, KEMOTE_SEARCH_DEBOUNCE, KEMOTE_LOG_LEVEL, etc.)
//  3. Config file ($XDG_CONFIG_HOME/kemote/config.yaml)
//  4. Built-in defaults
//
// Use [Load] to obtain a merged [Config], [Save] to write a config file, and
// [SetField] to update a single dotted key such as "search.debounce".
package config
