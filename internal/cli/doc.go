// Package cli wires together the Cobra command tree for the kemote binary.
//
// It defines the root command and all subcommands (pick, search, recent,
// cache, config, version), binds flags, reads configuration, builds the
// cache and search components, and returns exit codes: 0 on success, 2 for
// usage errors and 4 for runtime failures.
package cli
