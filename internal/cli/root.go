package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/dshills/kemote/internal/config"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X".
var version = "dev"

// Exit codes
const (
	ExitSuccess      = 0
	ExitUsageError   = 2
	ExitRuntimeError = 4
)

// Global flags
var (
	flagCacheDir  string
	flagEndpoint  string
	flagWorkers   int
	flagLogLevel  string
	flagLogFormat string
)

var rootCmd = &cobra.Command{
	Use:   "kemote",
	Short: "Search 7TV emotes from the terminal",
	Long: "Kemote searches the 7TV emote catalogue, caches every image on disk, " +
		"and remembers the emotes you pick. Without a subcommand it opens the picker " +
		"when attached to a terminal.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !interactive() {
			return cmd.Help()
		}
		return pickCmd.RunE(cmd, args)
	},
}

// Run executes the root command and returns an exit code.
func Run() int {
	rootCmd.AddCommand(pickCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(recentCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error
		return ExitUsageError
	}

	return exitCode
}

// exitCode is set by command handlers to control the process exit code.
var exitCode = ExitSuccess

// fail reports a runtime error and sets the runtime exit code. Returning
// errors from RunE is reserved for usage errors.
func fail(err error) error {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	exitCode = ExitRuntimeError
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print kemote version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "kemote version %s\n", version)
	},
}

func buildOverrides() map[string]string {
	m := make(map[string]string)
	if flagCacheDir != "" {
		m["cache_dir"] = flagCacheDir
	}
	if flagEndpoint != "" {
		m["endpoint"] = flagEndpoint
	}
	if flagWorkers > 0 {
		m["workers"] = strconv.Itoa(flagWorkers)
	}
	if flagLogLevel != "" {
		m["log.level"] = flagLogLevel
	}
	if flagLogFormat != "" {
		m["log.format"] = flagLogFormat
	}
	return m
}

func loadConfig() (config.Config, error) {
	return config.Load(buildOverrides())
}

// interactive reports whether both stdin and stdout are terminals.
func interactive() bool {
	return isTerminal(os.Stdin.Fd()) && isTerminal(os.Stdout.Fd())
}

func isTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagCacheDir, "cache-dir", "", "Cache directory (default: per-user cache dir)")
	pf.StringVar(&flagEndpoint, "endpoint", "", "7TV GraphQL endpoint")
	pf.IntVar(&flagWorkers, "workers", 0, "Maximum concurrent image loads")
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&flagLogFormat, "log-format", "", "Log format (text, json)")
}
