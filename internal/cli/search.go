package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dshills/kemote/internal/diskstore"
	"github.com/dshills/kemote/internal/emote"
	"github.com/dshills/kemote/internal/output"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// Output flags shared by listing commands
var (
	flagFormat string
	flagOut    string
	flagFetch  bool
)

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagFormat, "format", "text", "Output format (text, json, markdown)")
	cmd.Flags().StringVar(&flagOut, "out", "", "Output file path (default: stdout)")
	cmd.Flags().BoolVar(&flagFetch, "fetch", false, "Load every listed image into the cache")
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search emotes once and print the results",
	Long: "Runs one search through the on-disk query cache, querying 7TV on a miss. " +
		"Words are joined with spaces; the query is normalized like typed input.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := output.GetWriter(flagFormat); err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		query := emote.NormalizeQuery(strings.Join(args, " "), cfg.Search.MaxQueryBytes)
		if query == "" {
			return errors.New("query is empty after normalization")
		}

		a, err := newApp(cfg, os.Stderr, nil)
		if err != nil {
			return fail(err)
		}
		defer a.Close()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		start := time.Now()
		emotes, src, err := a.searcher.Lookup(ctx, query)
		if err != nil {
			return fail(fmt.Errorf("searching %q: %w", query, err))
		}
		report := &output.Report{
			Tool:    "kemote",
			Version: version,
			Query:   query,
			Source:  string(src),
			Emotes:  entries(emotes),
		}
		if flagFetch {
			if err := fetchImages(ctx, a, report.Emotes); err != nil {
				return fail(err)
			}
		}
		report.Timing.TotalMs = time.Since(start).Milliseconds()

		if err := output.WriteReport(report, flagFormat, flagOut, cmd.OutOrStdout()); err != nil {
			return fail(err)
		}
		return nil
	},
}

func entries(emotes []emote.Emote) []output.Entry {
	out := make([]output.Entry, len(emotes))
	for i, e := range emotes {
		out[i] = output.Entry{Emote: e}
	}
	return out
}

// fetchImages loads every entry's image through the image cache and records
// the outcome on the entry. Individual image failures are reported per entry.
func fetchImages(ctx context.Context, a *app, list []output.Entry) error {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Fetch.Timeout)
	defer cancel()

	for _, e := range list {
		a.images.Load(e.URL)
	}
	g, ctx := errgroup.WithContext(ctx)
	for i := range list {
		e := &list[i]
		g.Go(func() error {
			st, err := a.images.Wait(ctx, e.URL)
			if err != nil {
				return fmt.Errorf("waiting for %s: %w", e.Name, err)
			}
			if st.Err != nil {
				e.Error = st.Err.Error()
				return nil
			}
			e.Width, e.Height = st.Artifact.Width, st.Artifact.Height
			e.Frames = len(st.Artifact.Frames)
			if a.disk.Exists(diskstore.Blobs, e.URL) {
				e.CachedPath = a.disk.PathFor(diskstore.Blobs, e.URL)
			}
			return nil
		})
	}
	return g.Wait()
}

func init() {
	addOutputFlags(searchCmd)
}
