package cli

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"slices"
	"time"

	"github.com/dshills/kemote/internal/emote"
	"github.com/dshills/kemote/internal/output"
	"github.com/dshills/kemote/internal/search"
	"github.com/spf13/cobra"
)

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List recently picked emotes, most recent first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := output.GetWriter(flagFormat); err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cfg, os.Stderr, nil)
		if err != nil {
			return fail(err)
		}
		defer a.Close()

		start := time.Now()
		report := recentReport(a)
		if flagFetch {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
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

var recentAddCmd = &cobra.Command{
	Use:   "add <id> <name> <url>",
	Short: "Record an emote as picked",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		u, err := url.Parse(args[2])
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid url %q", args[2])
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cfg, os.Stderr, nil)
		if err != nil {
			return fail(err)
		}
		defer a.Close()

		e := emote.Emote{ID: args[0], Name: args[1], URL: args[2]}
		if err := a.recents.Access(e); err != nil {
			return fail(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s (%d of %d recent)\n", e.Name, a.recents.Len(), a.recents.Capacity())
		return nil
	},
}

// recentReport lists the recency store.
func recentReport(a *app) *output.Report {
	list := slices.Collect(a.recents.Snapshot())
	return &output.Report{
		Tool:    "kemote",
		Version: version,
		Source:  string(search.SourceRecent),
		Emotes:  entries(list),
	}
}

func init() {
	addOutputFlags(recentCmd)
	recentCmd.AddCommand(recentAddCmd)
}
