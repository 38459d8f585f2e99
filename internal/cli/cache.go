package cli

import (
	"encoding/json"
	"fmt"

	"github.com/dshills/kemote/internal/config"
	"github.com/dshills/kemote/internal/diskstore"
	"github.com/spf13/cobra"
)

var flagCategory string

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the on-disk cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove cached images, query results or the recency list",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		targets, err := clearTargets(flagCategory)
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		disk, err := openDisk(cfg)
		if err != nil {
			return fail(err)
		}

		out := cmd.OutOrStdout()
		for _, t := range targets {
			if t == "recent" {
				removed, err := disk.RemoveDocument(diskstore.RecentDocument)
				if err != nil {
					return fail(fmt.Errorf("clearing recent: %w", err))
				}
				if removed {
					fmt.Fprintln(out, "Cleared recent list.")
				}
				continue
			}
			n, err := disk.Clear(diskstore.Category(t))
			if err != nil {
				return fail(fmt.Errorf("clearing %s: %w", t, err))
			}
			fmt.Fprintf(out, "Cleared %d %s.\n", n, t)
		}
		return nil
	},
}

var cacheShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show cache statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		disk, err := openDisk(cfg)
		if err != nil {
			return fail(err)
		}
		stats, err := disk.GetStats()
		if err != nil {
			return fail(fmt.Errorf("reading cache stats: %w", err))
		}
		data, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return fail(err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

// clearTargets expands a --category value. The recency list is only removed
// when named explicitly.
func clearTargets(category string) ([]string, error) {
	switch category {
	case "", "all":
		return []string{string(diskstore.Blobs), string(diskstore.Queries)}, nil
	case string(diskstore.Blobs), string(diskstore.Queries), "recent":
		return []string{category}, nil
	default:
		return nil, fmt.Errorf("unknown category %q (want blobs, queries, recent or all)", category)
	}
}

func openDisk(cfg config.Config) (*diskstore.Store, error) {
	dir, err := cfg.ResolveCacheDir()
	if err != nil {
		return nil, err
	}
	disk, err := diskstore.New(dir)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	return disk, nil
}

func init() {
	cacheClearCmd.Flags().StringVar(&flagCategory, "category", "all", "What to clear (blobs, queries, recent, all)")
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheShowCmd)
}
