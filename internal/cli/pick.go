package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dshills/kemote/internal/config"
	"github.com/dshills/kemote/internal/diskstore"
	"github.com/dshills/kemote/internal/emote"
	"github.com/dshills/kemote/internal/picker"
	"github.com/dshills/kemote/internal/search"
	"github.com/spf13/cobra"
)

// logFileName is where the picker logs, since the terminal belongs to the UI.
const logFileName = "kemote.log"

var pickCmd = &cobra.Command{
	Use:   "pick",
	Short: "Search interactively and print the chosen emote",
	Long: "Opens the picker. Typing searches after a short pause; enter prints the " +
		"chosen emote's cached image path and URL.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runPick(cmd.Context(), cfg, cmd.OutOrStdout())
	},
}

func runPick(ctx context.Context, cfg config.Config, stdout io.Writer) error {
	logOut, closeLog, err := openLogFile(cfg)
	if err != nil {
		return fail(err)
	}
	defer closeLog()

	relay := &picker.Relay{}
	a, err := newApp(cfg, logOut, relay.ImageReady)
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	session, err := search.NewSession(search.Options{
		Lookup:        a.searcher,
		Recents:       a.recents,
		Pool:          a.searchPool,
		Window:        cfg.Search.Debounce,
		MaxQueryBytes: cfg.Search.MaxQueryBytes,
		OnResult:      relay.Results,
		OnError:       relay.SearchFailed,
		Log:           a.log,
	})
	if err != nil {
		return fail(err)
	}
	defer session.Close()
	a.log.WithField("session", session.ID()).Info("picker started")

	p := tea.NewProgram(picker.NewModel(session, a.images, a.recents), tea.WithAltScreen())
	relay.Attach(p)
	final, err := p.Run()
	if err != nil {
		return fail(fmt.Errorf("running picker: %w", err))
	}

	m, ok := final.(picker.Model)
	if !ok {
		return nil
	}
	if err := m.Err(); err != nil {
		a.log.WithError(err).Warn("picker exited with an error shown")
	}
	sel, ok := m.Selected()
	if !ok {
		return nil
	}
	return printSelection(ctx, a, sel, stdout)
}

// printSelection waits for the selected image to be on disk, then prints its
// path and URL. Without a cached file only the URL is printed.
func printSelection(ctx context.Context, a *app, sel emote.Emote, stdout io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Fetch.Timeout)
	defer cancel()

	st, err := a.images.Wait(ctx, sel.URL)
	if err == nil && st.Err == nil && a.disk.Exists(diskstore.Blobs, sel.URL) {
		fmt.Fprintln(stdout, a.disk.PathFor(diskstore.Blobs, sel.URL))
	} else {
		if err == nil {
			err = st.Err
		}
		fmt.Fprintf(os.Stderr, "Warning: image for %s is not cached: %v\n", sel.Name, err)
	}
	fmt.Fprintln(stdout, sel.URL)
	return nil
}

func openLogFile(cfg config.Config) (io.Writer, func(), error) {
	dir, err := cfg.ResolveCacheDir()
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating cache directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, logFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, func() { f.Close() }, nil
}
