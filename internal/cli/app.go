package cli

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/dshills/kemote/internal/config"
	"github.com/dshills/kemote/internal/diskstore"
	"github.com/dshills/kemote/internal/fetch"
	"github.com/dshills/kemote/internal/imagecache"
	"github.com/dshills/kemote/internal/logging"
	"github.com/dshills/kemote/internal/recent"
	"github.com/dshills/kemote/internal/search"
	"github.com/dshills/kemote/internal/seventv"
	"github.com/dshills/kemote/internal/worker"
	"github.com/sirupsen/logrus"
)

// searchWorkers sizes the pool reserved for debounced searches and recency
// work, so queued image loads never delay a result list.
const searchWorkers = 2

// app holds the long-lived components shared by the commands.
type app struct {
	cfg        config.Config
	log        *logrus.Logger
	disk       *diskstore.Store
	fetcher    *fetch.Client
	pool       *worker.Pool
	searchPool *worker.Pool
	images     *imagecache.Cache
	recents    *recent.Store
	searcher   *search.Searcher

	released      atomic.Int64
	releasedBytes atomic.Int64
}

// newApp builds every component from cfg. Logs go to logOut. onReady may be
// nil.
func newApp(cfg config.Config, logOut io.Writer, onReady func(imagecache.Key, imagecache.State)) (*app, error) {
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format, logOut)
	if err != nil {
		return nil, err
	}

	dir, err := cfg.ResolveCacheDir()
	if err != nil {
		return nil, err
	}
	disk, err := diskstore.New(dir)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}

	recents, err := recent.Open(disk, cfg.Recent.Capacity)
	if err != nil {
		return nil, err
	}

	fetcher := fetch.New(fetch.Options{
		Timeout:           cfg.Fetch.Timeout,
		RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
		UserAgent:         cfg.Fetch.UserAgent,
	})
	catalogue := seventv.New(fetcher, seventv.Options{
		Endpoint: cfg.Endpoint,
		Mime:     cfg.Image.Mime,
		Scale:    cfg.Image.Scale,
		PageSize: cfg.Search.PageSize,
		SortBy:   cfg.Search.SortBy,
	}, log)

	a := &app{
		cfg:        cfg,
		log:        log,
		disk:       disk,
		fetcher:    fetcher,
		pool:       worker.New(int64(cfg.Workers), log),
		searchPool: worker.New(searchWorkers, log),
		recents:    recents,
		searcher:   search.NewSearcher(disk, catalogue, log),
	}
	a.images, err = imagecache.New(imagecache.Options{
		Disk:     disk,
		Fetcher:  fetcher,
		Pool:     a.pool,
		OnReady:  onReady,
		Releaser: imagecache.ReleaserFunc(a.release),
		Log:      log,
	})
	if err != nil {
		a.pool.Close()
		a.searchPool.Close()
		return nil, err
	}
	return a, nil
}

// release drops the decoded frames of an artifact the cache no longer owns.
func (a *app) release(key imagecache.Key, art *imagecache.Artifact) {
	a.released.Add(1)
	a.releasedBytes.Add(art.DecodedBytes())
	art.Frames = nil
	art.Delays = nil
}

// Close releases decoded images and stops background work.
func (a *app) Close() {
	st := a.images.Stats()
	a.log.WithFields(logrus.Fields{
		"ready":     st.Ready,
		"failed":    st.Failed,
		"fetches":   st.Fetches,
		"disk_hits": st.DiskHits,
	}).Debug("shutting down")
	a.searchPool.Close()
	a.images.Close()
	a.pool.Close()
	a.log.WithFields(logrus.Fields{
		"released":       a.released.Load(),
		"released_bytes": a.releasedBytes.Load(),
	}).Debug("images released")
}
