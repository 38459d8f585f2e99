package imagecache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dshills/kemote/internal/diskstore"
	"github.com/dshills/kemote/internal/flight"
	"github.com/dshills/kemote/internal/worker"
	"github.com/sirupsen/logrus"
)

// ErrClosed is the outcome of loads that were pending or issued after Close.
var ErrClosed = errors.New("imagecache: closed")

// DecodeError reports a malformed or unsupported image payload.
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("imagecache: decoding %s: %v", e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsDecodeError checks if an error is a decode error.
func IsDecodeError(err error) bool {
	var decErr *DecodeError
	return errors.As(err, &decErr)
}

// Key identifies a cached resource: the SHA-256 of its URL.
type Key string

// KeyFor derives the cache key of a URL.
func KeyFor(url string) Key {
	return Key(diskstore.HashKey(url))
}

// Status is the load state of a key.
type Status int

const (
	// Pending means the resource is being loaded.
	Pending Status = iota
	// Ready means loading finished with an Artifact or an error.
	Ready
)

func (s Status) String() string {
	if s == Ready {
		return "ready"
	}
	return "pending"
}

// State is what Load reports for a key.
type State struct {
	Status   Status
	Artifact *Artifact
	Err      error
}

// Fetcher retrieves remote bytes.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Releaser takes back decoded artifacts when the cache is closed.
type Releaser interface {
	Release(key Key, a *Artifact)
}

// ReleaserFunc adapts a function to the Releaser interface.
type ReleaserFunc func(key Key, a *Artifact)

// Release calls f(key, a).
func (f ReleaserFunc) Release(key Key, a *Artifact) { f(key, a) }

// Options configures a Cache. Disk, Fetcher and Pool are required.
type Options struct {
	Disk    *diskstore.Store
	Fetcher Fetcher
	Pool    *worker.Pool
	Decoder Decoder
	// OnReady runs once per key, from a pool goroutine, after the key's
	// state has become Ready.
	OnReady  func(key Key, st State)
	Releaser Releaser
	Log      logrus.FieldLogger
}

type entry struct {
	url   string
	call  *flight.Call[*Artifact]
	state State
}

// Cache is the in-memory tier over the disk store and the network.
// Every key has exactly one entry for the life of the cache.
type Cache struct {
	disk     *diskstore.Store
	fetcher  Fetcher
	pool     *worker.Pool
	decoder  Decoder
	onReady  func(Key, State)
	releaser Releaser
	log      logrus.FieldLogger

	mu      sync.Mutex
	entries map[Key]*entry
	closed  bool

	fetches  atomic.Int64
	diskHits atomic.Int64
}

// New creates a Cache.
func New(opts Options) (*Cache, error) {
	if opts.Disk == nil || opts.Fetcher == nil || opts.Pool == nil {
		return nil, errors.New("imagecache: disk, fetcher and pool are required")
	}
	if opts.Decoder == nil {
		opts.Decoder = ImageDecoder{}
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	return &Cache{
		disk:     opts.Disk,
		fetcher:  opts.Fetcher,
		pool:     opts.Pool,
		decoder:  opts.Decoder,
		onReady:  opts.OnReady,
		releaser: opts.Releaser,
		log:      opts.Log,
		entries:  make(map[Key]*entry),
	}, nil
}

// Load returns the current state for url without blocking. The first call
// for a url starts loading it in the background; later calls observe the
// same entry until it becomes Ready.
func (c *Cache) Load(url string) State {
	key := KeyFor(url)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return State{Status: Ready, Err: ErrClosed}
	}
	if e, ok := c.entries[key]; ok {
		st := e.state
		c.mu.Unlock()
		return st
	}
	e := &entry{url: url, call: flight.New[*Artifact](), state: State{Status: Pending}}
	c.entries[key] = e
	c.mu.Unlock()

	if !c.pool.Go("imagecache.load", func(ctx context.Context) { c.run(ctx, key, e) }) {
		c.complete(key, e, nil, ErrClosed)
	}
	return State{Status: Pending}
}

// Wait loads url and blocks until it is Ready or ctx is done.
func (c *Cache) Wait(ctx context.Context, url string) (State, error) {
	if st := c.Load(url); st.Status == Ready {
		return st, nil
	}
	key := KeyFor(url)
	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()
	if !ok {
		return State{Status: Ready, Err: ErrClosed}, nil
	}
	if _, err := e.call.Wait(ctx); err != nil && ctx.Err() != nil {
		return State{Status: Pending}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return e.state, nil
}

// Peek reports the state for url without starting a load.
func (c *Cache) Peek(url string) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[KeyFor(url)]
	if !ok {
		return State{}, false
	}
	return e.state, true
}

func (c *Cache) run(ctx context.Context, key Key, e *entry) {
	var (
		art *Artifact
		err error
	)
	defer func() {
		if r := recover(); r != nil {
			art, err = nil, &DecodeError{URL: e.url, Err: fmt.Errorf("panic: %v", r)}
		}
		c.complete(key, e, art, err)
	}()
	art, err = c.produce(ctx, e.url)
}

// produce reads the blob from disk, or fetches and persists it, then decodes.
func (c *Cache) produce(ctx context.Context, url string) (*Artifact, error) {
	log := c.log.WithField("url", url)

	data, ok, err := c.disk.Read(diskstore.Blobs, url)
	if err != nil {
		log.WithError(err).Warn("reading cached blob failed, fetching instead")
	}
	if ok {
		c.diskHits.Add(1)
		return c.decode(url, data)
	}

	c.fetches.Add(1)
	data, err = c.fetcher.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := c.disk.Write(diskstore.Blobs, url, data); err != nil {
		log.WithError(err).Warn("persisting blob failed, serving from memory")
	}
	return c.decode(url, data)
}

func (c *Cache) decode(url string, data []byte) (*Artifact, error) {
	art, err := c.decoder.Decode(data)
	if err != nil {
		return nil, &DecodeError{URL: url, Err: err}
	}
	art.Source = url
	return art, nil
}

// complete moves e to Ready. Only the first completion for an entry counts.
func (c *Cache) complete(key Key, e *entry, art *Artifact, err error) {
	st := State{Status: Ready, Artifact: art, Err: err}

	c.mu.Lock()
	if e.state.Status == Ready {
		c.mu.Unlock()
		// Closed while loading: nobody else will ever release this.
		if art != nil {
			c.release(key, art)
		}
		return
	}
	e.state = st
	c.mu.Unlock()

	e.call.Resolve(art, err)

	log := c.log.WithFields(logrus.Fields{"key": string(key), "url": e.url})
	if err != nil {
		log.WithError(err).Debug("load failed")
	} else {
		log.WithField("frames", len(art.Frames)).Debug("load complete")
	}
	if c.onReady != nil {
		c.onReady(key, st)
	}
}

func (c *Cache) release(key Key, art *Artifact) {
	if c.releaser != nil {
		c.releaser.Release(key, art)
	}
}

// Close releases every decoded artifact and resolves pending loads with
// ErrClosed. Later loads report ErrClosed.
func (c *Cache) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	entries := c.entries
	c.entries = make(map[Key]*entry)

	var pending []*entry
	released := make(map[Key]*Artifact)
	for key, e := range entries {
		switch {
		case e.state.Status == Pending:
			e.state = State{Status: Ready, Err: ErrClosed}
			pending = append(pending, e)
		case e.state.Artifact != nil:
			released[key] = e.state.Artifact
		}
	}
	c.mu.Unlock()

	for _, e := range pending {
		e.call.Resolve(nil, ErrClosed)
	}
	for key, art := range released {
		c.release(key, art)
	}
	c.log.WithFields(logrus.Fields{
		"released": len(released),
		"aborted":  len(pending),
	}).Debug("image cache closed")
}

// Stats summarizes the cache.
type Stats struct {
	Pending    int   `json:"pending"`
	Ready      int   `json:"ready"`
	Failed     int   `json:"failed"`
	Fetches    int64 `json:"fetches"`
	DiskHits   int64 `json:"diskHits"`
	FrameBytes int64 `json:"frameBytes"`
}

// Stats returns a snapshot of entry counts and load counters.
func (c *Cache) Stats() Stats {
	s := Stats{Fetches: c.fetches.Load(), DiskHits: c.diskHits.Load()}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		switch {
		case e.state.Status == Pending:
			s.Pending++
		case e.state.Err != nil:
			s.Failed++
		default:
			s.Ready++
			s.FrameBytes += e.state.Artifact.DecodedBytes()
		}
	}
	return s
}
