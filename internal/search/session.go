package search

import (
	"context"
	"errors"
	"iter"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/kemote/internal/emote"
	"github.com/dshills/kemote/internal/worker"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultWindow is the quiescence period before a search runs.
const DefaultWindow = 200 * time.Millisecond

// Lookuper resolves a normalized query.
type Lookuper interface {
	Lookup(ctx context.Context, query string) ([]emote.Emote, Source, error)
}

// Recents provides the recency list shown for an empty query.
type Recents interface {
	Snapshot() iter.Seq[emote.Emote]
}

// Result is a replacement display list produced for one generation.
type Result struct {
	Generation uint64
	Query      string
	Emotes     []emote.Emote
	Source     Source
}

// Options configures a Session. Lookup, Recents and Pool are required.
type Options struct {
	Lookup        Lookuper
	Recents       Recents
	Pool          *worker.Pool
	Window        time.Duration
	MaxQueryBytes int
	// OnResult receives results whose generation was current when they
	// were produced. Receivers must re-check IsCurrent before applying.
	OnResult func(Result)
	// OnError receives failed lookups of current generations. The
	// previously delivered result stays valid.
	OnError func(gen uint64, query string, err error)
	Log     logrus.FieldLogger
}

// Session debounces one input's text changes into searches. Every change
// advances the generation; work tagged with an older generation is dropped
// instead of delivered.
type Session struct {
	id       string
	lookup   Lookuper
	recents  Recents
	pool     *worker.Pool
	window   time.Duration
	maxBytes int
	onResult func(Result)
	onError  func(uint64, string, error)
	log      logrus.FieldLogger

	gen      atomic.Uint64
	searches atomic.Int64

	mu     sync.Mutex
	timer  *time.Timer
	closed bool
}

// NewSession creates a Session at generation zero.
func NewSession(opts Options) (*Session, error) {
	if opts.Lookup == nil || opts.Recents == nil || opts.Pool == nil {
		return nil, errors.New("search: lookup, recents and pool are required")
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	id := uuid.NewString()
	return &Session{
		id:       id,
		lookup:   opts.Lookup,
		recents:  opts.Recents,
		pool:     opts.Pool,
		window:   opts.Window,
		maxBytes: opts.MaxQueryBytes,
		onResult: opts.OnResult,
		onError:  opts.OnError,
		log:      opts.Log.WithField("session", id),
	}, nil
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id }

// Current returns the active generation.
func (s *Session) Current() uint64 { return s.gen.Load() }

// IsCurrent reports whether gen is still the active generation.
func (s *Session) IsCurrent(gen uint64) bool { return s.gen.Load() == gen }

// Searches returns how many lookups the session has started.
func (s *Session) Searches() int64 { return s.searches.Load() }

// OnTextChanged supersedes any scheduled search and schedules a new one for
// text after the quiescence window. It returns the new generation.
func (s *Session) OnTextChanged(text string) uint64 {
	query := emote.NormalizeQuery(text, s.maxBytes)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.gen.Load()
	}
	gen := s.advance()
	s.timer = s.pool.After(s.window, "search.debounce", func(ctx context.Context) {
		s.fire(ctx, gen, query)
	})
	return gen
}

// ShowRecent supersedes any scheduled search and delivers the recency list
// without waiting for the quiescence window.
func (s *Session) ShowRecent() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.gen.Load()
	}
	gen := s.advance()
	s.pool.Go("search.recent", func(ctx context.Context) {
		s.deliverRecent(gen, "")
	})
	return gen
}

// Reset is the clear action: the input is empty again, so the recency list is
// delivered immediately, as for an empty query.
func (s *Session) Reset() uint64 {
	return s.ShowRecent()
}

// Close stops the scheduled search and invalidates outstanding work.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.advance()
}

// advance must be called with s.mu held.
func (s *Session) advance() uint64 {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	return s.gen.Add(1)
}

func (s *Session) fire(ctx context.Context, gen uint64, query string) {
	log := s.log.WithFields(logrus.Fields{"generation": gen, "query": query})
	if !s.IsCurrent(gen) {
		log.Debug("search superseded before start")
		return
	}
	if query == "" {
		s.deliverRecent(gen, query)
		return
	}

	s.searches.Add(1)
	emotes, src, err := s.lookup.Lookup(ctx, query)
	if !s.IsCurrent(gen) {
		log.Debug("discarding stale search result")
		return
	}
	if err != nil {
		log.WithError(err).Warn("search failed")
		if s.onError != nil {
			s.onError(gen, query, err)
		}
		return
	}
	s.deliver(Result{Generation: gen, Query: query, Emotes: emotes, Source: src})
}

func (s *Session) deliverRecent(gen uint64, query string) {
	s.deliver(Result{
		Generation: gen,
		Query:      query,
		Emotes:     slices.Collect(s.recents.Snapshot()),
		Source:     SourceRecent,
	})
}

func (s *Session) deliver(r Result) {
	if !s.IsCurrent(r.Generation) || s.onResult == nil {
		return
	}
	s.onResult(r)
}
