package search

import (
	"context"
	"errors"
	"iter"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/dshills/kemote/internal/emote"
	"github.com/dshills/kemote/internal/logging"
	"github.com/dshills/kemote/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedLookup records queries and optionally blocks per query.
type scriptedLookup struct {
	mu      sync.Mutex
	queries []string
	started chan string
	gates   map[string]chan struct{}
	err     error
}

func (l *scriptedLookup) Lookup(ctx context.Context, query string) ([]emote.Emote, Source, error) {
	l.mu.Lock()
	l.queries = append(l.queries, query)
	gate := l.gates[query]
	l.mu.Unlock()
	if l.started != nil {
		l.started <- query
	}
	if gate != nil {
		<-gate
	}
	if l.err != nil {
		return nil, SourceRemote, l.err
	}
	return []emote.Emote{{ID: query, Name: query, URL: "https://cdn.example/" + query + ".webp"}}, SourceRemote, nil
}

func (l *scriptedLookup) seen() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.queries)
}

type staticRecents []emote.Emote

func (r staticRecents) Snapshot() iter.Seq[emote.Emote] { return slices.Values(r) }

type collector struct {
	mu      sync.Mutex
	results []Result
	errs    []error
}

func (c *collector) onResult(r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, r)
}

func (c *collector) onError(_ uint64, _ string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

func (c *collector) snapshot() ([]Result, []error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.results), slices.Clone(c.errs)
}

func newSession(t *testing.T, lookup Lookuper, recents Recents, window time.Duration) (*Session, *collector) {
	t.Helper()
	pool := worker.New(4, logging.Discard())
	t.Cleanup(pool.Close)
	c := &collector{}
	s, err := NewSession(Options{
		Lookup:   lookup,
		Recents:  recents,
		Pool:     pool,
		Window:   window,
		OnResult: c.onResult,
		OnError:  c.onError,
		Log:      logging.Discard(),
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, c
}

func TestSession_NotDelayedByImageLoads(t *testing.T) {
	images := worker.New(4, logging.Discard())
	t.Cleanup(images.Close)
	stalled := make(chan struct{})
	t.Cleanup(func() { close(stalled) })
	for range 40 {
		require.True(t, images.Go("imagecache.load", func(ctx context.Context) {
			select {
			case <-stalled:
			case <-ctx.Done():
			}
		}))
	}

	lookup := &scriptedLookup{}
	s, c := newSession(t, lookup, staticRecents{}, 10*time.Millisecond)

	start := time.Now()
	gen := s.OnTextChanged("pepe")
	require.Eventually(t, func() bool {
		results, _ := c.snapshot()
		return len(results) == 1
	}, time.Second, 2*time.Millisecond)

	assert.Less(t, time.Since(start), 250*time.Millisecond)
	results, _ := c.snapshot()
	assert.Equal(t, gen, results[0].Generation)
}

func TestSession_CoalescesKeystrokes(t *testing.T) {
	lookup := &scriptedLookup{}
	s, c := newSession(t, lookup, staticRecents{}, 100*time.Millisecond)

	var last uint64
	for _, text := range []string{"p", "pe", "pep", "pepe"} {
		last = s.OnTextChanged(text)
		time.Sleep(10 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		results, _ := c.snapshot()
		return len(results) == 1
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(150 * time.Millisecond)

	assert.Equal(t, []string{"pepe"}, lookup.seen())
	results, _ := c.snapshot()
	require.Len(t, results, 1)
	assert.Equal(t, last, results[0].Generation)
	assert.Equal(t, "pepe", results[0].Query)
	assert.Equal(t, int64(1), s.Searches())
}

func TestSession_StaleResultDiscarded(t *testing.T) {
	lookup := &scriptedLookup{
		started: make(chan string, 2),
		gates:   map[string]chan struct{}{"a": make(chan struct{}), "b": make(chan struct{})},
	}
	s, c := newSession(t, lookup, staticRecents{}, 20*time.Millisecond)

	s.OnTextChanged("a")
	require.Equal(t, "a", <-lookup.started)

	genB := s.OnTextChanged("b")
	require.Equal(t, "b", <-lookup.started)

	close(lookup.gates["a"])
	time.Sleep(30 * time.Millisecond)
	results, _ := c.snapshot()
	assert.Empty(t, results, "result for a superseded generation must not be delivered")

	close(lookup.gates["b"])
	require.Eventually(t, func() bool {
		results, _ := c.snapshot()
		return len(results) == 1
	}, time.Second, 5*time.Millisecond)

	results, _ = c.snapshot()
	assert.Equal(t, genB, results[0].Generation)
	assert.Equal(t, "b", results[0].Emotes[0].ID)
}

func TestSession_EmptyQueryShowsRecents(t *testing.T) {
	lookup := &scriptedLookup{}
	recents := staticRecents{{ID: "r1", Name: "KEKW", URL: "https://cdn.example/r1.webp"}}
	s, c := newSession(t, lookup, recents, 20*time.Millisecond)

	gen := s.OnTextChanged("   ")

	require.Eventually(t, func() bool {
		results, _ := c.snapshot()
		return len(results) == 1
	}, time.Second, 5*time.Millisecond)
	results, _ := c.snapshot()
	assert.Equal(t, gen, results[0].Generation)
	assert.Equal(t, SourceRecent, results[0].Source)
	assert.Equal(t, []emote.Emote(recents), results[0].Emotes)
	assert.Empty(t, lookup.seen())
}

func TestSession_ShowRecentSkipsWindow(t *testing.T) {
	lookup := &scriptedLookup{}
	recents := staticRecents{{ID: "r1", Name: "KEKW", URL: "https://cdn.example/r1.webp"}}
	s, c := newSession(t, lookup, recents, time.Hour)

	s.OnTextChanged("pepe")
	gen := s.ShowRecent()

	require.Eventually(t, func() bool {
		results, _ := c.snapshot()
		return len(results) == 1
	}, time.Second, 5*time.Millisecond)
	results, _ := c.snapshot()
	assert.Equal(t, gen, results[0].Generation)
	assert.Equal(t, SourceRecent, results[0].Source)
	assert.Empty(t, lookup.seen())
}

func TestSession_FailureKeepsPreviousResults(t *testing.T) {
	lookup := &scriptedLookup{err: errors.New("service down")}
	s, c := newSession(t, lookup, staticRecents{}, 10*time.Millisecond)

	s.OnTextChanged("pepe")

	require.Eventually(t, func() bool {
		_, errs := c.snapshot()
		return len(errs) == 1
	}, time.Second, 5*time.Millisecond)
	results, _ := c.snapshot()
	assert.Empty(t, results)
}

func TestSession_QueryNormalized(t *testing.T) {
	lookup := &scriptedLookup{}
	s, c := newSession(t, lookup, staticRecents{}, 10*time.Millisecond)

	s.OnTextChanged("  PePe  ")

	require.Eventually(t, func() bool {
		results, _ := c.snapshot()
		return len(results) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"pepe"}, lookup.seen())
}

func TestSession_CloseStopsDelivery(t *testing.T) {
	lookup := &scriptedLookup{}
	s, c := newSession(t, lookup, staticRecents{}, 20*time.Millisecond)

	before := s.OnTextChanged("pepe")
	s.Close()
	after := s.OnTextChanged("kekw")
	assert.Greater(t, after, before)
	assert.Equal(t, after, s.Current())

	time.Sleep(80 * time.Millisecond)
	results, _ := c.snapshot()
	assert.Empty(t, results)
	assert.Empty(t, lookup.seen())
}

func TestSession_GenerationsIncrease(t *testing.T) {
	s, _ := newSession(t, &scriptedLookup{}, staticRecents{}, time.Hour)

	g1 := s.OnTextChanged("a")
	g2 := s.OnTextChanged("ab")
	g3 := s.ShowRecent()
	g4 := s.Reset()
	assert.Less(t, g1, g2)
	assert.Less(t, g2, g3)
	assert.Less(t, g3, g4)
	assert.True(t, s.IsCurrent(g4))
	assert.False(t, s.IsCurrent(g1))
	assert.NotEmpty(t, s.ID())
}

func TestNewSession_RequiresDeps(t *testing.T) {
	_, err := NewSession(Options{})
	assert.Error(t, err)
}
