package imagecache

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dshills/kemote/internal/diskstore"
	"github.com/dshills/kemote/internal/fetch"
	"github.com/dshills/kemote/internal/logging"
	"github.com/dshills/kemote/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testURL = "https://cdn.7tv.app/emote/01F6MQ33FG000FFJ97ZB8MWV52/4x.png"

// fakeFetcher counts calls and optionally blocks until released.
type fakeFetcher struct {
	calls   atomic.Int32
	gate    chan struct{}
	data    []byte
	err     error
	started chan struct{}
	once    sync.Once
}

func (f *fakeFetcher) Get(ctx context.Context, url string) ([]byte, error) {
	f.calls.Add(1)
	if f.started != nil {
		f.once.Do(func() { close(f.started) })
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.data, f.err
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type fixture struct {
	disk  *diskstore.Store
	pool  *worker.Pool
	cache *Cache
	ready chan Key
}

func newFixture(t *testing.T, disk *diskstore.Store, f Fetcher, opts ...func(*Options)) *fixture {
	t.Helper()
	if disk == nil {
		var err error
		disk, err = diskstore.New(t.TempDir())
		require.NoError(t, err)
	}
	pool := worker.New(4, logging.Discard())
	t.Cleanup(pool.Close)

	fx := &fixture{disk: disk, pool: pool, ready: make(chan Key, 64)}
	o := Options{
		Disk:    disk,
		Fetcher: f,
		Pool:    pool,
		Log:     logging.Discard(),
		OnReady: func(key Key, st State) { fx.ready <- key },
	}
	for _, fn := range opts {
		fn(&o)
	}
	c, err := New(o)
	require.NoError(t, err)
	fx.cache = c
	return fx
}

func TestCache_SingleFlight(t *testing.T) {
	f := &fakeFetcher{gate: make(chan struct{}), data: pngBytes(t, 4, 4), started: make(chan struct{})}
	fx := newFixture(t, nil, f)

	const n = 50
	var wg sync.WaitGroup
	states := make([]State, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			states[i] = fx.cache.Load(testURL)
		}(i)
	}
	wg.Wait()
	for i, st := range states {
		assert.Equal(t, Pending, st.Status, "caller %d", i)
	}

	<-f.started
	close(f.gate)

	results := make([]State, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st, err := fx.cache.Wait(context.Background(), testURL)
			assert.NoError(t, err)
			results[i] = st
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), f.calls.Load(), "exactly one fetch")
	first := results[0].Artifact
	require.NotNil(t, first)
	for i, st := range results {
		assert.Equal(t, Ready, st.Status)
		assert.Same(t, first, st.Artifact, "caller %d observed a different artifact", i)
	}

	// OnReady fires once for the key.
	select {
	case key := <-fx.ready:
		assert.Equal(t, KeyFor(testURL), key)
	case <-time.After(time.Second):
		t.Fatal("OnReady not called")
	}
	select {
	case <-fx.ready:
		t.Fatal("OnReady called twice")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCache_DiskFirst(t *testing.T) {
	disk, err := diskstore.New(t.TempDir())
	require.NoError(t, err)

	f := &fakeFetcher{data: pngBytes(t, 8, 2)}
	fx := newFixture(t, disk, f)
	st, err := fx.cache.Wait(context.Background(), testURL)
	require.NoError(t, err)
	require.NoError(t, st.Err)
	assert.Equal(t, int32(1), f.calls.Load())
	assert.True(t, disk.Exists(diskstore.Blobs, testURL), "fetched bytes should be persisted")

	// A fresh cache over the same directory must not touch the network.
	offline := &fakeFetcher{err: errors.New("network must not be used")}
	fx2 := newFixture(t, disk, offline)
	st, err = fx2.cache.Wait(context.Background(), testURL)
	require.NoError(t, err)
	require.NoError(t, st.Err)
	assert.Equal(t, int32(0), offline.calls.Load())
	assert.Equal(t, 8, st.Artifact.Width)
	assert.Equal(t, 2, st.Artifact.Height)
	assert.Equal(t, "png", st.Artifact.Format)
	assert.Equal(t, testURL, st.Artifact.Source)

	stats := fx2.cache.Stats()
	assert.Equal(t, int64(1), stats.DiskHits)
	assert.Equal(t, int64(0), stats.Fetches)
	assert.Equal(t, 1, stats.Ready)
}

func TestCache_FetchErrorIsTerminal(t *testing.T) {
	netErr := &fetch.NetworkError{Kind: fetch.KindStatus, URL: testURL, StatusCode: 404}
	f := &fakeFetcher{err: netErr}
	fx := newFixture(t, nil, f)

	st, err := fx.cache.Wait(context.Background(), testURL)
	require.NoError(t, err)
	assert.Equal(t, Ready, st.Status)
	assert.True(t, fetch.IsNetworkError(st.Err))
	assert.Nil(t, st.Artifact)

	// No retry on later loads.
	again := fx.cache.Load(testURL)
	assert.Equal(t, Ready, again.Status)
	assert.Equal(t, st.Err, again.Err)
	assert.Equal(t, int32(1), f.calls.Load())
	assert.False(t, fx.disk.Exists(diskstore.Blobs, testURL))
	assert.Equal(t, 1, fx.cache.Stats().Failed)
}

func TestCache_OversizedBlobNotPersisted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte{0xff}, 4096))
	}))
	defer server.Close()

	client := fetch.New(fetch.Options{HTTPClient: server.Client(), MaxBytes: 1024})
	fx := newFixture(t, nil, client)
	url := server.URL + "/emote/4x.gif"

	st, err := fx.cache.Wait(context.Background(), url)
	require.NoError(t, err)
	require.Error(t, st.Err)
	var netErr *fetch.NetworkError
	require.ErrorAs(t, st.Err, &netErr)
	assert.Equal(t, fetch.KindTooLarge, netErr.Kind)
	assert.False(t, fx.disk.Exists(diskstore.Blobs, url))
}

func TestCache_DecodeError(t *testing.T) {
	f := &fakeFetcher{data: []byte("definitely not an image")}
	fx := newFixture(t, nil, f)

	st, err := fx.cache.Wait(context.Background(), testURL)
	require.NoError(t, err)
	assert.True(t, IsDecodeError(st.Err), "err = %v", st.Err)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestCache_DecoderPanic(t *testing.T) {
	f := &fakeFetcher{data: []byte("x")}
	fx := newFixture(t, nil, f, func(o *Options) {
		o.Decoder = DecoderFunc(func([]byte) (*Artifact, error) { panic("bad codec") })
	})

	st, err := fx.cache.Wait(context.Background(), testURL)
	require.NoError(t, err)
	assert.True(t, IsDecodeError(st.Err))
}

func TestCache_PersistFailureStillServes(t *testing.T) {
	disk, err := diskstore.New(t.TempDir())
	require.NoError(t, err)
	// A regular file where the blobs directory should be makes every write fail.
	require.NoError(t, os.WriteFile(filepath.Join(disk.Dir(), string(diskstore.Blobs)), []byte("x"), 0o644))

	f := &fakeFetcher{data: pngBytes(t, 2, 2)}
	fx := newFixture(t, disk, f)

	st, err := fx.cache.Wait(context.Background(), testURL)
	require.NoError(t, err)
	require.NoError(t, st.Err)
	require.NotNil(t, st.Artifact)
}

func TestCache_WaitContext(t *testing.T) {
	f := &fakeFetcher{gate: make(chan struct{}), data: pngBytes(t, 1, 1)}
	fx := newFixture(t, nil, f)
	defer close(f.gate)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	st, err := fx.cache.Wait(ctx, testURL)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, Pending, st.Status)
}

func TestCache_Peek(t *testing.T) {
	f := &fakeFetcher{data: pngBytes(t, 1, 1)}
	fx := newFixture(t, nil, f)

	_, ok := fx.cache.Peek(testURL)
	assert.False(t, ok)
	assert.Equal(t, int32(0), f.calls.Load(), "Peek must not load")

	_, err := fx.cache.Wait(context.Background(), testURL)
	require.NoError(t, err)
	st, ok := fx.cache.Peek(testURL)
	assert.True(t, ok)
	assert.Equal(t, Ready, st.Status)
}

func TestCache_CloseReleasesArtifacts(t *testing.T) {
	var mu sync.Mutex
	released := map[Key]*Artifact{}
	releaser := ReleaserFunc(func(key Key, a *Artifact) {
		mu.Lock()
		defer mu.Unlock()
		released[key] = a
	})

	f := &fakeFetcher{data: pngBytes(t, 3, 3)}
	fx := newFixture(t, nil, f, func(o *Options) { o.Releaser = releaser })

	urls := []string{"https://x/1.png", "https://x/2.png", "https://x/3.png"}
	for _, u := range urls {
		st, err := fx.cache.Wait(context.Background(), u)
		require.NoError(t, err)
		require.NoError(t, st.Err)
	}

	fx.cache.Close()
	mu.Lock()
	assert.Len(t, released, len(urls))
	for _, u := range urls {
		assert.NotNil(t, released[KeyFor(u)])
	}
	mu.Unlock()

	st := fx.cache.Load(urls[0])
	assert.ErrorIs(t, st.Err, ErrClosed)
	fx.cache.Close() // idempotent
}

func TestCache_ClosePending(t *testing.T) {
	var releasedCount atomic.Int32
	f := &fakeFetcher{gate: make(chan struct{}), data: pngBytes(t, 1, 1), started: make(chan struct{})}
	fx := newFixture(t, nil, f, func(o *Options) {
		o.Releaser = ReleaserFunc(func(Key, *Artifact) { releasedCount.Add(1) })
	})

	require.Equal(t, Pending, fx.cache.Load(testURL).Status)
	<-f.started

	waitErr := make(chan State, 1)
	go func() {
		st, _ := fx.cache.Wait(context.Background(), testURL)
		waitErr <- st
	}()

	fx.cache.Close()
	select {
	case st := <-waitErr:
		assert.ErrorIs(t, st.Err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Close")
	}

	// The in-flight load finishes after Close; its artifact is released, not leaked.
	close(f.gate)
	require.Eventually(t, func() bool { return releasedCount.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestKeyFor(t *testing.T) {
	assert.Equal(t, KeyFor(testURL), KeyFor(testURL))
	assert.NotEqual(t, KeyFor(testURL), KeyFor(testURL+"?x"))
	assert.Equal(t, Key(diskstore.HashKey(testURL)), KeyFor(testURL))
}
