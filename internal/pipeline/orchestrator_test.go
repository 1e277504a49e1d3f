package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iconidentify/igrabba/internal/delivery"
	"github.com/iconidentify/igrabba/internal/domain"
	"github.com/iconidentify/igrabba/internal/downloader"
	"github.com/iconidentify/igrabba/internal/locator"
	"github.com/iconidentify/igrabba/internal/netx"
	"github.com/iconidentify/igrabba/pkg/instagram"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// rewriteTransport sends every request to the test server, whatever its host.
type rewriteTransport struct {
	target *url.URL
	hits   atomic.Int32
}

func (rt *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rt.hits.Add(1)
	r := req.Clone(req.Context())
	r.URL.Scheme = rt.target.Scheme
	r.URL.Host = rt.target.Host
	r.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(r)
}

type channelCall struct {
	op   string
	path string
	text string
}

type fakeChannel struct {
	mu    sync.Mutex
	calls []channelCall
}

func (c *fakeChannel) add(call channelCall) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
	return nil
}

func (c *fakeChannel) SendText(_ context.Context, _, text string) error {
	return c.add(channelCall{op: "text", text: text})
}
func (c *fakeChannel) SendAudio(_ context.Context, _, path, _ string) error {
	return c.add(channelCall{op: "audio", path: path})
}
func (c *fakeChannel) SendPhoto(_ context.Context, _, path, _ string) error {
	return c.add(channelCall{op: "photo", path: path})
}
func (c *fakeChannel) SendVideo(_ context.Context, _, path, _ string) error {
	return c.add(channelCall{op: "video", path: path})
}
func (c *fakeChannel) SendDocument(_ context.Context, _, path, _ string) error {
	return c.add(channelCall{op: "document", path: path})
}

func (c *fakeChannel) ops(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if call.op == op {
			n++
		}
	}
	return n
}

type fakeTool struct {
	ext   string
	calls atomic.Int32
}

func (f *fakeTool) Download(_ context.Context, _, tpl string) error {
	f.calls.Add(1)
	if f.ext == "" {
		return nil
	}
	return os.WriteFile(strings.Replace(tpl, "%(ext)s", f.ext, 1), []byte("video-bytes"), 0o644)
}

type harness struct {
	orch      *Orchestrator
	channel   *fakeChannel
	tool      *fakeTool
	transport *rewriteTransport
	tempDir   string
}

// newHarness wires the real locator, fetcher and dispatcher against handler.
func newHarness(t *testing.T, handler http.Handler, maxBytes int64) *harness {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	target, _ := url.Parse(srv.URL)
	rt := &rewriteTransport{target: target}
	hc := netx.NewClientWith(&http.Client{Transport: rt}, "test-agent")

	logger := testLogger()
	dir := t.TempDir()
	tool := &fakeTool{ext: "mp4"}
	ig := instagram.NewClient(hc, 1<<20, logger)
	ig.SetRetryConfig(netx.RetryConfig{MaxAttempts: 1})

	chain := locator.NewChain(ig, logger,
		locator.EmbeddedStrategy{},
		locator.PatternStrategy{},
		locator.APIStrategy{API: ig},
		locator.YtDLPStrategy{Tool: tool, TempDir: dir},
	)
	fetcher := downloader.NewFetcher(hc, downloader.Options{TempDir: dir, MaxBytes: maxBytes, Timeout: 5 * time.Second}, logger)
	channel := &fakeChannel{}
	dispatcher := delivery.NewDispatcher(channel, maxBytes, nil, logger)

	return &harness{
		orch:      NewOrchestrator(Config{FetchConcurrency: 3, MaxAssets: 5}, chain, fetcher, dispatcher, logger),
		channel:   channel,
		tool:      tool,
		transport: rt,
		tempDir:   dir,
	}
}

func assertTempDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary files left behind")
}

func TestRun_ScenarioA_EmbeddedSingleImage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/p/ABC123/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><script>window._sharedData = {"entry_data":{"PostPage":[{"graphql":{"shortcode_media":{"display_url":"https://scontent.cdninstagram.com/media/single.jpg","is_video":false}}}]}};</script></html>`)
	})
	mux.HandleFunc("/media/single.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("jpeg"))
	})
	h := newHarness(t, mux, 1024)

	outcome := h.orch.Run(context.Background(), "https://www.instagram.com/p/ABC123/", "42")

	assert.Equal(t, 1, outcome.Attempted)
	assert.Equal(t, 1, outcome.Delivered)
	assert.Empty(t, outcome.FailureReason)
	assert.Equal(t, locator.StrategyEmbedded, outcome.Strategy)
	assert.Equal(t, "ABC123", outcome.ContentID)
	assert.Equal(t, 1, h.channel.ops("photo"))
	assert.Zero(t, h.tool.calls.Load())
	assertTempDirEmpty(t, h.tempDir)
}

func TestRun_ScenarioB_PatternScrapeWithOversizeFile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/p/ABC123/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><script>{"display_url":"https://scontent.cdninstagram.com/media/0.jpg"}
{"display_url":"https://scontent.cdninstagram.com/media/1.jpg"}
{"display_url":"https://scontent.cdninstagram.com/media/2.jpg"}</script></html>`)
	})
	var inflight, maxInflight atomic.Int32
	mux.HandleFunc("/media/", func(w http.ResponseWriter, r *http.Request) {
		n := inflight.Add(1)
		defer inflight.Add(-1)
		for {
			m := maxInflight.Load()
			if n <= m || maxInflight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)

		w.Header().Set("Content-Type", "image/jpeg")
		if strings.HasSuffix(r.URL.Path, "/1.jpg") {
			w.Write(bytes.Repeat([]byte("x"), 500))
			return
		}
		w.Write([]byte("small"))
	})
	h := newHarness(t, mux, 100)

	outcome := h.orch.Run(context.Background(), "https://www.instagram.com/p/ABC123/", "42")

	assert.Equal(t, 3, outcome.Attempted)
	assert.Equal(t, 2, outcome.Delivered)
	assert.Empty(t, outcome.FailureReason)
	assert.Equal(t, locator.StrategyPattern, outcome.Strategy)
	assert.Equal(t, 2, h.channel.ops("photo"))
	assert.Equal(t, 1, h.channel.ops("text"), "oversize file is reported")
	assert.LessOrEqual(t, maxInflight.Load(), int32(3))
	assert.Zero(t, h.tool.calls.Load())
	assertTempDirEmpty(t, h.tempDir)
}

func TestRun_ScenarioC_ReelUsesTool(t *testing.T) {
	h := newHarness(t, http.NotFoundHandler(), 1024)

	outcome := h.orch.Run(context.Background(), "https://www.instagram.com/reel/XYZ789/", "42")

	assert.Equal(t, 1, outcome.Attempted)
	assert.Equal(t, 1, outcome.Delivered)
	assert.Equal(t, domain.ContentKindVideo, outcome.Kind)
	assert.Equal(t, locator.StrategyYtDLP, outcome.Strategy)
	assert.Equal(t, 1, h.channel.ops("video"))
	assert.Zero(t, h.transport.hits.Load(), "reels skip the page and api strategies")
	assertTempDirEmpty(t, h.tempDir)
}

func TestRun_ScenarioD_ProfileWithoutIdentifier(t *testing.T) {
	h := newHarness(t, http.NotFoundHandler(), 1024)

	outcome := h.orch.Run(context.Background(), "https://www.instagram.com/stories/someone/", "42")

	assert.Equal(t, 0, outcome.Attempted)
	assert.Equal(t, 0, outcome.Delivered)
	assert.Equal(t, "Could not extract Instagram post ID", outcome.FailureReason)
	assert.True(t, outcome.Failed())
	assert.Zero(t, h.transport.hits.Load())
	assert.Zero(t, h.tool.calls.Load())
	assert.Empty(t, h.channel.calls)
}

func TestRun_Exhausted(t *testing.T) {
	h := newHarness(t, http.NotFoundHandler(), 1024)
	h.tool.ext = ""

	outcome := h.orch.Run(context.Background(), "https://www.instagram.com/p/ABC123/", "42")

	assert.Equal(t, 0, outcome.Attempted)
	assert.Equal(t, "Could not find any media in this post", outcome.FailureReason)
	assert.Equal(t, int32(1), h.tool.calls.Load())
}

// Unit tests with fakes for the remaining behaviors.

type stubLocator struct {
	res *locator.Result
	err error
}

func (s stubLocator) Locate(context.Context, domain.ContentRequest) (*locator.Result, error) {
	return s.res, s.err
}

type stubFetcher struct {
	fail map[int]bool
	dir  string

	mu       sync.Mutex
	inflight int
	max      int
}

func (f *stubFetcher) Fetch(_ context.Context, _ string, ref domain.AssetReference) (*domain.FetchedAsset, error) {
	f.mu.Lock()
	f.inflight++
	if f.inflight > f.max {
		f.max = f.inflight
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inflight--
		f.mu.Unlock()
	}()
	time.Sleep(10 * time.Millisecond)

	if f.fail[ref.Ordinal] {
		return nil, domain.NewAssetError("id", ref.Ordinal, "fetch", domain.ErrFetchFailed)
	}
	path := filepath.Join(f.dir, fmt.Sprintf("%d.jpg", ref.Ordinal))
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		return nil, err
	}
	return domain.NewFetchedAsset(path, 1, domain.AssetKindImage, ref.Ordinal), nil
}

type recordingDeliverer struct {
	ordinals []int
}

func (d *recordingDeliverer) Deliver(_ context.Context, asset *domain.FetchedAsset, _, _ string) (bool, error) {
	defer asset.Release()
	d.ordinals = append(d.ordinals, asset.Ordinal)
	return true, nil
}

type memoryRecorder struct {
	outcomes []domain.DeliveryOutcome
}

func (r *memoryRecorder) Record(_ context.Context, _, _ string, o domain.DeliveryOutcome) error {
	r.outcomes = append(r.outcomes, o)
	return nil
}

type countingObserver struct {
	count int
}

func (o *countingObserver) Located(_ context.Context, _ string, _ domain.ContentRequest, count int) {
	o.count = count
}

func remoteRefs(n int) []domain.AssetReference {
	refs := make([]domain.AssetReference, n)
	for i := range refs {
		refs[i] = domain.AssetReference{Locator: fmt.Sprintf("https://cdn/%d.jpg", i), Kind: domain.LocatorRemote, Ordinal: i}
	}
	return refs
}

func TestRun_CapsAssetsAndBoundsConcurrency(t *testing.T) {
	fetcher := &stubFetcher{dir: t.TempDir(), fail: map[int]bool{1: true}}
	deliverer := &recordingDeliverer{}
	recorder := &memoryRecorder{}
	observer := &countingObserver{}

	orch := NewOrchestrator(Config{FetchConcurrency: 2, MaxAssets: 5},
		stubLocator{res: &locator.Result{Strategy: "pattern", Assets: remoteRefs(8)}},
		fetcher, deliverer, testLogger())
	orch.SetRecorder(recorder)
	orch.SetObserver(observer)

	outcome := orch.Run(context.Background(), "https://www.instagram.com/p/ABC/", "42")

	assert.Equal(t, 5, outcome.Attempted)
	assert.Equal(t, 4, outcome.Delivered)
	assert.True(t, outcome.Partial())
	assert.Equal(t, []int{0, 2, 3, 4}, deliverer.ordinals, "delivered in ordinal order")
	assert.LessOrEqual(t, fetcher.max, 2)
	assert.Equal(t, 5, observer.count)
	require.Len(t, recorder.outcomes, 1)
	assert.Equal(t, outcome.Delivered, recorder.outcomes[0].Delivered)
}

func TestRun_DiscardedLocalFilesAreDeleted(t *testing.T) {
	dir := t.TempDir()
	var refs []domain.AssetReference
	for i := 0; i < 3; i++ {
		path := filepath.Join(dir, fmt.Sprintf("ytdlp_X_%d.mp4", i))
		require.NoError(t, os.WriteFile(path, []byte("v"), 0o644))
		refs = append(refs, domain.AssetReference{Locator: path, Kind: domain.LocatorLocal, Ordinal: i})
	}

	orch := NewOrchestrator(Config{FetchConcurrency: 1, MaxAssets: 1},
		stubLocator{res: &locator.Result{Strategy: "ytdlp", Assets: refs}},
		&stubFetcher{dir: t.TempDir()}, &recordingDeliverer{}, testLogger())

	outcome := orch.Run(context.Background(), "https://www.instagram.com/reel/X/", "42")

	assert.Equal(t, 1, outcome.Attempted)
	assert.FileExists(t, refs[0].Locator)
	assert.NoFileExists(t, refs[1].Locator)
	assert.NoFileExists(t, refs[2].Locator)
}

func TestRun_LocatorErrorIsRequestFatal(t *testing.T) {
	orch := NewOrchestrator(Config{},
		stubLocator{res: &locator.Result{Strategy: "ytdlp"}, err: fmt.Errorf("ytdlp: %w", domain.ErrToolTimeout)},
		&stubFetcher{}, &recordingDeliverer{}, testLogger())

	outcome := orch.Run(context.Background(), "https://www.instagram.com/reel/X/", "42")

	assert.True(t, outcome.Failed())
	assert.Equal(t, "yt-dlp timed out while downloading", outcome.FailureReason)
	assert.Equal(t, "ytdlp", outcome.Strategy)
}

func TestRun_CancelledCallerStillCompletesFetches(t *testing.T) {
	fetcher := &stubFetcher{dir: t.TempDir()}
	deliverer := &recordingDeliverer{}
	observer := &cancellingObserver{}

	orch := NewOrchestrator(Config{FetchConcurrency: 3, MaxAssets: 5},
		stubLocator{res: &locator.Result{Strategy: "pattern", Assets: remoteRefs(3)}},
		fetcher, deliverer, testLogger())
	orch.SetObserver(observer)

	ctx, cancel := context.WithCancel(context.Background())
	observer.cancel = cancel

	outcome := orch.Run(ctx, "https://www.instagram.com/p/ABC/", "42")
	assert.Equal(t, 3, outcome.Delivered)
}

type cancellingObserver struct {
	cancel context.CancelFunc
}

func (o *cancellingObserver) Located(context.Context, string, domain.ContentRequest, int) {
	o.cancel()
}

func TestFailureReason(t *testing.T) {
	assert.Equal(t, "Could not extract Instagram post ID", FailureReason(domain.ErrClassification))
	assert.Equal(t, "Could not find any media in this post (yt-dlp failed)", FailureReason(fmt.Errorf("ytdlp: %w: boom", domain.ErrToolFailed)))
	assert.Equal(t, "Something odd", FailureReason(errors.New("something odd")))
}

func TestCaption(t *testing.T) {
	assert.Equal(t, "📱 Downloaded from Instagram post", Caption(domain.ContentKindPost))
}
