package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/admissions-crawler/internal/admission"
	collyfetcher "github.com/JakeFAU/admissions-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/admissions-crawler/internal/hash/sha256"
	"github.com/JakeFAU/admissions-crawler/internal/storage/memory"
)

const indexPage = `<html><body>
<div class="county"><a class="card-body" href="ab/index.html"> alba</a></div>
<div class="county"><a class="card-body" href="b/index.html"> BUCURESTI</a></div>
<div class="county"><div class="card-body">no link</div></div>
<div class="other"><a class="card-body" href="x/index.html">ignored</a></div>
</body></html>`

func newPublisher(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/2022/repartizare/index.html", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(indexPage))
	})
	mux.HandleFunc("/2022/repartizare/b/data/specialization.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"j":"B","c":"101","l":"Liceul A","m":"urban","sp":"Matematica",
			"lb":"-","nlt":"28","nlo":"27","p":"Real","f":"Teoretica","um":"9.50","uma":"9.10"}]`))
	})
	mux.HandleFunc("/2022/repartizare/b/data/candidate.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"ja":"B","n":"B1","madm":"9.80","nro":"9.5","nmate":"10","sp":"(101) Matematica"}]`))
	})
	mux.HandleFunc("/2022/repartizare/bad/data/specialization.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"not":"an array"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newSource(t *testing.T, baseURL string, opts ...Option) *Source {
	t.Helper()
	src, err := New(Config{BaseURL: baseURL}, collyfetcher.New(collyfetcher.Config{Timeout: 5 * time.Second}), opts...)
	require.NoError(t, err)
	return src
}

func TestFetchRegionIndex(t *testing.T) {
	t.Parallel()

	srv := newPublisher(t)
	links, err := newSource(t, srv.URL).FetchRegionIndex(context.Background(), 2022)
	require.NoError(t, err)
	require.Equal(t, []admission.RegionLink{
		{Code: "ab", RawName: " alba"},
		{Code: "b", RawName: " BUCURESTI"},
	}, links)
}

func TestFetchRegionIndexMissingYear(t *testing.T) {
	t.Parallel()

	srv := newPublisher(t)
	_, err := newSource(t, srv.URL).FetchRegionIndex(context.Background(), 1999)
	require.ErrorIs(t, err, admission.ErrSourceUnavailable)
}

func TestFetchFeeds(t *testing.T) {
	t.Parallel()

	srv := newPublisher(t)
	src := newSource(t, srv.URL)
	ctx := context.Background()

	offers, err := src.FetchOffers(ctx, 2022, "b")
	require.NoError(t, err)
	require.Len(t, offers, 1)
	require.Equal(t, "101", offers[0].Code)
	require.NotNil(t, offers[0].LastAverage)
	require.Equal(t, "9.50", *offers[0].LastAverage)

	candidates, err := src.FetchCandidates(ctx, 2022, "b")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Equal(t, "(101) Matematica", candidates[0].OfferLabel)
}

func TestFetchFeedErrors(t *testing.T) {
	t.Parallel()

	srv := newPublisher(t)
	src := newSource(t, srv.URL)
	ctx := context.Background()

	_, err := src.FetchOffers(ctx, 2022, "bad")
	require.ErrorIs(t, err, admission.ErrMalformedPayload)

	_, err = src.FetchCandidates(ctx, 2022, "missing")
	require.ErrorIs(t, err, admission.ErrSourceUnavailable)
}

func TestFetchArchivesPayloads(t *testing.T) {
	t.Parallel()

	srv := newPublisher(t)
	blobs := memory.NewBlobStore()
	archive, err := NewArchive(blobs, sha256.New(), "")
	require.NoError(t, err)
	src := newSource(t, srv.URL, WithArchive(archive))

	_, err = src.FetchRegionIndex(context.Background(), 2022)
	require.NoError(t, err)
	_, err = src.FetchOffers(context.Background(), 2022, "b")
	require.NoError(t, err)

	paths := blobs.Paths()
	require.Len(t, paths, 2)
	require.True(t, strings.HasPrefix(paths[0], "raw/2022/b/offers-"), paths[0])
	require.True(t, strings.HasSuffix(paths[0], ".json"), paths[0])
	require.True(t, strings.HasPrefix(paths[1], "raw/2022/index/index-"), paths[1])
	require.True(t, strings.HasSuffix(paths[1], ".html"), paths[1])

	obj, ok := blobs.Get(paths[1])
	require.True(t, ok)
	require.Equal(t, indexPage, string(obj.Data))
}

type stubLimiter struct{ err error }

func (s stubLimiter) Wait(context.Context, string) error { return s.err }

func TestLimiterErrorIsSourceUnavailable(t *testing.T) {
	t.Parallel()

	srv := newPublisher(t)
	src := newSource(t, srv.URL, WithLimiter(stubLimiter{err: errors.New("canceled")}))
	_, err := src.FetchRegionIndex(context.Background(), 2022)
	require.ErrorIs(t, err, admission.ErrSourceUnavailable)
}

func TestURLs(t *testing.T) {
	t.Parallel()

	src := newSource(t, "")
	require.Equal(t, "http://static.admitere.edu.ro/2021/repartizare/index.html", src.IndexURL(2021))
	require.Equal(t, "http://static.admitere.edu.ro/2021/repartizare/cj/data/specialization.json", src.OffersURL(2021, "cj"))
	require.Equal(t, "http://static.admitere.edu.ro/2021/repartizare/cj/data/candidate.json", src.CandidatesURL(2021, "cj"))
}

func TestNewRequiresFetcher(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, nil)
	require.Error(t, err)
}

func TestParseRegionIndexEmptyPage(t *testing.T) {
	t.Parallel()

	links, err := parseRegionIndex([]byte("<html></html>"))
	require.NoError(t, err)
	require.Empty(t, links)
}
