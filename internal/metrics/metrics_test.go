package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://static.admitere.edu.ro/2022/repartizare/index.html", "static.admitere.edu.ro"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	if sourceFetchesTotal == nil || ingestRegionsTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveIngestion(t *testing.T) {
	ObserveRegion("test_ok")
	ObserveRegion("test_ok")
	if val := testutil.ToFloat64(ingestRegionsTotal.WithLabelValues("test_ok")); val != 2 {
		t.Errorf("expected 2 regions observed, got %f", val)
	}

	ObserveRecords("test_offer", "skipped", 3)
	ObserveRecords("test_offer", "skipped", 0)
	if val := testutil.ToFloat64(ingestRecordsTotal.WithLabelValues("test_offer", "skipped")); val != 3 {
		t.Errorf("expected 3 records observed, got %f", val)
	}

	ObserveFetch("test_index", "ok", 128)
	if val := testutil.ToFloat64(sourceBytesTotal.WithLabelValues("test_index")); val != 128 {
		t.Errorf("expected 128 bytes observed, got %f", val)
	}

	ObserveRateLimitDelay("example.com", 20*time.Millisecond)
	if val := testutil.CollectAndCount(rateLimitDelaysSeconds); val <= 0 {
		t.Errorf("expected rate limit delay to be observed, got %d", val)
	}
}

func TestOpenStoresGauge(t *testing.T) {
	before := testutil.ToFloat64(openStores)
	IncOpenStores()
	IncOpenStores()
	DecOpenStores()
	if got := testutil.ToFloat64(openStores); got != before+1 {
		t.Errorf("expected gauge %f, got %f", before+1, got)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
