// Package source fetches the region index and per-region feeds from the
// admissions publisher.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/admissions-crawler/internal/admission"
	"github.com/JakeFAU/admissions-crawler/internal/metrics"
)

const (
	// DefaultBaseURL is the publisher's static host.
	DefaultBaseURL = "http://static.admitere.edu.ro"

	regionSelector = ".county .card-body"
	indexSuffix    = "/index.html"

	kindIndex      = "index"
	kindOffers     = "offers"
	kindCandidates = "candidates"
)

// Limiter throttles outbound requests.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config controls where the publisher lives.
type Config struct {
	BaseURL string
}

// Option customizes a Source.
type Option func(*Source)

// WithLimiter throttles every fetch through l.
func WithLimiter(l Limiter) Option {
	return func(s *Source) { s.limiter = l }
}

// WithArchive stores every successfully fetched body through a.
func WithArchive(a *Archive) Option {
	return func(s *Source) { s.archive = a }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Source) {
		if l != nil {
			s.logger = l
		}
	}
}

// Source implements admission.Source over HTTP.
type Source struct {
	baseURL string
	fetcher admission.Fetcher
	limiter Limiter
	archive *Archive
	logger  *zap.Logger
}

// New builds a Source that issues requests through fetcher.
func New(cfg Config, fetcher admission.Fetcher, opts ...Option) (*Source, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", cfg.BaseURL, err)
	}
	s := &Source{
		baseURL: base,
		fetcher: fetcher,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("source")
	return s, nil
}

// IndexURL is the region index page for year.
func (s *Source) IndexURL(year int) string {
	return fmt.Sprintf("%s/%d/repartizare/index.html", s.baseURL, year)
}

// OffersURL is the specialization feed for one region.
func (s *Source) OffersURL(year int, regionCode string) string {
	return fmt.Sprintf("%s/%d/repartizare/%s/data/specialization.json", s.baseURL, year, url.PathEscape(regionCode))
}

// CandidatesURL is the candidate feed for one region.
func (s *Source) CandidatesURL(year int, regionCode string) string {
	return fmt.Sprintf("%s/%d/repartizare/%s/data/candidate.json", s.baseURL, year, url.PathEscape(regionCode))
}

// FetchRegionIndex returns region links in page order.
func (s *Source) FetchRegionIndex(ctx context.Context, year int) ([]admission.RegionLink, error) {
	body, err := s.get(ctx, year, "", kindIndex, s.IndexURL(year))
	if err != nil {
		return nil, err
	}
	links, err := parseRegionIndex(body)
	if err != nil {
		metrics.ObserveFetch(kindIndex, "malformed", 0)
		return nil, err
	}
	s.logger.Info("region index fetched", zap.Int("year", year), zap.Int("regions", len(links)))
	return links, nil
}

// FetchOffers returns the raw specialization records of one region.
func (s *Source) FetchOffers(ctx context.Context, year int, regionCode string) ([]admission.RawOffer, error) {
	body, err := s.get(ctx, year, regionCode, kindOffers, s.OffersURL(year, regionCode))
	if err != nil {
		return nil, err
	}
	var raws []admission.RawOffer
	if err := decodeFeed(body, &raws); err != nil {
		metrics.ObserveFetch(kindOffers, "malformed", 0)
		return nil, fmt.Errorf("offers feed for %s: %w", regionCode, err)
	}
	return raws, nil
}

// FetchCandidates returns the raw candidate records of one region.
func (s *Source) FetchCandidates(ctx context.Context, year int, regionCode string) ([]admission.RawCandidate, error) {
	body, err := s.get(ctx, year, regionCode, kindCandidates, s.CandidatesURL(year, regionCode))
	if err != nil {
		return nil, err
	}
	var raws []admission.RawCandidate
	if err := decodeFeed(body, &raws); err != nil {
		metrics.ObserveFetch(kindCandidates, "malformed", 0)
		return nil, fmt.Errorf("candidates feed for %s: %w", regionCode, err)
	}
	return raws, nil
}

func (s *Source) get(ctx context.Context, year int, regionCode, kind, target string) ([]byte, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, target); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", admission.ErrSourceUnavailable, target, err)
		}
	}
	resp, err := s.fetcher.Fetch(ctx, target)
	if err != nil {
		metrics.ObserveFetch(kind, "error", 0)
		if !errors.Is(err, admission.ErrSourceUnavailable) {
			err = fmt.Errorf("%w: %w", admission.ErrSourceUnavailable, err)
		}
		return nil, err
	}
	metrics.ObserveFetch(kind, "ok", len(resp.Body))
	s.logger.Debug("fetched",
		zap.String("url", target),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(resp.Body)),
		zap.Duration("duration", resp.Duration),
	)

	if s.archive != nil {
		if uri, err := s.archive.Save(ctx, year, regionCode, kind, resp); err != nil {
			s.logger.Warn("archive raw payload failed", zap.String("url", target), zap.Error(err))
		} else {
			s.logger.Debug("raw payload archived", zap.String("url", target), zap.String("uri", uri))
		}
	}
	return resp.Body, nil
}

// parseRegionIndex extracts (code, name) pairs from the index page. Elements
// without an href are skipped.
func parseRegionIndex(body []byte) ([]admission.RegionLink, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: parse region index: %w", admission.ErrMalformedPayload, err)
	}
	links := make([]admission.RegionLink, 0)
	doc.Find(regionSelector).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		links = append(links, admission.RegionLink{
			Code:    strings.TrimSuffix(href, indexSuffix),
			RawName: sel.Text(),
		})
	})
	return links, nil
}

func decodeFeed(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %w", admission.ErrMalformedPayload, err)
	}
	return nil
}
