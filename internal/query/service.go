// Package query serves read-only views over ingested years.
package query

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/JakeFAU/admissions-crawler/internal/admission"
)

// Handles hands out per-year storage handles.
type Handles interface {
	GetOrCreate(ctx context.Context, year int, create bool) (admission.Store, error)
}

// Service answers the API's queries. Unknown years, regions and schools
// produce empty results rather than errors.
type Service struct {
	handles Handles
	years   []int
	logger  *zap.Logger
}

// New builds a Service. years is the fixed list reported by ListYears.
func New(handles Handles, years []int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		handles: handles,
		years:   slices.Sorted(slices.Values(years)),
		logger:  logger.Named("query"),
	}
}

// ListYears returns the supported admission years in ascending order.
func (s *Service) ListYears() []int {
	return slices.Clone(s.years)
}

// ListRegions returns the regions of year ordered by code.
func (s *Service) ListRegions(ctx context.Context, year int) ([]admission.RegionView, error) {
	store, ok, err := s.store(ctx, year)
	if err != nil || !ok {
		return []admission.RegionView{}, err
	}
	regions, err := store.ListRegions(ctx)
	if err != nil {
		return nil, fmt.Errorf("regions of %d: %w", year, err)
	}
	views := make([]admission.RegionView, 0, len(regions))
	for _, r := range regions {
		views = append(views, r.View())
	}
	return views, nil
}

// ListSchools returns the school names of a region, ascending.
func (s *Service) ListSchools(ctx context.Context, year int, regionCode string) ([]string, error) {
	store, ok, err := s.store(ctx, year)
	if err != nil || !ok {
		return []string{}, err
	}
	schools, err := store.ListSchools(ctx, regionCode)
	if err != nil {
		return nil, fmt.Errorf("schools of %d/%s: %w", year, regionCode, err)
	}
	return schools, nil
}

// GetFullSchool returns every offer at a school with its candidates.
func (s *Service) GetFullSchool(ctx context.Context, year int, regionCode, school string) (admission.FullSchool, error) {
	full := admission.EmptyFullSchool()
	store, ok, err := s.store(ctx, year)
	if err != nil || !ok {
		return full, err
	}

	summaries, err := store.ListSchoolOffers(ctx, regionCode, school)
	if err != nil {
		return admission.FullSchool{}, fmt.Errorf("offers of %d/%s/%s: %w", year, regionCode, school, err)
	}
	for _, summary := range summaries {
		offer, err := store.GetOffer(ctx, regionCode, summary.ID)
		if err != nil {
			return admission.FullSchool{}, fmt.Errorf("offer %d/%s/%d: %w", year, regionCode, summary.ID, err)
		}
		candidates, err := store.ListOfferCandidates(ctx, regionCode, summary.ID)
		if err != nil {
			return admission.FullSchool{}, fmt.Errorf("candidates %d/%s/%d: %w", year, regionCode, summary.ID, err)
		}
		full.Offers = append(full.Offers, summary)
		full.OfferDetail[summary.ID] = admission.OfferDetail{Offer: offer, Candidates: candidates}
	}
	return full, nil
}

// store resolves year without creating it. ok is false for an unknown year.
func (s *Service) store(ctx context.Context, year int) (admission.Store, bool, error) {
	store, err := s.handles.GetOrCreate(ctx, year, false)
	if errors.Is(err, admission.ErrNotFound) {
		s.logger.Debug("unknown year", zap.Int("year", year))
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("year %d: %w", year, err)
	}
	return store, true, nil
}
