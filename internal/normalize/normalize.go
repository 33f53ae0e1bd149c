// Package normalize converts raw publisher records into canonical entities.
package normalize

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/JakeFAU/admissions-crawler/internal/admission"
)

const (
	// NoLanguage is the publisher's marker for a non-bilingual offer.
	NoLanguage = "-"
	// UnassignedMarker is the publisher's literal assignment label for a candidate
	// that was not admitted to any offer.
	UnassignedMarker = "Nerepartizat"

	placeholder = "-"
)

var (
	digitRun = regexp.MustCompile(`[0-9]+`)

	errNotFinite = errors.New("not a finite number")
)

// RegionName strips a single leading space and title-cases the remainder.
func RegionName(raw string) string {
	name := strings.TrimPrefix(raw, " ")
	// Casers carry state and must not be shared between goroutines.
	return cases.Title(language.Romanian).String(name)
}

// Region builds the canonical region for the link found at position id on the index page.
func Region(id int, link admission.RegionLink) admission.Region {
	return admission.Region{
		ID:   id,
		Code: link.Code,
		Name: RegionName(link.RawName),
	}
}

// Offer converts one raw specialization record. The code and both seat counts
// are mandatory; averages fall back to the sentinel.
func Offer(raw admission.RawOffer) (admission.Offer, error) {
	id, err := parseInt("code", raw.Code)
	if err != nil {
		return admission.Offer{}, err
	}
	if id <= 0 {
		return admission.Offer{}, fmt.Errorf("%w: offer code %q is not a positive integer", admission.ErrMalformedPayload, raw.Code)
	}
	total, err := parseInt("total seats", raw.TotalSeats)
	if err != nil {
		return admission.Offer{}, err
	}
	occupied, err := parseInt("occupied seats", raw.OccupiedSeats)
	if err != nil {
		return admission.Offer{}, err
	}

	name := fmt.Sprintf("%s: %s", raw.Code, raw.Track)
	bilingual := raw.BilingualLanguage != NoLanguage
	var bilingualLanguage *string
	if bilingual {
		name = fmt.Sprintf("%s (Bilingual %s)", name, raw.BilingualLanguage)
		lang := raw.BilingualLanguage
		bilingualLanguage = &lang
	}

	last := admission.Sentinel
	if raw.LastAverage != nil {
		last = parseAverage(*raw.LastAverage)
	}

	return admission.Offer{
		ID:                                 id,
		DisplayName:                        name,
		RegionCode:                         raw.RegionCode,
		SchoolName:                         raw.School,
		Environment:                        raw.Environment,
		TrackName:                          raw.Track,
		Bilingual:                          bilingual,
		BilingualLanguage:                  bilingualLanguage,
		TotalSeats:                         total,
		OccupiedSeats:                      occupied,
		Profile:                            raw.Profile,
		Pathway:                            raw.Pathway,
		LastAdmittedAverage:                last,
		LastAdmittedAveragePreviousSession: parseAverage(raw.LastAveragePrevious),
	}, nil
}

// Offers converts a whole feed, stopping at the first malformed record.
func Offers(raws []admission.RawOffer) ([]admission.Offer, error) {
	out := make([]admission.Offer, 0, len(raws))
	for i, raw := range raws {
		offer, err := Offer(raw)
		if err != nil {
			return nil, fmt.Errorf("offer %d: %w", i, err)
		}
		out = append(out, offer)
	}
	return out, nil
}

// UnassignedOffer is the synthetic per-region bucket for candidates not
// admitted anywhere. Its negative id never collides with a real offer.
func UnassignedOffer(region admission.Region) admission.Offer {
	name := fmt.Sprintf("Unassigned %s", region.Code)
	return admission.Offer{
		ID:                                 -region.ID,
		DisplayName:                        name,
		RegionCode:                         region.Code,
		SchoolName:                         placeholder,
		Environment:                        placeholder,
		TrackName:                          name,
		TotalSeats:                         -1,
		OccupiedSeats:                      -1,
		Profile:                            name,
		Pathway:                            placeholder,
		LastAdmittedAverage:                admission.Sentinel,
		LastAdmittedAveragePreviousSession: admission.Sentinel,
	}
}

// Candidate converts one raw candidate record for the region with the given id.
func Candidate(raw admission.RawCandidate, regionID int) (admission.Candidate, error) {
	romanian, err := parseGrade("romanian grade", raw.RomanianGrade)
	if err != nil {
		return admission.Candidate{}, err
	}
	math, err := parseGrade("math grade", raw.MathGrade)
	if err != nil {
		return admission.Candidate{}, err
	}
	offerID, err := OfferIDFromLabel(raw.OfferLabel, regionID)
	if err != nil {
		return admission.Candidate{}, err
	}
	return admission.Candidate{
		ExternalID:        raw.ID,
		OriginSchool:      raw.OriginSchool,
		RegionCode:        raw.RegionCode,
		AdmissionAverage:  parseAverage(raw.AdmissionAverage),
		EvaluationAverage: parseAverage(raw.EvaluationAverage),
		GraduationAverage: parseAverage(raw.GraduationAverage),
		RomanianExamGrade: romanian,
		MathExamGrade:     math,
		AssignedSchool:    raw.AssignedSchool,
		OfferID:           offerID,
		OfferDisplayLabel: raw.OfferLabel,
	}, nil
}

// Candidates converts a whole feed, stopping at the first malformed record.
func Candidates(raws []admission.RawCandidate, regionID int) ([]admission.Candidate, error) {
	out := make([]admission.Candidate, 0, len(raws))
	for i, raw := range raws {
		c, err := Candidate(raw, regionID)
		if err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// OfferIDFromLabel extracts the first run of digits from an assignment label.
// The unassigned marker maps to the region's synthetic offer id.
func OfferIDFromLabel(label string, regionID int) (int, error) {
	if label == UnassignedMarker {
		return -regionID, nil
	}
	digits := digitRun.FindString(label)
	if digits == "" {
		return 0, fmt.Errorf("%w: assignment label %q has no offer code", admission.ErrMalformedPayload, label)
	}
	return parseInt("assignment label", digits)
}

func parseAverage(raw string) float64 {
	v, err := parseFinite(raw)
	if err != nil {
		return admission.Sentinel
	}
	return v
}

func parseGrade(field, raw string) (float64, error) {
	v, err := parseFinite(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q: %v", admission.ErrMalformedPayload, field, raw, err)
	}
	return v, nil
}

// parseFinite rejects NaN and the infinities, which ParseFloat accepts by name.
func parseFinite(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errNotFinite
	}
	return v, nil
}

func parseInt(field, raw string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q: %v", admission.ErrMalformedPayload, field, raw, err)
	}
	return v, nil
}
