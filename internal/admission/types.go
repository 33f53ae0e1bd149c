package admission

import (
	"strconv"
	"time"
)

// Sentinel marks an absent or unparsable average. It sorts last under
// descending order.
const Sentinel = -1.0

// Region is a top-level administrative division scraped from the index page.
// ID is assigned sequentially during one crawl and is not stable across crawls.
type Region struct {
	ID   int    `db:"id"`
	Code string `db:"code"`
	Name string `db:"name"`
}

// RegionLink is one (code, raw display name) pair as it appears on the index page.
type RegionLink struct {
	Code    string
	RawName string
}

// Offer is a specialization slot at a school, unique per (RegionCode, ID).
type Offer struct {
	ID                                 int     `db:"id" json:"id"`
	DisplayName                        string  `db:"display_name" json:"name"`
	RegionCode                         string  `db:"region_code" json:"region"`
	SchoolName                         string  `db:"school_name" json:"school"`
	Environment                        string  `db:"environment" json:"environment"`
	TrackName                          string  `db:"track_name" json:"track"`
	Bilingual                          bool    `db:"bilingual" json:"bilingual"`
	BilingualLanguage                  *string `db:"bilingual_language" json:"bilingual_language,omitempty"`
	TotalSeats                         int     `db:"total_seats" json:"total_seats"`
	OccupiedSeats                      int     `db:"occupied_seats" json:"occupied_seats"`
	Profile                            string  `db:"profile" json:"profile"`
	Pathway                            string  `db:"pathway" json:"pathway"`
	LastAdmittedAverage                float64 `db:"last_admitted_average" json:"last_admitted_average"`
	LastAdmittedAveragePreviousSession float64 `db:"last_admitted_average_prev" json:"last_admitted_average_prev"`
}

// Candidate is one applicant record, admitted to exactly one offer in its region.
type Candidate struct {
	ExternalID        string  `db:"external_id" json:"id"`
	OriginSchool      string  `db:"origin_school" json:"origin_school"`
	RegionCode        string  `db:"region_code" json:"region"`
	AdmissionAverage  float64 `db:"admission_average" json:"admission_average"`
	EvaluationAverage float64 `db:"evaluation_average" json:"evaluation_average"`
	GraduationAverage float64 `db:"graduation_average" json:"graduation_average"`
	RomanianExamGrade float64 `db:"romanian_exam_grade" json:"romanian_grade"`
	MathExamGrade     float64 `db:"math_exam_grade" json:"math_grade"`
	AssignedSchool    string  `db:"assigned_school" json:"assigned_school"`
	OfferID           int     `db:"offer_id" json:"offer_id"`
	OfferDisplayLabel string  `db:"offer_display_label" json:"offer_display"`
}

// OfferSummary is the short (id, name) projection listed for a school.
type OfferSummary struct {
	ID   int    `db:"id" json:"id"`
	Name string `db:"display_name" json:"name"`
}

// OfferDetail pairs an offer with its candidates ordered by admission average, highest first.
type OfferDetail struct {
	Offer      Offer       `json:"offer"`
	Candidates []Candidate `json:"candidates"`
}

// FullSchool is the nested view of one school: its offers ordered by id, and
// the detail for each of them keyed by offer id.
type FullSchool struct {
	Offers      []OfferSummary      `json:"offers"`
	OfferDetail map[int]OfferDetail `json:"offer_detail"`
}

// EmptyFullSchool returns a FullSchool with non-nil, empty containers.
func EmptyFullSchool() FullSchool {
	return FullSchool{
		Offers:      []OfferSummary{},
		OfferDetail: map[int]OfferDetail{},
	}
}

// RegionView is the external projection of a Region; the internal id is never exposed.
type RegionView struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// View projects the region for API consumers.
func (r Region) View() RegionView {
	return RegionView{Code: r.Code, Name: r.Name}
}

// RawOffer is one record of the specialization feed, using the publisher's terse field names.
type RawOffer struct {
	RegionCode          string  `json:"j"`
	Code                string  `json:"c"`
	School              string  `json:"l"`
	SchoolCode          string  `json:"lc"`
	Environment         string  `json:"m"`
	Track               string  `json:"sp"`
	TeachingLanguage    string  `json:"lp"`
	BilingualLanguage   string  `json:"lb"`
	TotalSeats          string  `json:"nlt"`
	OccupiedSeats       string  `json:"nlo"`
	EducationForm       string  `json:"fi"`
	Profile             string  `json:"p"`
	Pathway             string  `json:"f"`
	Level               string  `json:"n"`
	LastAverage         *string `json:"um"`
	LastAveragePrevious string  `json:"uma"`
}

// RawCandidate is one record of the candidate feed, using the publisher's terse field names.
type RawCandidate struct {
	RegionCode        string `json:"ja"`
	ID                string `json:"n"`
	RegionName        string `json:"jp"`
	OriginSchool      string `json:"s"`
	OriginSchoolCode  string `json:"sc"`
	AdmissionAverage  string `json:"madm"`
	EvaluationAverage string `json:"mev"`
	GraduationAverage string `json:"mabs"`
	RomanianGrade     string `json:"nro"`
	MathGrade         string `json:"nmate"`
	MotherTongue      string `json:"lm"`
	MotherTongueGrade string `json:"nlm"`
	AssignedSchool    string `json:"h"`
	OfferLabel        string `json:"sp"`
}

// IngestEvent is the payload published once a year has been ingested.
type IngestEvent struct {
	Year          int       `json:"year"`
	RunID         string    `json:"run_id"`
	Regions       int       `json:"regions"`
	FailedRegions []string  `json:"failed_regions"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

// FetchResponse is the raw result of one publisher request.
type FetchResponse struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	Duration    time.Duration
}

// Attributes returns Pub/Sub message attributes for routing on year.
func (e IngestEvent) Attributes() map[string]string {
	return map[string]string{
		"year":   strconv.Itoa(e.Year),
		"run_id": e.RunID,
	}
}
