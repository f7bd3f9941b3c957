package ingest

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNonRecordPage marks a fetched page that is not an individual-animal
	// page (listing or about page sharing the detail template). A skip, not
	// a failure.
	ErrNonRecordPage = errors.New("not an animal detail page")

	// ErrMissingField marks a record missing a mandatory field.
	ErrMissingField = errors.New("missing mandatory field")

	// ErrBrokenPage marks a record extracted from a known broken-page
	// template (browser error pages, bot walls).
	ErrBrokenPage = errors.New("broken page sentinel")
)

// brokenPageSentinels are substrings that show up in place of animal names
// when a fetch landed on an error or interstitial page instead of content.
var brokenPageSentinels = []string{
	"just a moment",
	"attention required",
	"access denied",
	"page not found",
	"404",
	"this site can't be reached",
	"ein fehler ist aufgetreten",
	"aw, snap",
}

// ValidateRecord rejects records that must not reach storage: missing
// mandatory fields or names carrying broken-page sentinel text. Returned
// errors are structural; the item is dropped and the run continues.
func ValidateRecord(rec *DetailRecord) error {
	if rec == nil {
		return fmt.Errorf("%w: record is nil", ErrNonRecordPage)
	}

	if strings.TrimSpace(rec.Name) == "" {
		return fmt.Errorf("%w: name", ErrMissingField)
	}
	if strings.TrimSpace(rec.ExternalID) == "" {
		return fmt.Errorf("%w: external_id", ErrMissingField)
	}
	if strings.TrimSpace(rec.AdoptionURL) == "" {
		return fmt.Errorf("%w: adoption_url", ErrMissingField)
	}

	lowered := strings.ToLower(rec.Name)
	for _, sentinel := range brokenPageSentinels {
		if strings.Contains(lowered, sentinel) {
			return fmt.Errorf("%w: name contains %q", ErrBrokenPage, sentinel)
		}
	}

	return nil
}

// IsStructural reports whether err is a per-item extraction/validation
// problem rather than an infrastructure failure. Structural errors never
// abort a run.
func IsStructural(err error) bool {
	return errors.Is(err, ErrNonRecordPage) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrBrokenPage)
}

// QualityScore computes the [0,1] field-completeness score stored on the run
// summary. Mandatory fields are guaranteed by validation; the score measures
// how much of the optional detail the source actually yielded.
func QualityScore(records []DetailRecord) float64 {
	if len(records) == 0 {
		return 0
	}

	optional := func(rec *DetailRecord) []string {
		return []string{rec.Breed, rec.AgeText, rec.Sex, rec.Size, rec.PrimaryImageURL, rec.AnimalType}
	}

	var filled, total int
	for i := range records {
		for _, v := range optional(&records[i]) {
			total++
			if strings.TrimSpace(v) != "" {
				filled++
			}
		}
	}

	return float64(filled) / float64(total)
}
