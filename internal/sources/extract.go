// Package sources contains the per-site extractor implementations and the
// registry mapping source identifiers to them. Each implementation
// encapsulates one site's quirks: pagination discovery, lazy loading,
// reserved sections and image selection.
package sources

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// reservedMarkers flag entries that are no longer available for adoption.
// Matching happens on the entry's display text, never on DOM position:
// section-boundary detection proved unreliable across template variations.
var reservedMarkers = []string{
	"reserved",
	"reserviert",
	"vermittelt",
	"adopted",
	"zuhause gefunden",
	"nicht mehr verfügbar",
}

// IsReservedName reports whether a listing entry's display text marks it as
// reserved or already adopted. Pure predicate, independent of surrounding
// markup.
func IsReservedName(name string) bool {
	lowered := strings.ToLower(name)
	for _, marker := range reservedMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

// organizationalKeywords appear in headings of about/listing pages that
// share the detail-page template but describe the organization, not an
// animal.
var organizationalKeywords = []string{
	"rescue",
	"shelter",
	"foundation",
	"tierheim",
	"tierschutz",
	"verein",
	"e.v.",
	"spenden",
}

// IsNonRecordHeading reports whether a detail-page heading belongs to a page
// that is not an individual-animal page: overly long headings and
// organizational vocabulary both disqualify it.
func IsNonRecordHeading(heading string, maxLen int) bool {
	trimmed := strings.TrimSpace(heading)
	if trimmed == "" {
		return true
	}
	if len([]rune(trimmed)) > maxLen {
		return true
	}

	lowered := strings.ToLower(trimmed)
	for _, kw := range organizationalKeywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

var slugCleaner = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases s and collapses everything non-alphanumeric into
// single dashes.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugCleaner.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// ExternalIDFromURL derives a stable external ID from a detail URL: the last
// non-empty path segment with any query stripped. Re-running ingestion for
// the same page always yields the same ID.
func ExternalIDFromURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return Slugify(raw)
	}

	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] != "" {
			return Slugify(segments[i])
		}
	}
	return Slugify(parsed.Host)
}

var heightRe = regexp.MustCompile(`(\d{2,3})\s*cm`)

// StandardizeSize maps free-text size descriptions onto small/medium/large.
// Recognizes shoulder heights in cm and the common German and English size
// words; unknown text yields an empty standardized size.
func StandardizeSize(text string) string {
	lowered := strings.ToLower(text)

	if m := heightRe.FindStringSubmatch(lowered); m != nil {
		cm, err := strconv.Atoi(m[1])
		if err == nil {
			switch {
			case cm < 35:
				return "small"
			case cm < 55:
				return "medium"
			default:
				return "large"
			}
		}
	}

	switch {
	case strings.Contains(lowered, "klein") || strings.Contains(lowered, "small"):
		return "small"
	case strings.Contains(lowered, "mittel") || strings.Contains(lowered, "medium"):
		return "medium"
	case strings.Contains(lowered, "groß") || strings.Contains(lowered, "gross") || strings.Contains(lowered, "large"):
		return "large"
	}

	return ""
}

// resolveURL makes href absolute against base.
func resolveURL(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
