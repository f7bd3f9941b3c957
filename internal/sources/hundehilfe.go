package sources

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/adoptfeed/adoptfeed/internal/config"
	"github.com/adoptfeed/adoptfeed/internal/fetch"
	"github.com/adoptfeed/adoptfeed/internal/ingest"
)

// Selectors for the JavaScript-rendered template. The listing lazy-loads
// cards on scroll and pages through numbered buttons; detail pages swap a
// placeholder image for the full resolution one on interaction.
const (
	hhEntrySelector      = `a[href*="/hund/"]`
	hhPaginationSelector = `.pagination a, .pagination button, nav a`
	hhHeroSelector       = `.gallery img, main img`
)

// Hundehilfe extracts records from the client-rendered layout through a
// headless browser tab. The static fetch path sees an empty shell here, so
// every page goes through the browser.
type Hundehilfe struct {
	cfg     config.SourceConfig
	h       config.Heuristics
	browser fetch.PageOpener
	base    *url.URL
}

// NewHundehilfe creates the browser-driven extractor for a configured source.
func NewHundehilfe(cfg config.SourceConfig, h config.Heuristics, browser fetch.PageOpener) (*Hundehilfe, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", cfg.BaseURL, err)
	}
	return &Hundehilfe{cfg: cfg, h: h, browser: browser, base: base}, nil
}

// ID returns the configured source identifier.
func (s *Hundehilfe) ID() string { return s.cfg.ID }

// DiscoverListing renders the listing in a browser tab, scrolls each page
// until the card count stops growing, then clicks through the numbered
// pagination. A missing page button ends discovery normally.
func (s *Hundehilfe) DiscoverListing(ctx context.Context) ([]ingest.ListingEntry, error) {
	page, err := s.browser.OpenPage(ctx)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	if err := page.Navigate(ctx, s.cfg.ListingURL); err != nil {
		return nil, fmt.Errorf("failed to load listing: %w", err)
	}

	var entries []ingest.ListingEntry
	seen := make(map[string]bool)

	for pageNo := 1; pageNo <= s.h.MaxPages; pageNo++ {
		if err := s.scrollToEnd(ctx, page); err != nil {
			return nil, err
		}

		markup, err := page.HTML(ctx)
		if err != nil {
			return nil, err
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
		if err != nil {
			return nil, fmt.Errorf("failed to parse rendered listing: %w", err)
		}
		s.collectEntries(doc, seen, &entries)

		err = page.ClickText(ctx, hhPaginationSelector, strconv.Itoa(pageNo+1))
		if errors.Is(err, fetch.ErrNoSuchControl) {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	return entries, nil
}

// scrollToEnd scrolls until the entry count holds steady for enough rounds,
// bounded by the hard scroll limit.
func (s *Hundehilfe) scrollToEnd(ctx context.Context, page fetch.Page) error {
	last, err := page.Count(ctx, hhEntrySelector)
	if err != nil {
		return err
	}

	stable := 0
	for i := 0; i < s.h.MaxScrolls; i++ {
		if err := page.ScrollBottom(ctx); err != nil {
			return err
		}
		n, err := page.Count(ctx, hhEntrySelector)
		if err != nil {
			return err
		}
		if n == last {
			stable++
			if stable >= s.h.ScrollStabilityRounds {
				return nil
			}
			continue
		}
		stable = 0
		last = n
	}
	return nil
}

// collectEntries pulls listing entries out of the rendered markup, skipping
// reserved animals and anything already collected on an earlier page.
func (s *Hundehilfe) collectEntries(doc *goquery.Document, seen map[string]bool, entries *[]ingest.ListingEntry) {
	doc.Find(hhEntrySelector).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return
		}
		abs := resolveURL(s.base, href)
		if seen[abs] {
			return
		}

		name := strings.TrimSpace(sel.Find("h2, h3, .name").First().Text())
		if name == "" {
			name = strings.TrimSpace(sel.Text())
		}
		if name == "" || IsReservedName(name) {
			return
		}

		entry := ingest.ListingEntry{URL: abs, Name: name}
		if src, ok := sel.Find("img").First().Attr("src"); ok && src != "" {
			entry.ThumbnailURL = resolveURL(s.base, src)
		}

		seen[abs] = true
		*entries = append(*entries, entry)
	})
}

// ExtractDetail renders one detail page, upgrades the lazy hero image when
// the placeholder is below the minimum width, and extracts the record.
func (s *Hundehilfe) ExtractDetail(ctx context.Context, pageURL string) (*ingest.DetailRecord, error) {
	page, err := s.browser.OpenPage(ctx)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	if err := page.Navigate(ctx, pageURL); err != nil {
		return nil, fmt.Errorf("failed to load detail page: %w", err)
	}

	if err := s.upgradeHeroImage(ctx, page); err != nil {
		return nil, err
	}

	markup, err := page.HTML(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("failed to parse rendered detail page: %w", err)
	}

	heading := strings.TrimSpace(doc.Find("h1").First().Text())
	if IsNonRecordHeading(heading, s.h.MaxHeadingLength) {
		return nil, fmt.Errorf("%w: heading %q", ingest.ErrNonRecordPage, heading)
	}

	rec := &ingest.DetailRecord{
		Name:        heading,
		ExternalID:  ExternalIDFromURL(pageURL),
		AdoptionURL: pageURL,
		Status:      "available",
		Properties:  make(map[string]any),
	}

	s.applyTraits(doc, rec)
	rec.StandardizedSize = StandardizeSize(rec.Size)
	if img, ok := PickPrimaryImage(doc, s.base, s.h); ok {
		rec.PrimaryImageURL = img
	}

	return rec, nil
}

// upgradeHeroImage clicks the hero thumbnail and waits for the lazy loader
// to swap in a sufficiently wide source. A placeholder that never upgrades
// is not an error; extraction continues with whatever the page shows.
func (s *Hundehilfe) upgradeHeroImage(ctx context.Context, page fetch.Page) error {
	err := page.Click(ctx, hhHeroSelector)
	if errors.Is(err, fetch.ErrNoSuchControl) {
		return nil
	}
	if err != nil {
		return err
	}

	_, _, err = page.PollAttribute(ctx, hhHeroSelector, "src", s.h.ImageUpgradeTimeout, func(src string) bool {
		return WidthFromURL(src) >= s.h.MinHeroImageWidth
	})
	return err
}

// applyTraits reads the "Label: value" trait list present on every animal
// page. Unrecognized labels land in Properties.
func (s *Hundehilfe) applyTraits(doc *goquery.Document, rec *ingest.DetailRecord) {
	doc.Find(".merkmale li, .traits li").Each(func(_ int, sel *goquery.Selection) {
		parts := strings.SplitN(sel.Text(), ":", 2)
		if len(parts) != 2 {
			return
		}
		label := strings.ToLower(strings.TrimSpace(parts[0]))
		value := strings.TrimSpace(parts[1])
		if label == "" || value == "" {
			return
		}
		switch germanFieldNames[label] {
		case "animal_type":
			rec.AnimalType = value
		case "breed":
			rec.Breed = value
		case "age":
			rec.AgeText = value
		case "sex":
			rec.Sex = value
		case "size":
			rec.Size = value
		default:
			rec.Properties[label] = value
		}
	})
}
