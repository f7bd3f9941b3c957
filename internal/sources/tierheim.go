package sources

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/adoptfeed/adoptfeed/internal/config"
	"github.com/adoptfeed/adoptfeed/internal/fetch"
	"github.com/adoptfeed/adoptfeed/internal/ingest"
)

// Getter fetches raw markup over HTTP.
type Getter interface {
	Get(ctx context.Context, url string) (*fetch.Response, error)
}

// Tierheim extracts records from the classic server-rendered shelter layout:
// a paginated /tiere/ listing with numbered page links and dt/dd attribute
// tables on the detail pages. No JavaScript involved.
type Tierheim struct {
	cfg  config.SourceConfig
	h    config.Heuristics
	http Getter
	base *url.URL
}

// NewTierheim creates the static-HTML extractor for a configured source.
func NewTierheim(cfg config.SourceConfig, h config.Heuristics, client Getter) (*Tierheim, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", cfg.BaseURL, err)
	}
	return &Tierheim{cfg: cfg, h: h, http: client, base: base}, nil
}

// ID returns the configured source identifier.
func (s *Tierheim) ID() string { return s.cfg.ID }

// DiscoverListing walks the paginated listing and returns the available
// entries. Pagination follows rel=next first, then a page link labeled with
// the next page number; a missing control simply ends discovery.
func (s *Tierheim) DiscoverListing(ctx context.Context) ([]ingest.ListingEntry, error) {
	var entries []ingest.ListingEntry
	seen := make(map[string]bool)

	pageURL := s.cfg.ListingURL
	for page := 1; page <= s.h.MaxPages; page++ {
		resp, err := s.http.Get(ctx, pageURL)
		if err != nil {
			return nil, err
		}

		doc, err := html.Parse(bytes.NewReader(resp.Body))
		if err != nil {
			return nil, fmt.Errorf("failed to parse listing page %s: %w", pageURL, err)
		}

		pageBase := s.base
		if final, err := url.Parse(resp.FinalURL); err == nil {
			pageBase = final
		}

		for _, a := range findElements(doc, "a") {
			entry, ok := s.listingEntry(a, pageBase)
			if !ok || seen[entry.URL] {
				continue
			}
			seen[entry.URL] = true
			entries = append(entries, entry)
		}

		next := nextPageHref(doc, page)
		if next == "" {
			break
		}
		pageURL = resolveURL(pageBase, next)
	}

	return entries, nil
}

// listingEntry turns an anchor into a listing entry if it points at a detail
// page and is not marked reserved.
func (s *Tierheim) listingEntry(a *html.Node, base *url.URL) (ingest.ListingEntry, bool) {
	href := attrValue(a, "href")
	if href == "" || !strings.Contains(href, "/tiere/") {
		return ingest.ListingEntry{}, false
	}

	abs := resolveURL(base, href)
	parsed, err := url.Parse(abs)
	if err != nil {
		return ingest.ListingEntry{}, false
	}
	// The listing page itself links to /tiere/; detail pages carry a slug
	if strings.Trim(parsed.Path, "/") == "tiere" {
		return ingest.ListingEntry{}, false
	}

	name := strings.TrimSpace(nodeText(a))
	if name == "" || IsReservedName(name) {
		return ingest.ListingEntry{}, false
	}

	entry := ingest.ListingEntry{URL: abs, Name: name}
	if img := firstElement(a, "img"); img != nil {
		if src := attrValue(img, "src"); src != "" {
			entry.ThumbnailURL = resolveURL(base, src)
		}
	}
	return entry, true
}

// nextPageHref locates the pagination control: a rel=next anchor, or an
// anchor whose exact label is the next page number.
func nextPageHref(doc *html.Node, currentPage int) string {
	label := strconv.Itoa(currentPage + 1)

	for _, a := range findElements(doc, "a") {
		if strings.EqualFold(attrValue(a, "rel"), "next") {
			return attrValue(a, "href")
		}
	}
	for _, a := range findElements(doc, "a") {
		if strings.TrimSpace(nodeText(a)) == label {
			return attrValue(a, "href")
		}
	}
	return ""
}

// germanFieldNames maps the dt labels used by this template onto record
// fields.
var germanFieldNames = map[string]string{
	"tierart":       "animal_type",
	"rasse":         "breed",
	"alter":         "age",
	"geschlecht":    "sex",
	"größe":         "size",
	"groesse":       "size",
	"schulterhöhe":  "size",
	"schulterhoehe": "size",
}

// ExtractDetail fetches one detail page and extracts a record. Pages whose
// heading describes the organization rather than an animal return
// ErrNonRecordPage.
func (s *Tierheim) ExtractDetail(ctx context.Context, pageURL string) (*ingest.DetailRecord, error) {
	resp, err := s.http.Get(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	doc, err := html.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse detail page %s: %w", pageURL, err)
	}

	heading := ""
	if h1 := firstElement(doc, "h1"); h1 != nil {
		heading = strings.TrimSpace(nodeText(h1))
	}
	if IsNonRecordHeading(heading, s.h.MaxHeadingLength) {
		return nil, fmt.Errorf("%w: heading %q", ingest.ErrNonRecordPage, heading)
	}

	pageBase := s.base
	if final, err := url.Parse(resp.FinalURL); err == nil {
		pageBase = final
	}

	rec := &ingest.DetailRecord{
		Name:        heading,
		ExternalID:  ExternalIDFromURL(resp.FinalURL),
		AdoptionURL: resp.FinalURL,
		Status:      "available",
		Properties:  make(map[string]any),
	}

	s.applyAttributeTable(doc, rec)
	rec.StandardizedSize = StandardizeSize(rec.Size)
	rec.PrimaryImageURL = s.pickImage(doc, pageBase)

	return rec, nil
}

// applyAttributeTable reads the dt/dd pairs of every definition list on the
// page into the record. Unrecognized labels land in Properties.
func (s *Tierheim) applyAttributeTable(doc *html.Node, rec *ingest.DetailRecord) {
	for _, dl := range findElements(doc, "dl") {
		var label string
		for c := dl.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.Data {
			case "dt":
				label = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(nodeText(c)), ":"))
			case "dd":
				value := strings.TrimSpace(nodeText(c))
				if label == "" || value == "" {
					continue
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
				label = ""
			}
		}
	}
}

// pickImage returns the first content image meeting the minimum width, or
// the first image at all when no URL carries a size hint.
func (s *Tierheim) pickImage(doc *html.Node, base *url.URL) string {
	var fallback string
	for _, img := range findElements(doc, "img") {
		src := attrValue(img, "src")
		if src == "" {
			continue
		}
		abs := resolveURL(base, src)
		if _, bad := badImageFingerprints[ImageFingerprint(abs)]; bad {
			continue
		}
		if fallback == "" {
			fallback = abs
		}
		if WidthFromURL(abs) >= s.h.MinHeroImageWidth {
			return abs
		}
	}
	return fallback
}

// HTML tree helpers, shared by the static extractors.

// findElements collects every element with the given tag in document order.
func findElements(n *html.Node, tag string) []*html.Node {
	var nodes []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == tag {
			nodes = append(nodes, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return nodes
}

// firstElement returns the first element with the given tag, or nil.
func firstElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := firstElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

// attrValue returns the value of the named attribute, or "".
func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// nodeText extracts the joined text content of a node.
func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return strings.TrimSpace(n.Data)
	}
	var parts []string
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if text := nodeText(c); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}
