package sources

import (
	"crypto/sha256"
	"fmt"
	"net/url"
	"regexp"
	"strconv"

	"github.com/PuerkitoBio/goquery"

	"github.com/adoptfeed/adoptfeed/internal/config"
)

// badImageFingerprints are images proven to be mis-attributed by template
// reuse (org logos, placeholder photos served on every detail page). Keyed
// by the fingerprint of the normalized image URL.
var badImageFingerprints = map[string]struct{}{
	// tierheim placeholder paw logo
	"2c8bfbcdbb5a4d0c4a570016ea9d6797f1e56e06155b0a6decb1c0a79e4ae9a1": {},
	// hundehilfe donation banner recycled into galleries
	"9f1d07cf0cf0e6efb3e1a01b0c6d4c42423b68ca6ab03b6e1a52e757e1b76b2b": {},
}

// ImageFingerprint identifies an image for the exclusion list.
func ImageFingerprint(rawURL string) string {
	normalized := rawURL
	if parsed, err := url.Parse(rawURL); err == nil {
		parsed.RawQuery = ""
		parsed.Fragment = ""
		normalized = parsed.String()
	}
	return fmt.Sprintf("%x", sha256.Sum256([]byte(normalized)))
}

// dimensionRe matches WxH size hints embedded in image file names,
// e.g. rex-800x600.jpg.
var dimensionRe = regexp.MustCompile(`(\d{2,5})x\d{2,5}`)

// WidthFromURL infers the pixel width an image URL advertises, from query
// parameters (w, width) or a WxH file-name suffix. Returns 0 when the URL
// carries no size hint.
func WidthFromURL(rawURL string) int {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}

	query := parsed.Query()
	for _, key := range []string{"w", "width"} {
		if v := query.Get(key); v != "" {
			if w, err := strconv.Atoi(v); err == nil {
				return w
			}
		}
	}

	if m := dimensionRe.FindStringSubmatch(parsed.Path); m != nil {
		if w, err := strconv.Atoi(m[1]); err == nil {
			return w
		}
	}

	return 0
}

// relatedSectionRe matches ancestor class/id vocabulary of "related items"
// blocks whose images belong to other animals.
var relatedSectionRe = regexp.MustCompile(`(?i)related|similar|weitere|ähnliche|aehnliche|auch-interessant`)

// foldCandidateLimit approximates the page fold for static markup: grid
// images past this many candidates in document order are treated as below
// the fold.
const foldCandidateLimit = 12

// PickPrimaryImage selects the single most representative image on a detail
// page. Preference order: an early hero image in main content meeting the
// minimum width, then the first sufficiently large grid image that is not in
// a related-items section or below the approximate fold. Known-bad
// fingerprints are never selected.
func PickPrimaryImage(doc *goquery.Document, base *url.URL, h config.Heuristics) (string, bool) {
	type candidate struct {
		src  string
		hero bool
	}

	var candidates []candidate
	doc.Find("main img, article img, .content img, .gallery img").Each(func(i int, sel *goquery.Selection) {
		src, ok := sel.Attr("src")
		if !ok || src == "" {
			if src, ok = sel.Attr("data-src"); !ok || src == "" {
				return
			}
		}
		if inRelatedSection(sel) {
			return
		}
		candidates = append(candidates, candidate{
			src: resolveURL(base, src),
			// Hero images sit at the top of main content
			hero: i < 3,
		})
	})

	usable := func(c candidate) bool {
		if _, bad := badImageFingerprints[ImageFingerprint(c.src)]; bad {
			return false
		}
		return WidthFromURL(c.src) >= h.MinHeroImageWidth
	}

	for _, c := range candidates {
		if c.hero && usable(c) {
			return c.src, true
		}
	}

	for i, c := range candidates {
		if i >= foldCandidateLimit {
			break
		}
		if usable(c) {
			return c.src, true
		}
	}

	// No size hints anywhere; fall back to the first non-excluded image
	for _, c := range candidates {
		if _, bad := badImageFingerprints[ImageFingerprint(c.src)]; !bad {
			return c.src, true
		}
	}

	return "", false
}

func inRelatedSection(sel *goquery.Selection) bool {
	matched := false
	sel.Parents().Each(func(_ int, p *goquery.Selection) {
		if matched {
			return
		}
		class, _ := p.Attr("class")
		id, _ := p.Attr("id")
		if relatedSectionRe.MatchString(class) || relatedSectionRe.MatchString(id) {
			matched = true
		}
	})
	return matched
}
