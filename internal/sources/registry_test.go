package sources

import (
	"errors"
	"testing"
	"time"

	"github.com/adoptfeed/adoptfeed/internal/config"
	"github.com/adoptfeed/adoptfeed/internal/fetch"
)

func TestNewBuildsRegisteredExtractors(t *testing.T) {
	deps := Deps{
		HTTP:       fetch.NewHTTPClient("test-agent", time.Second),
		Browser:    &fakeOpener{page: &fakePage{}},
		Heuristics: testHeuristics(),
	}

	for _, extractor := range Extractors() {
		t.Run(extractor, func(t *testing.T) {
			cfg := config.SourceConfig{
				ID:         "src-" + extractor,
				Extractor:  extractor,
				BaseURL:    "https://example.org",
				ListingURL: "https://example.org/tiere/",
			}
			src, err := New(cfg, deps)
			if err != nil {
				t.Fatalf("New(%q) failed: %v", extractor, err)
			}
			if src.ID() != cfg.ID {
				t.Errorf("ID() = %q, want %q", src.ID(), cfg.ID)
			}
		})
	}
}

func TestNewUnknownExtractor(t *testing.T) {
	cfg := config.SourceConfig{ID: "x", Extractor: "petfinder"}
	_, err := New(cfg, Deps{Heuristics: testHeuristics()})
	if !errors.Is(err, ErrUnknownExtractor) {
		t.Errorf("error = %v, want ErrUnknownExtractor", err)
	}
}

func TestNewBrowserExtractorWithoutBrowser(t *testing.T) {
	cfg := config.SourceConfig{
		ID:         "hh",
		Extractor:  "hundehilfe",
		BaseURL:    "https://example.org",
		ListingURL: "https://example.org/hunde",
	}
	if _, err := New(cfg, Deps{Heuristics: testHeuristics()}); err == nil {
		t.Error("expected error when a browser extractor gets no browser")
	}
}

func TestNeedsBrowser(t *testing.T) {
	if NeedsBrowser("tierheim") {
		t.Error("tierheim should not need a browser")
	}
	if !NeedsBrowser("hundehilfe") {
		t.Error("hundehilfe should need a browser")
	}
	if NeedsBrowser("petfinder") {
		t.Error("unknown extractor should report false")
	}
}
