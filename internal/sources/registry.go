package sources

import (
	"fmt"
	"sort"

	"github.com/adoptfeed/adoptfeed/internal/config"
	"github.com/adoptfeed/adoptfeed/internal/fetch"
	"github.com/adoptfeed/adoptfeed/internal/ingest"
)

// ErrUnknownExtractor is returned when a source names an extractor that does
// not exist.
var ErrUnknownExtractor = fmt.Errorf("unknown extractor")

// Deps carries the shared transports handed to extractors. Browser may be
// nil when no configured source needs one.
type Deps struct {
	HTTP       Getter
	Browser    fetch.PageOpener
	Heuristics config.Heuristics
}

type builder struct {
	needsBrowser bool
	build        func(cfg config.SourceConfig, deps Deps) (ingest.Source, error)
}

var builders = map[string]builder{
	"tierheim": {
		build: func(cfg config.SourceConfig, deps Deps) (ingest.Source, error) {
			return NewTierheim(cfg, deps.Heuristics, deps.HTTP)
		},
	},
	"hundehilfe": {
		needsBrowser: true,
		build: func(cfg config.SourceConfig, deps Deps) (ingest.Source, error) {
			return NewHundehilfe(cfg, deps.Heuristics, deps.Browser)
		},
	},
}

// New builds the extractor a source configuration names.
func New(cfg config.SourceConfig, deps Deps) (ingest.Source, error) {
	b, ok := builders[cfg.Extractor]
	if !ok {
		return nil, fmt.Errorf("%w: %q (source %s)", ErrUnknownExtractor, cfg.Extractor, cfg.ID)
	}
	if b.needsBrowser && deps.Browser == nil {
		return nil, fmt.Errorf("extractor %q requires a browser (source %s)", cfg.Extractor, cfg.ID)
	}
	return b.build(cfg, deps)
}

// NeedsBrowser reports whether the named extractor drives a headless
// browser. Unknown extractors report false; New rejects them with a clearer
// error.
func NeedsBrowser(extractor string) bool {
	return builders[extractor].needsBrowser
}

// Extractors lists the registered extractor names, sorted.
func Extractors() []string {
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
