package sourceset

import (
	"context"

	"github.com/endlessm/eos-updater/ostreerepo"
)

// OverrideFinder replaces every other configured source when
// SourcesConfig.OverrideURIs is non-empty (spec.md §4.3).
type OverrideFinder struct {
	uris []string
}

func NewOverrideFinder(uris []string) *OverrideFinder {
	return &OverrideFinder{uris: append([]string(nil), uris...)}
}

func (f *OverrideFinder) Kind() Kind { return KindMain }

func (f *OverrideFinder) FindRemotes(ctx context.Context, ref ostreerepo.CollectionRef) ([]RemoteResult, error) {
	results := make([]RemoteResult, 0, len(f.uris))
	for i, uri := range f.uris {
		results = append(results, RemoteResult{
			FinderKind: KindMain,
			URI:        uri,
			Priority:   i,
		})
	}
	return results, nil
}
