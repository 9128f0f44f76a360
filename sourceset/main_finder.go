package sourceset

import (
	"context"
	"fmt"

	"github.com/endlessm/eos-updater/ostreerepo"
)

// MainFinder is a config-backed finder that uses the remote's
// configured URL (spec.md §4.3 "MAIN").
type MainFinder struct {
	repo   *ostreerepo.Repo
	remote string
}

func NewMainFinder(repo *ostreerepo.Repo, remote string) *MainFinder {
	return &MainFinder{repo: repo, remote: remote}
}

func (f *MainFinder) Kind() Kind { return KindMain }

func (f *MainFinder) FindRemotes(ctx context.Context, ref ostreerepo.CollectionRef) ([]RemoteResult, error) {
	opts, err := f.repo.GetRemoteOptions(ctx, f.remote)
	if err != nil {
		return nil, fmt.Errorf("sourceset: main finder: %w", err)
	}
	return []RemoteResult{{
		FinderKind:     KindMain,
		KeyringRemote:  f.remote,
		URI:            opts.URL,
		Priority:       0,
		TransportClass: 0,
	}}, nil
}
