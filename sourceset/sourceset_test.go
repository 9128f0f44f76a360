package sourceset

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/endlessm/eos-updater/ostreerepo"
)

func TestDedupPreservesFirstOccurrencePriority(t *testing.T) {
	cfg := SourcesConfig{Order: []Kind{KindLAN, KindMain, KindLAN, KindVolume, KindMain}}
	require.Equal(t, []Kind{KindLAN, KindMain, KindVolume}, cfg.Dedup())
}

func TestBuildOverrideReplacesEverything(t *testing.T) {
	cfg := SourcesConfig{
		Order:        []Kind{KindMain, KindLAN, KindVolume},
		OverrideURIs: []string{"https://example.com/repo"},
	}
	finders := Build(context.Background(), cfg, BuildDeps{})
	require.Len(t, finders, 1)
	results, err := finders[0].FindRemotes(context.Background(), ostreerepo.CollectionRef{})
	require.NoError(t, err)
	require.Equal(t, "https://example.com/repo", results[0].URI)
}

func TestBuildDropsFailingLANFinderSilently(t *testing.T) {
	cfg := SourcesConfig{Order: []Kind{KindMain, KindLAN}}
	deps := BuildDeps{
		Repo:       nil,
		MainRemote: "eos",
		NewLANFinder: func(ctx context.Context) (Finder, error) {
			return nil, errNoLANLister
		},
	}
	finders := Build(context.Background(), cfg, deps)
	require.Len(t, finders, 1)
	require.Equal(t, KindMain, finders[0].Kind())
}

func TestBuildKeepsVolumeOnlyWhenPathSet(t *testing.T) {
	cfg := SourcesConfig{Order: []Kind{KindVolume}}
	finders := Build(context.Background(), cfg, BuildDeps{})
	require.Empty(t, finders)

	finders = Build(context.Background(), cfg, BuildDeps{VolumePath: t.TempDir()})
	require.Len(t, finders, 1)
}

func TestLANFinderSkipsRefsWithoutCollectionID(t *testing.T) {
	f := &LANFinder{lister: fakeLister{}}
	results, err := f.FindRemotes(context.Background(), ostreerepo.CollectionRef{RefName: "os/eos/amd64/eos3"})
	require.NoError(t, err)
	require.Nil(t, results)
}

type fakeLister struct{}

func (fakeLister) ListPeers(ctx context.Context, ref ostreerepo.CollectionRef) ([]LANPeer, error) {
	return []LANPeer{{URI: "http://peer", SummaryTimestamp: 1}}, nil
}
