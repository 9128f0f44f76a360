package updater

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/endlessm/eos-updater/ostreerepo"
	"github.com/endlessm/eos-updater/sourceset"
)

type fakeFinder struct {
	kind    sourceset.Kind
	results []sourceset.RemoteResult
	err     error
}

func (f *fakeFinder) Kind() sourceset.Kind { return f.kind }

func (f *fakeFinder) FindRemotes(ctx context.Context, ref ostreerepo.CollectionRef) ([]sourceset.RemoteResult, error) {
	return f.results, f.err
}

func TestFilterFindersKeepsOnlyRequestedKind(t *testing.T) {
	finders := []sourceset.Finder{
		&fakeFinder{kind: sourceset.KindMain},
		&fakeFinder{kind: sourceset.KindVolume},
		&fakeFinder{kind: sourceset.KindLAN},
	}
	out := filterFinders(finders, sourceset.KindVolume)
	require.Len(t, out, 1)
	require.Equal(t, sourceset.KindVolume, out[0].Kind())
}

func TestFindRemotesAcrossSkipsFailingFindersButKeepsOthers(t *testing.T) {
	finders := []sourceset.Finder{
		&fakeFinder{kind: sourceset.KindMain, err: errors.New("network down")},
		&fakeFinder{kind: sourceset.KindVolume, results: []sourceset.RemoteResult{
			{FinderKind: sourceset.KindVolume, URI: "file:///media/usb"},
		}},
	}
	ref := ostreerepo.CollectionRef{CollectionID: "com.example.Os", RefName: "os/eos/amd64/eos4"}
	results := findRemotesAcross(context.Background(), finders, ref)
	require.Len(t, results, 1)
	require.Equal(t, "file:///media/usb", results[0].URI)
}

func TestFindRemotesAcrossReturnsEmptyWhenNothingFound(t *testing.T) {
	finders := []sourceset.Finder{&fakeFinder{kind: sourceset.KindMain}}
	ref := ostreerepo.CollectionRef{CollectionID: "com.example.Os", RefName: "os/eos/amd64/eos4"}
	results := findRemotesAcross(context.Background(), finders, ref)
	require.Empty(t, results)
}

func TestFindRemotesAcrossSortsByPriorityThenTimestampThenTransport(t *testing.T) {
	// spec.md §4.4 "Tie-breaks between remotes": (priority,
	// summary-timestamp, transport-class), newest summary first.
	finders := []sourceset.Finder{
		&fakeFinder{kind: sourceset.KindLAN, results: []sourceset.RemoteResult{
			{FinderKind: sourceset.KindLAN, URI: "http://stale-peer", Priority: 1, SummaryTimestamp: 100, TransportClass: 1},
			{FinderKind: sourceset.KindLAN, URI: "http://fresh-peer", Priority: 1, SummaryTimestamp: 200, TransportClass: 1},
		}},
		&fakeFinder{kind: sourceset.KindMain, results: []sourceset.RemoteResult{
			{FinderKind: sourceset.KindMain, URI: "http://main", Priority: 0, TransportClass: 0},
		}},
		&fakeFinder{kind: sourceset.KindVolume, results: []sourceset.RemoteResult{
			{FinderKind: sourceset.KindVolume, URI: "file:///media/usb", Priority: 2, TransportClass: 2},
		}},
	}
	ref := ostreerepo.CollectionRef{CollectionID: "com.example.Os", RefName: "os/eos/amd64/eos4"}
	results := findRemotesAcross(context.Background(), finders, ref)
	require.Len(t, results, 4)
	require.Equal(t, "http://main", results[0].URI)
	require.Equal(t, "http://fresh-peer", results[1].URI)
	require.Equal(t, "http://stale-peer", results[2].URI)
	require.Equal(t, "file:///media/usb", results[3].URI)
}

func TestToRemoteResultInfoPreservesFields(t *testing.T) {
	in := []sourceset.RemoteResult{
		{FinderKind: sourceset.KindLAN, URI: "http://peer.local", KeyringRemote: "eos", Priority: 2, SummaryTimestamp: 1234},
	}
	out := toRemoteResultInfo(in)
	require.Len(t, out, 1)
	require.Equal(t, "lan", out[0].FinderKind)
	require.Equal(t, "http://peer.local", out[0].URI)
	require.Equal(t, "eos", out[0].KeyringRemote)
	require.Equal(t, 2, out[0].Priority)
	require.Equal(t, int64(1234), out[0].SummaryTimestamp)
}
