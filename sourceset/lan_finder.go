package sourceset

import (
	"context"
	"sort"

	"github.com/endlessm/eos-updater/ostreerepo"
)

// PeerLister is the narrow interface this daemon needs from the
// service-advertising layer (spec.md §1: mDNS/DNS-SD is an external
// collaborator). A concrete implementation would browse
// "_ostree_repo._tcp" DNS-SD records; tests substitute a fixed list.
type PeerLister interface {
	ListPeers(ctx context.Context, ref ostreerepo.CollectionRef) ([]LANPeer, error)
}

// LANPeer is one advertised peer repository on the local network.
type LANPeer struct {
	URI              string
	SummaryTimestamp int64
}

// LANFinder discovers candidate commits advertised by peers on the
// local network (spec.md §4.3 "LAN"). It is bound to a scoped
// execution context for the lifetime of one Poll cycle, mirroring the
// "scoped main context" language in spec.md §4.3/§4.4.
type LANFinder struct {
	lister PeerLister
}

// NewLANFinder starts LAN peer discovery. Returning an error here is
// what causes Build to drop the LAN finder silently for this cycle.
func NewLANFinder(ctx context.Context, lister PeerLister) (Finder, error) {
	if lister == nil {
		return nil, errNoLANLister
	}
	return &LANFinder{lister: lister}, nil
}

var errNoLANLister = lanError("no peer-discovery backend configured")

type lanError string

func (e lanError) Error() string { return string(e) }

func (f *LANFinder) Kind() Kind { return KindLAN }

func (f *LANFinder) FindRemotes(ctx context.Context, ref ostreerepo.CollectionRef) ([]RemoteResult, error) {
	if ref.CollectionID == "" {
		// Peer discovery is disabled for refs with no collection ID
		// (spec.md §3 CollectionRef).
		return nil, nil
	}
	peers, err := f.lister.ListPeers(ctx, ref)
	if err != nil {
		return nil, err
	}
	results := make([]RemoteResult, 0, len(peers))
	for _, p := range peers {
		results = append(results, RemoteResult{
			FinderKind:       KindLAN,
			URI:              p.URI,
			Priority:         1,
			SummaryTimestamp: p.SummaryTimestamp,
			TransportClass:   1,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].SummaryTimestamp > results[j].SummaryTimestamp
	})
	return results, nil
}
