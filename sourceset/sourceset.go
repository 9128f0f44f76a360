// Package sourceset resolves a SourcesConfig into an ordered array of
// Finders (spec.md §4.3). Each finder kind gets its own constructor
// behind the common Finder interface, the same one-file-per-backend
// shape the teacher's auth package uses for GCE/Azure/OCI/ESX/Packet
// client construction, here dispatched from a single config-driven
// switch instead of one cobra command per backend.
package sourceset

import (
	"context"

	"github.com/endlessm/eos-updater/ostreerepo"
)

// Kind names one of the three configurable download sources.
type Kind string

const (
	KindMain   Kind = "main"
	KindLAN    Kind = "lan"
	KindVolume Kind = "volume"
)

// SourcesConfig is spec.md §3's SourcesConfig: an ordered, deduplicated
// list of source kinds, plus an optional override list of URIs that,
// if non-empty, replaces every other source.
type SourcesConfig struct {
	Order         []Kind
	OverrideURIs  []string
}

// Dedup returns Order with duplicate kinds removed, first occurrence
// wins, preserving caller-specified priority.
func (c SourcesConfig) Dedup() []Kind {
	seen := make(map[Kind]struct{}, len(c.Order))
	out := make([]Kind, 0, len(c.Order))
	for _, k := range c.Order {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// RemoteResult is one candidate (finder, keyring, URI) tuple the
// fetcher chooses among, per spec.md §3 UpdateInfo.RemoteResults.
type RemoteResult struct {
	FinderKind        Kind
	KeyringRemote     string
	URI               string
	Priority          int
	SummaryTimestamp  int64
	TransportClass    int // lower sorts first among equal priority/timestamp
}

// Finder is a pluggable source of candidate commits for a given ref
// (spec.md §9 "Dynamic dispatch"). The fetcher takes a slice of these
// and never inspects a finder's concrete type.
type Finder interface {
	Kind() Kind
	// FindRemotes returns every remote this finder currently knows
	// about that might serve ref, sorted by this finder's own notion of
	// priority. An empty, nil-error result means "nothing found", not
	// a failure.
	FindRemotes(ctx context.Context, ref ostreerepo.CollectionRef) ([]RemoteResult, error)
}

// Build resolves cfg into the ordered finder array used for one Poll
// cycle (spec.md §4.3). lanFactory may return (nil, err); a LAN finder
// that fails to start is dropped silently, per spec.
func Build(ctx context.Context, cfg SourcesConfig, deps BuildDeps) []Finder {
	if len(cfg.OverrideURIs) > 0 {
		return []Finder{NewOverrideFinder(cfg.OverrideURIs)}
	}

	var finders []Finder
	for _, kind := range cfg.Dedup() {
		switch kind {
		case KindMain:
			finders = append(finders, NewMainFinder(deps.Repo, deps.MainRemote))
		case KindLAN:
			f, err := deps.NewLANFinder(ctx)
			if err != nil {
				if deps.Logf != nil {
					deps.Logf("sourceset: LAN finder failed to start, dropping: %v", err)
				}
				continue
			}
			finders = append(finders, f)
		case KindVolume:
			if deps.VolumePath != "" {
				finders = append(finders, NewVolumeFinder(deps.VolumePath))
			}
		}
	}
	return finders
}

// BuildDeps supplies the collaborators Build needs without coupling
// sourceset to the concrete repo/LAN-discovery implementations.
type BuildDeps struct {
	Repo       *ostreerepo.Repo
	MainRemote string
	VolumePath string
	NewLANFinder func(ctx context.Context) (Finder, error)
	Logf       func(format string, args ...interface{})
}
