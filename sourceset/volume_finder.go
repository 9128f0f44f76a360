package sourceset

import (
	"context"
	"os"
	"path/filepath"

	"github.com/endlessm/eos-updater/ostreerepo"
)

// VolumeFinder scans a mounted removable volume for a repository
// (spec.md §4.3 "VOLUME"). The expected layout is
// <mount>/.ostree/repo, matching how removable-media updates are laid
// out for offline transfer.
type VolumeFinder struct {
	mountPath string
}

func NewVolumeFinder(mountPath string) *VolumeFinder {
	return &VolumeFinder{mountPath: mountPath}
}

func (f *VolumeFinder) Kind() Kind { return KindVolume }

func (f *VolumeFinder) FindRemotes(ctx context.Context, ref ostreerepo.CollectionRef) ([]RemoteResult, error) {
	repoPath := filepath.Join(f.mountPath, ".ostree", "repo")
	if _, err := os.Stat(repoPath); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return []RemoteResult{{
		FinderKind:     KindVolume,
		URI:            "file://" + repoPath,
		Priority:       2,
		TransportClass: 2,
	}}, nil
}
