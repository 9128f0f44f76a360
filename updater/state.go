// Package updater implements the update state machine, the metadata
// fetcher, and the apply engine (spec.md §4.4, §4.6, §4.7). It is
// grounded on update/updater.go's procedure-dispatch shape and logs
// through capnslog, matching that file exactly.
package updater

import (
	"github.com/coreos/pkg/capnslog"

	"github.com/endlessm/eos-updater/ostreerepo"
)

var plog = capnslog.NewPackageLogger("github.com/endlessm/eos-updater", "updater")

// State is spec.md §3's State enum.
type State int

const (
	StateNone State = iota
	StateReady
	StatePolling
	StateUpdateAvailable
	StateFetching
	StateUpdateReady
	StateApplyingUpdate
	StateUpdateApplied
	StateError
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "None"
	case StateReady:
		return "Ready"
	case StatePolling:
		return "Polling"
	case StateUpdateAvailable:
		return "UpdateAvailable"
	case StateFetching:
		return "Fetching"
	case StateUpdateReady:
		return "UpdateReady"
	case StateApplyingUpdate:
		return "ApplyingUpdate"
	case StateUpdateApplied:
		return "UpdateApplied"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// RemoteResultInfo mirrors sourceset.RemoteResult without importing
// sourceset from this package's public surface, keeping UpdateInfo a
// plain data type callers can construct in tests.
type RemoteResultInfo struct {
	FinderKind       string
	URI              string
	KeyringRemote    string
	Priority         int
	SummaryTimestamp int64
}

// UpdateInfo is the result of a successful poll (spec.md §3).
type UpdateInfo struct {
	Checksum        ostreerepo.Checksum
	Commit          ostreerepo.CommitMetadata
	UpgradeRefspec  ostreerepo.Refspec
	OriginalRefspec ostreerepo.Refspec
	Version         string
	RemoteResults   []RemoteResultInfo

	// PullRemote is the ostree remote the commit metadata was actually
	// pulled from (spec.md §4.4 step 4b "from the best remote"), when
	// that differs from UpgradeRefspec.Remote: a temporary remote
	// materialized at a LAN/volume/override finder result's URI. Empty
	// when the statically-configured remote itself served the commit.
	PullRemote string
}

// Progress is the scalar progress surface published alongside State
// (spec.md §3).
type Progress struct {
	DownloadSize    uint64
	DownloadedBytes uint64
	UnpackedSize    uint64
	CurrentID       string
	UpdateID        string
	UpdateRefspec   string
}
