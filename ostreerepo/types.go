// Package ostreerepo wraps the OSTree engine (spec.md §4.2). OSTree
// itself is an external collaborator (spec.md §1): this package talks
// to it by shelling out to the `ostree` CLI binary via executil,
// mirroring the approach vendor/github.com/coreos/rpmostree-client-go
// takes toward the sibling rpm-ostree daemon (parse JSON/text output
// of a stable CLI rather than link a C library). Swapping in a cgo
// binding later only touches this package.
package ostreerepo

import (
	"encoding/hex"
	"fmt"
)

// Checksum is a SHA-256 content address, the fixed-length hex string
// OSTree uses to name commits.
type Checksum [32]byte

// ParseChecksum validates and decodes a 64-hex-char checksum string.
func ParseChecksum(s string) (Checksum, error) {
	var c Checksum
	if len(s) != 64 {
		return c, fmt.Errorf("ostreerepo: checksum %q is not 64 hex characters", s)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return c, fmt.Errorf("ostreerepo: checksum %q is not valid hex: %w", s, err)
	}
	copy(c[:], b)
	return c, nil
}

func (c Checksum) String() string { return hex.EncodeToString(c[:]) }

func (c Checksum) IsZero() bool {
	return c == Checksum{}
}

// CommitMetadata is the immutable, parsed metadata of a commit object
// (spec.md §3 "Commit").
type CommitMetadata struct {
	Checksum  Checksum
	Parent    *Checksum // nil if this is the root commit
	Timestamp int64     // UNIX seconds
	OSTreePath string

	// CheckpointTarget is the parsed eos.checkpoint-target metadata key,
	// empty if absent.
	CheckpointTarget string
	// EndOfLifeRebase is the parsed eos.endoflife-rebase metadata key,
	// empty if absent.
	EndOfLifeRebase string
}

// CollectionRef is a (collection_id?, ref_name) pair (spec.md §3).
// Peer discovery is disabled for a ref whose CollectionID is empty.
type CollectionRef struct {
	CollectionID string
	RefName      string
}

func (r CollectionRef) String() string {
	if r.CollectionID == "" {
		return r.RefName
	}
	return r.CollectionID + ":" + r.RefName
}

// Refspec is a (remote, ref_name) pair with its canonical string form.
type Refspec struct {
	Remote string
	Ref    string
}

func (r Refspec) String() string { return r.Remote + ":" + r.Ref }

// ParseRefspec parses the canonical "remote:ref" form used throughout
// config files and D-Bus properties.
func ParseRefspec(s string) (Refspec, error) {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return Refspec{Remote: s[:i], Ref: s[i+1:]}, nil
		}
	}
	return Refspec{}, fmt.Errorf("ostreerepo: refspec %q has no remote prefix", s)
}
