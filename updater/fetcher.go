package updater

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/endlessm/eos-updater/checkpoint"
	"github.com/endlessm/eos-updater/gpgverify"
	"github.com/endlessm/eos-updater/ostreerepo"
	"github.com/endlessm/eos-updater/sourceset"
	"github.com/endlessm/eos-updater/updatererror"
)

const maxRedirectHops = 8

// Fetcher implements the metadata fetcher (spec.md §4.4).
type Fetcher struct {
	Repo              *ostreerepo.Repo
	BuildFinders      func(ctx context.Context) []sourceset.Finder
	CheckpointDecider *checkpoint.Decider

	// SignatureVerifier, when set, checks a candidate commit's detached
	// GPG signature (spec.md §4.12) whenever it was pulled through a
	// temporary remote materialized for a LAN/volume/override finder
	// result rather than the statically-configured, already
	// gpg-verified main remote. Nil disables the check.
	SignatureVerifier *gpgverify.Verifier
}

// Poll runs the full spec.md §4.4 algorithm and returns at most one
// UpdateInfo, or (nil, nil) if no newer commit exists. When volumeOnly
// is set, only sourceset.KindVolume finders are consulted (the
// PollVolume entry point).
func (f *Fetcher) Poll(ctx context.Context, volumeOnly bool) (*UpdateInfo, error) {
	booted, err := f.Repo.BootedOrigin(ctx)
	if err != nil {
		return nil, fmt.Errorf("updater: reading booted origin: %w", err)
	}
	bootedCommit, err := f.Repo.ResolveRef(ctx, booted)
	if err != nil {
		return nil, fmt.Errorf("updater: resolving booted ref: %w", err)
	}

	upgradeRef, warning, err := f.determineUpgradeRefspec(ctx, booted, bootedCommit)
	if err != nil {
		return nil, err
	}
	if warning != "" {
		plog.Warningf("%s", warning)
	}

	remoteOpts, err := f.Repo.GetRemoteOptions(ctx, upgradeRef.Remote)
	if err != nil {
		return nil, fmt.Errorf("updater: reading remote options: %w", err)
	}
	if remoteOpts.CollectionID == "" {
		return nil, updatererror.New(updatererror.NoCollectionID,
			"no collection ID configured for ref %s", upgradeRef)
	}

	ref := ostreerepo.CollectionRef{CollectionID: remoteOpts.CollectionID, RefName: upgradeRef.Ref}
	finders := f.BuildFinders(ctx)
	if volumeOnly {
		finders = filterFinders(finders, sourceset.KindVolume)
	}

	var (
		results    []sourceset.RemoteResult
		candidate  ostreerepo.Checksum
		pullRemote string
	)
	for hop := 0; hop < maxRedirectHops; hop++ {
		if err := ctx.Err(); err != nil {
			return nil, updatererror.New(updatererror.Cancelled, "poll cancelled")
		}

		results = findRemotesAcross(ctx, finders, ref)
		if len(results) == 0 {
			return nil, nil
		}

		pullRemote, err = f.pullMetadataFromBestRemote(ctx, upgradeRef, results)
		if err != nil {
			return nil, err
		}

		candidate, err = f.Repo.ResolveRef(ctx, upgradeRef)
		if err != nil {
			return nil, fmt.Errorf("updater: resolving candidate ref: %w", err)
		}
		if pullRemote != "" {
			if err := f.verifyCommitSignature(candidate); err != nil {
				_ = f.Repo.DeleteRemote(ctx, pullRemote)
				return nil, err
			}
		}
		commit, err := f.Repo.LoadCommit(ctx, candidate)
		if err != nil {
			return nil, fmt.Errorf("updater: loading candidate commit: %w", err)
		}

		if commit.EndOfLifeRebase != "" && commit.EndOfLifeRebase != upgradeRef.Ref {
			upgradeRef = ostreerepo.Refspec{Remote: upgradeRef.Remote, Ref: commit.EndOfLifeRebase}
			remoteOpts, err = f.Repo.GetRemoteOptions(ctx, upgradeRef.Remote)
			if err != nil {
				return nil, fmt.Errorf("updater: reading remote options after rebase: %w", err)
			}
			ref = ostreerepo.CollectionRef{CollectionID: remoteOpts.CollectionID, RefName: upgradeRef.Ref}
			continue
		}

		newer, err := f.isNewer(ctx, booted, bootedCommit, upgradeRef, candidate)
		if err != nil {
			return nil, err
		}
		if !newer {
			return nil, nil
		}

		commitMeta, err := f.Repo.LoadCommit(ctx, candidate)
		if err != nil {
			return nil, fmt.Errorf("updater: loading final candidate commit: %w", err)
		}

		return &UpdateInfo{
			Checksum:        candidate,
			Commit:          *commitMeta,
			UpgradeRefspec:  upgradeRef,
			OriginalRefspec: booted,
			RemoteResults:   toRemoteResultInfo(results),
			PullRemote:      pullRemote,
		}, nil
	}

	return nil, fmt.Errorf("updater: end-of-life redirect chain exceeded %d hops", maxRedirectHops)
}

// Pull fetches the full content of a previously-polled update,
// reporting byte progress through progress as the underlying ostree
// pull reports it. When the update was located through a non-main
// finder result, info.PullRemote names the temporary remote
// materialized at that result's URI (§4.4 step 4b); the same remote
// drives the content pull, and is torn down afterwards regardless of
// outcome.
func (f *Fetcher) Pull(ctx context.Context, info *UpdateInfo, progress func(downloaded, total uint64)) error {
	remote := info.UpgradeRefspec.Remote
	if info.PullRemote != "" {
		remote = info.PullRemote
		defer func() {
			if err := f.Repo.DeleteRemote(ctx, info.PullRemote); err != nil {
				plog.Warningf("cleaning up temporary remote %s: %v", info.PullRemote, err)
			}
		}()
	}
	return f.Repo.Pull(ctx, ostreerepo.PullOptions{
		Remote:        remote,
		Ref:           info.UpgradeRefspec.Ref,
		ProgressBytes: progress,
	})
}

// pullMetadataFromBestRemote implements spec.md §4.4 step 4b: pull
// commit metadata from the first finder result that actually yields a
// commit, trying results in the order the finder layer presents them
// (priority, summary-timestamp, transport-class; see
// findRemotesAcross). A result that already names a configured
// keyring remote (MainFinder) is pulled through that remote directly;
// one that doesn't (LAN, volume, override) is pulled through a
// temporary remote materialized at its discovered URI, so LAN peers,
// volume drops and override URIs actually drive the pull instead of
// only gating non-emptiness. Returns the remote that served the
// commit, or "" when it was upgradeRef's own static remote.
func (f *Fetcher) pullMetadataFromBestRemote(ctx context.Context, upgradeRef ostreerepo.Refspec, results []sourceset.RemoteResult) (string, error) {
	var lastErr error
	for i, res := range results {
		remote := res.KeyringRemote
		temporary := false
		if remote == "" {
			remote = fmt.Sprintf("eos-updater-finder-%s-%d", res.FinderKind, i)
			if err := f.Repo.AddRemote(ctx, remote, res.URI, true); err != nil {
				lastErr = fmt.Errorf("materializing remote for %s result %s: %w", res.FinderKind, res.URI, err)
				plog.Warningf("%v", lastErr)
				continue
			}
			temporary = true
		}

		err := f.Repo.PullCommitOnly(ctx, remote, upgradeRef.Ref)
		if err != nil {
			lastErr = fmt.Errorf("pulling from %s result (remote %s): %w", res.FinderKind, remote, err)
			plog.Warningf("%v, trying next result", lastErr)
			if temporary {
				_ = f.Repo.DeleteRemote(ctx, remote)
			}
			continue
		}

		if remote == upgradeRef.Remote {
			return "", nil
		}
		return remote, nil
	}
	return "", fmt.Errorf("updater: no finder result yielded the commit metadata: %w", lastErr)
}

// verifyCommitSignature checks candidate's detached GPG signature
// (spec.md §4.12) when the commit came in through a temporary remote
// that carries no keyring of its own. Not every commit carries a
// detached signature object, so a missing .commitmeta is treated as
// "nothing to verify" rather than a failure; a present one that fails
// to verify fails the poll.
func (f *Fetcher) verifyCommitSignature(candidate ostreerepo.Checksum) error {
	if f.SignatureVerifier == nil {
		return nil
	}
	if _, err := os.Stat(f.Repo.ObjectPath(candidate, ".commitmeta")); err != nil {
		return nil
	}

	commitBytes, err := f.Repo.ReadObject(candidate, ".commit")
	if err != nil {
		return fmt.Errorf("updater: reading commit object for signature check: %w", err)
	}
	sigBytes, err := f.Repo.ReadObject(candidate, ".commitmeta")
	if err != nil {
		return fmt.Errorf("updater: reading commitmeta object for signature check: %w", err)
	}

	if _, err := f.SignatureVerifier.VerifyDetached(bytes.NewReader(commitBytes), bytes.NewReader(sigBytes)); err != nil {
		return updatererror.New(updatererror.Fetching,
			"commit %s failed GPG signature verification: %v", candidate, err)
	}
	return nil
}

// determineUpgradeRefspec implements spec.md §4.4 step 1.
func (f *Fetcher) determineUpgradeRefspec(ctx context.Context, booted ostreerepo.Refspec, bootedCommit ostreerepo.Checksum) (ostreerepo.Refspec, string, error) {
	if err := f.Repo.PullCommitOnly(ctx, booted.Remote, booted.Ref); err != nil {
		return ostreerepo.Refspec{}, "", fmt.Errorf("updater: commit-only pull of booted ref: %w", err)
	}
	head, err := f.Repo.ResolveRef(ctx, booted)
	if err != nil {
		return ostreerepo.Refspec{}, "", fmt.Errorf("updater: resolving booted head: %w", err)
	}
	if head.IsZero() || head == bootedCommit {
		return booted, "", nil
	}
	headCommit, err := f.Repo.LoadCommit(ctx, head)
	if err != nil {
		return ostreerepo.Refspec{}, "", fmt.Errorf("updater: loading booted head commit: %w", err)
	}
	if headCommit.CheckpointTarget == "" {
		return booted, "", nil
	}

	dec, err := f.CheckpointDecider.Decide(ctx, booted, head, headCommit.CheckpointTarget)
	if err != nil {
		return ostreerepo.Refspec{}, "", fmt.Errorf("updater: checkpoint decision: %w", err)
	}
	if !dec.Follow {
		return booted, dec.Warning, nil
	}
	return dec.UpgradeRefspec, dec.Warning, nil
}

// isNewer implements spec.md §4.4 step 5: the candidate is newer
// either because it's reachable by walking parents back to the booted
// commit on the same ref, or because we arrived here by following a
// checkpoint/redirect onto a different ref entirely.
func (f *Fetcher) isNewer(ctx context.Context, booted ostreerepo.Refspec, bootedCommit ostreerepo.Checksum, upgradeRef ostreerepo.Refspec, candidate ostreerepo.Checksum) (bool, error) {
	if upgradeRef != booted {
		return true, nil
	}
	if candidate == bootedCommit {
		return false, nil
	}
	cur := candidate
	for i := 0; i < 100000; i++ {
		if cur == bootedCommit {
			return true, nil
		}
		commit, err := f.Repo.LoadCommit(ctx, cur)
		if err != nil {
			return false, fmt.Errorf("updater: walking parents: %w", err)
		}
		if commit.Parent == nil {
			return false, nil
		}
		cur = *commit.Parent
	}
	return false, fmt.Errorf("updater: parent chain exceeded sanity limit walking from %s to %s", candidate, bootedCommit)
}

// findRemotesAcross queries every finder for ref, tolerating individual
// finder failures (spec.md §4.4 "Failures"): a transient error from one
// finder must not prevent others from being tried. The combined list is
// sorted by (priority, summary-timestamp, transport-class) across all
// finders, per spec.md §4.4's tie-break rule, so pullMetadataFromBestRemote
// can simply walk it in order rather than re-deriving priority itself.
func findRemotesAcross(ctx context.Context, finders []sourceset.Finder, ref ostreerepo.CollectionRef) []sourceset.RemoteResult {
	var all []sourceset.RemoteResult
	for _, finder := range finders {
		results, err := finder.FindRemotes(ctx, ref)
		if err != nil {
			plog.Warningf("finder %s failed, skipping for this cycle: %v", finder.Kind(), err)
			continue
		}
		all = append(all, results...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if a.SummaryTimestamp != b.SummaryTimestamp {
			return a.SummaryTimestamp > b.SummaryTimestamp
		}
		return a.TransportClass < b.TransportClass
	})
	return all
}

func filterFinders(finders []sourceset.Finder, kind sourceset.Kind) []sourceset.Finder {
	var out []sourceset.Finder
	for _, f := range finders {
		if f.Kind() == kind {
			out = append(out, f)
		}
	}
	return out
}

func toRemoteResultInfo(results []sourceset.RemoteResult) []RemoteResultInfo {
	out := make([]RemoteResultInfo, 0, len(results))
	for _, r := range results {
		out = append(out, RemoteResultInfo{
			FinderKind:       string(r.FinderKind),
			URI:              r.URI,
			KeyringRemote:    r.KeyringRemote,
			Priority:         r.Priority,
			SummaryTimestamp: r.SummaryTimestamp,
		})
	}
	return out
}
