package updater

import (
	"context"
	"fmt"

	"github.com/endlessm/eos-updater/ostreerepo"
)

// Applier implements the apply engine (spec.md §4.7): deploy a fetched
// commit as a new, bootable deployment rooted on the currently booted
// one, then perform the best-effort housekeeping that follows.
type Applier struct {
	Repo *ostreerepo.Repo
}

// Apply deploys info onto a new deployment. The new deployment's origin
// always carries info.UpgradeRefspec, even when that differs from the
// refspec the machine originally booted from (the checkpoint/rebase
// case): a reboot onto it must resume updates from the new branch, not
// fall back onto the old one.
func (a *Applier) Apply(ctx context.Context, info *UpdateInfo) error {
	booted, err := a.Repo.BootedDeployment(ctx)
	if err != nil {
		return fmt.Errorf("updater: reading booted deployment: %w", err)
	}

	// ostree admin deploy takes the sysroot lock itself for the
	// duration of the call; no separate lock/unlock step is needed
	// here, matching how update/updater.go leaves locking to the
	// underlying OSTree operation rather than re-implementing it.
	if err := a.Repo.Deploy(ctx, ostreerepo.DeployOptions{
		OSName:   booted.OSName,
		Refspec:  info.UpgradeRefspec,
		Checksum: info.Checksum,
		NoClean:  true,
	}); err != nil {
		return fmt.Errorf("updater: deploying %s: %w", info.Checksum, err)
	}

	if info.UpgradeRefspec != info.OriginalRefspec {
		if err := a.Repo.ClearRef(ctx, info.OriginalRefspec); err != nil {
			plog.Warningf("failed to clear superseded ref %s, continuing: %v", info.OriginalRefspec, err)
		}
	}

	a.bestEffortHousekeeping(ctx, booted.OSName, info)

	return nil
}

// bestEffortHousekeeping performs the apply engine's non-essential
// tail steps (spec.md §4.7 step 6): pruning the old deployment and
// restoring the remote's branches= pin to the ref we just deployed, so
// a future commit-metadata-only pull doesn't fetch every branch. Its
// failure never fails the apply itself — the new deployment is already
// written and will boot regardless.
func (a *Applier) bestEffortHousekeeping(ctx context.Context, osName string, info *UpdateInfo) {
	if err := a.Repo.Cleanup(ctx, osName); err != nil {
		plog.Warningf("post-deploy cleanup failed, continuing: %v", err)
	}

	opts, err := a.Repo.GetRemoteOptions(ctx, info.UpgradeRefspec.Remote)
	if err != nil {
		plog.Warningf("failed to read remote options for branches= rewrite, continuing: %v", err)
		return
	}
	if len(opts.Branches) == 1 && opts.Branches[0] == info.UpgradeRefspec.Ref {
		return
	}
	if err := a.Repo.SetRemoteBranches(ctx, info.UpgradeRefspec.Remote, []string{info.UpgradeRefspec.Ref}); err != nil {
		plog.Warningf("failed to rewrite branches= for remote %s, continuing: %v", info.UpgradeRefspec.Remote, err)
	}
}
