// Package checkpoint implements the checkpoint decider (spec.md §4.5):
// given a candidate commit on the booted ref carrying
// eos.checkpoint-target metadata, decide whether this machine is
// allowed to cross to the new branch.
package checkpoint

import (
	"context"
	"os"
	"path"
	"strings"

	"github.com/endlessm/eos-updater/ostreerepo"
)

// Decision is the outcome of Decide.
type Decision struct {
	Follow bool
	// UpgradeRefspec is set when Follow is true: (same_remote, TARGET).
	UpgradeRefspec ostreerepo.Refspec
	// Warning is a non-fatal message to log (e.g. an unparseable target).
	Warning string
}

// NewerOnBootedRefFunc reports whether a commit newer than checkpoint
// exists on the booted ref (spec.md §4.5 step 2).
type NewerOnBootedRefFunc func(ctx context.Context, booted ostreerepo.Refspec, checkpoint ostreerepo.Checksum) (bool, error)

// Gate is one gating predicate (spec.md §4.5 step 3): DMI vendor/
// product denylist, CPU model denylist, kernel architecture denylist,
// read-only-rootfs check, split-disk-layout check, and the
// source-ref/target-ref glob pair. Each returns true to VETO the
// checkpoint.
type Gate interface {
	Name() string
	Veto(ctx context.Context, booted, target ostreerepo.Refspec) (bool, error)
}

// Decider holds the collaborators needed to evaluate a checkpoint.
type Decider struct {
	NewerOnBootedRef NewerOnBootedRefFunc
	Gates            []Gate
	// OverrideEnvVar, if set in the process environment to "1", forces
	// the checkpoint to be followed regardless of gates.
	OverrideEnvVar string
}

// Decide evaluates spec.md §4.5 steps 1-4 for a candidate commit on
// booted whose metadata carries checkpointTarget.
func (d *Decider) Decide(ctx context.Context, booted ostreerepo.Refspec, checkpointCommit ostreerepo.Checksum, checkpointTarget string) (Decision, error) {
	// Step 1: parse TARGET.
	remote, ref, ok := splitOptionalRemote(checkpointTarget)
	if !ok {
		return Decision{Warning: "Failed to parse eos.checkpoint-target ref '" + checkpointTarget + "', ignoring it"}, nil
	}
	if remote != "" && remote != booted.Remote {
		// differs from booted: strip and warn, per spec.md §4.5 step 1.
		return d.decideWithTarget(ctx, booted, checkpointCommit, ref,
			"eos.checkpoint-target remote '"+remote+"' differs from booted remote '"+booted.Remote+"', ignoring remote prefix")
	}
	return d.decideWithTarget(ctx, booted, checkpointCommit, ref, "")
}

func (d *Decider) decideWithTarget(ctx context.Context, booted ostreerepo.Refspec, checkpointCommit ostreerepo.Checksum, ref, warning string) (Decision, error) {
	// Step 2: refuse if maintenance continues on the old branch.
	newer, err := d.NewerOnBootedRef(ctx, booted, checkpointCommit)
	if err != nil {
		return Decision{}, err
	}
	if newer {
		return Decision{Warning: warning}, nil
	}

	target := ostreerepo.Refspec{Remote: booted.Remote, Ref: ref}

	// Step 3: gating predicates, unless overridden.
	if d.OverrideEnvVar != "" && os.Getenv(d.OverrideEnvVar) == "1" {
		return Decision{Follow: true, UpgradeRefspec: target, Warning: warning}, nil
	}
	for _, g := range d.Gates {
		veto, err := g.Veto(ctx, booted, target)
		if err != nil {
			return Decision{}, err
		}
		if veto {
			return Decision{Warning: warning}, nil
		}
	}

	return Decision{Follow: true, UpgradeRefspec: target, Warning: warning}, nil
}

// splitOptionalRemote parses "remote:ref" or bare "ref", validating
// that the ref half is a syntactically plausible OSTree ref name.
func splitOptionalRemote(target string) (remote, ref string, ok bool) {
	if idx := strings.Index(target, ":"); idx >= 0 {
		remote, target = target[:idx], target[idx+1:]
	}
	if !isValidRefName(target) {
		return "", "", false
	}
	return remote, target, true
}

func isValidRefName(ref string) bool {
	if ref == "" {
		return false
	}
	for _, seg := range strings.Split(ref, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return false
		}
		for _, r := range seg {
			if !(r == '-' || r == '_' || r == '.' ||
				(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
				return false
			}
		}
	}
	return path.Clean(ref) == ref
}
