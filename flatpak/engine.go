package flatpak

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/endlessm/eos-updater/updatererror"
)

// ErrAlreadyInstalled is returned by Installer.Install when the ref is
// already present; the engine retries such actions as Update (spec.md
// §4.8 "Per-action semantics").
var ErrAlreadyInstalled = errors.New("flatpak: already installed")

// ErrNotInstalled is returned by Installer.Uninstall or Installer.Update
// when the ref is absent; the engine swallows it during Uninstall or
// Update.
var ErrNotInstalled = errors.New("flatpak: not installed")

// Installer is the narrow collaborator the action engine drives; the
// concrete implementation shells out to the flatpak CLI the same way
// ostreerepo wraps the ostree CLI.
type Installer interface {
	Install(ctx context.Context, remote, ref string) error
	Update(ctx context.Context, remote, ref string) error
	Uninstall(ctx context.Context, remote, ref string) error
	// InstalledRemote reports the remote a ref is currently installed
	// from, and whether it is installed at all.
	InstalledRemote(ctx context.Context, ref string) (remote string, installed bool, err error)
}

// Mode selects what the engine does with each action (spec.md §4.8
// "Modes").
type Mode int

const (
	Perform Mode = iota
	Stamp
	Check
)

// Engine replays ActionLists against Installer, tracking Progress.
type Engine struct {
	Installer Installer
	Progress  *ProgressCounter
}

// Report summarizes one Run.
type Report struct {
	Applied   []RefAction
	Mismatches []string // Check-mode diagnostics
}

// Run executes lists under mode (spec.md §4.8). Perform and Stamp
// persist Progress on return, even on a partial failure (up to the
// last success). Check never mutates Progress.
func (e *Engine) Run(ctx context.Context, lists []ActionList, mode Mode) (Report, error) {
	var report Report

	for _, list := range lists {
		squashed := squash(newActions(list.Actions, e.Progress.Applied(list.SourceFile)))

		for _, action := range squashed {
			if err := ctx.Err(); err != nil {
				e.persistIfNeeded(mode)
				return report, err
			}

			switch mode {
			case Check:
				if msg, ok := e.checkOne(ctx, action); !ok {
					report.Mismatches = append(report.Mismatches, msg)
				}
				continue
			case Stamp:
				// fall through without touching the installer
			case Perform:
				if err := e.applyOne(ctx, action); err != nil {
					// Progress already reflects every success recorded
					// so far in this run; nothing to roll back.
					e.persistIfNeeded(mode)
					return report, fmt.Errorf("flatpak: applying %s: %w", action, err)
				}
			}

			report.Applied = append(report.Applied, action)
			e.Progress.Set(list.SourceFile, action.Serial)
		}
	}

	if mode == Check {
		if len(report.Mismatches) > 0 {
			return report, fmt.Errorf("flatpak: check found %d mismatch(es):\n%s", len(report.Mismatches), strings.Join(report.Mismatches, "\n"))
		}
		return report, nil
	}

	if err := e.Progress.Save(); err != nil {
		return report, err
	}
	return report, nil
}

func (e *Engine) persistIfNeeded(mode Mode) {
	if mode == Perform || mode == Stamp {
		e.Progress.Save()
	}
}

// applyOne performs one action, with the AlreadyInstalled/NotInstalled
// swallowing rules and the remote-conflict check (spec.md §4.8
// "Per-action semantics").
func (e *Engine) applyOne(ctx context.Context, a RefAction) error {
	installedRemote, installed, err := e.Installer.InstalledRemote(ctx, a.Ref)
	if err != nil {
		return err
	}
	if installed && installedRemote != a.Remote && a.Kind != ActionUninstall {
		return updatererror.New(updatererror.FlatpakRemoteConflict,
			"ref %s is installed from remote %s, action specifies %s", a.Ref, installedRemote, a.Remote)
	}

	switch a.Kind {
	case ActionInstall:
		err := e.Installer.Install(ctx, a.Remote, a.Ref)
		if errors.Is(err, ErrAlreadyInstalled) {
			return e.Installer.Update(ctx, a.Remote, a.Ref)
		}
		return err
	case ActionUpdate:
		err := e.Installer.Update(ctx, a.Remote, a.Ref)
		if errors.Is(err, ErrNotInstalled) {
			return nil
		}
		return err
	case ActionUninstall:
		err := e.Installer.Uninstall(ctx, a.Remote, a.Ref)
		if errors.Is(err, ErrNotInstalled) {
			return nil
		}
		return err
	default:
		return fmt.Errorf("flatpak: unknown action kind %q", a.Kind)
	}
}

// checkOne verifies one Check-mode action. Update entries cannot be
// checked and always pass (spec.md §4.8).
func (e *Engine) checkOne(ctx context.Context, a RefAction) (string, bool) {
	switch a.Kind {
	case ActionInstall:
		_, installed, err := e.Installer.InstalledRemote(ctx, a.Ref)
		if err != nil {
			return fmt.Sprintf("%s: error checking installed state: %v", a, err), false
		}
		if !installed {
			return fmt.Sprintf("%s: expected installed, found absent", a), false
		}
		return "", true
	case ActionUninstall:
		_, installed, err := e.Installer.InstalledRemote(ctx, a.Ref)
		if err != nil {
			return fmt.Sprintf("%s: error checking installed state: %v", a, err), false
		}
		if installed {
			return fmt.Sprintf("%s: expected absent, found installed", a), false
		}
		return "", true
	default:
		return "", true
	}
}

// newActions returns the actions in actions whose serial exceeds
// applied (spec.md §4.8 "Deltas").
func newActions(actions []RefAction, applied uint32) []RefAction {
	var out []RefAction
	for _, a := range actions {
		if a.Serial > applied {
			out = append(out, a)
		}
	}
	return out
}

// squash keeps, for each ref, only the action with the highest serial,
// sorted by serial ascending so callers apply in log order.
func squash(actions []RefAction) []RefAction {
	winners := make(map[string]RefAction, len(actions))
	for _, a := range actions {
		if existing, ok := winners[a.Ref]; !ok || a.Serial > existing.Serial {
			winners[a.Ref] = a
		}
	}
	out := make([]RefAction, 0, len(winners))
	for _, a := range winners {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Serial < out[j].Serial })
	return out
}
