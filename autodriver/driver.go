// Package autodriver implements the auto-driver (spec.md §4.10): the
// oneshot process that decides, once per invocation, whether an
// automatic update check is due and if so drives the daemon's state
// machine through Poll/Fetch/Apply up to a configured step. Grounded
// on eos-autoupdater/main.c's is_online/is_time_to_update/drive-by-
// dbus-proxy shape, expressed here against the Client interface
// instead of a generated GDBusProxy.
package autodriver

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/endlessm/eos-updater/stamp"
	"github.com/endlessm/eos-updater/updater"
)

// Step is the configured LastAutomaticStep value (spec.md §6
// "LastAutomaticStep = 0..3").
type Step int

const (
	StepNone Step = iota
	StepPoll
	StepFetch
	StepApply
)

// Options are the CLI flags spec.md §6 names for the auto-driver.
type Options struct {
	ForceUpdate bool
	ForceFetch  bool
	FromVolume  string
}

// Driver runs one automatic-update cycle (spec.md §4.10).
type Driver struct {
	Client  Client
	Network NetworkMonitor
	Stamp   *stamp.Stamp

	PollResultsPath     string
	LastAutomaticStep   Step
	IntervalDays        uint
	RandomizedDelayDays uint

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

func (d *Driver) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// dueNow reports whether the stamp's recorded mtime plus the
// configured interval has elapsed (spec.md §4.10 step 3: "if mtime +
// interval_days is in the future, exit success").
func (d *Driver) dueNow() bool {
	threshold := d.Stamp.DueAt().Add(time.Duration(d.IntervalDays) * 24 * time.Hour)
	return !d.now().Before(threshold)
}

// Run executes one auto-driver cycle and reports the process exit
// code (spec.md §6 "0 success, 1 generic failure").
func (d *Driver) Run(ctx context.Context, opts Options) (int, error) {
	if opts.FromVolume == "" && d.Network != nil && !d.Network.IsOnline() {
		logrus.Debug("autodriver: offline and no volume given, exiting")
		return 0, nil
	}

	forceUpdate := opts.ForceUpdate || opts.FromVolume != ""

	if !forceUpdate && d.Stamp != nil && !d.dueNow() {
		logrus.Debug("autodriver: not yet due for another automatic check")
		return 0, nil
	}

	if d.LastAutomaticStep == StepNone {
		return 0, nil
	}

	if err := d.poll(ctx, opts.FromVolume); err != nil {
		return 1, err
	}
	state, err := d.waitTerminal(ctx, updater.StatePolling)
	if err != nil {
		return 1, err
	}
	if state == updater.StateReady {
		return d.succeed()
	}
	if state != updater.StateUpdateAvailable || d.LastAutomaticStep == StepPoll {
		return d.succeed()
	}

	force := forceUpdate || opts.ForceFetch
	if err := d.Client.Fetch(ctx, force); err != nil {
		return 1, fmt.Errorf("autodriver: starting fetch: %w", err)
	}
	state, err = d.waitTerminal(ctx, updater.StateFetching)
	if err != nil {
		return 1, err
	}
	if state != updater.StateUpdateReady || d.LastAutomaticStep == StepFetch {
		return d.succeed()
	}

	if err := d.Client.Apply(ctx); err != nil {
		return 1, fmt.Errorf("autodriver: starting apply: %w", err)
	}
	if _, err = d.waitTerminal(ctx, updater.StateApplyingUpdate); err != nil {
		return 1, err
	}
	return d.succeed()
}

func (d *Driver) poll(ctx context.Context, fromVolume string) error {
	var err error
	if fromVolume != "" {
		err = d.Client.PollVolume(ctx, fromVolume)
	} else {
		err = d.Client.Poll(ctx)
	}
	if err != nil {
		return fmt.Errorf("autodriver: starting poll: %w", err)
	}
	return nil
}

// waitTerminal blocks until the state machine leaves running, i.e.
// reports a state other than running, returning that state (or an
// error built from the daemon's published ErrorName/ErrorMessage if
// it lands in Error).
func (d *Driver) waitTerminal(ctx context.Context, running updater.State) (updater.State, error) {
	for {
		state, err := d.Client.State(ctx)
		if err != nil {
			return updater.StateNone, err
		}
		if state != running {
			if state == updater.StateError {
				name, msg, lerr := d.Client.LastError(ctx)
				if lerr != nil {
					return state, fmt.Errorf("autodriver: update failed (error reading details: %w)", lerr)
				}
				return state, fmt.Errorf("autodriver: update failed: %s: %s", name, msg)
			}
			return state, nil
		}
		if err := d.Client.WaitForChange(ctx); err != nil {
			return updater.StateNone, err
		}
	}
}

func (d *Driver) succeed() (int, error) {
	now := d.now()
	if d.Stamp != nil {
		if err := d.Stamp.RecordSuccess(now, d.RandomizedDelayDays); err != nil {
			logrus.WithError(err).Warn("autodriver: failed to update stamp file")
		}
	}
	if d.PollResultsPath != "" {
		if err := d.refreshPollResults(now); err != nil {
			logrus.WithError(err).Warn("autodriver: failed to refresh poll results")
		}
	}
	return 0, nil
}

// updateInfoReader is implemented by Client implementations that can
// report the refspec/id of the update they last observed, used to
// decide whether PollResults needs rewriting (spec.md §3 "rewritten
// only when the refspec or id differ from the previous contents").
type updateInfoReader interface {
	UpdateInfo(ctx context.Context) (refspec, id string, err error)
}

func (d *Driver) refreshPollResults(now time.Time) error {
	pr, ok := d.Client.(updateInfoReader)
	if !ok {
		return nil
	}
	refspec, id, err := pr.UpdateInfo(context.Background())
	if err != nil {
		return err
	}
	_, err = stamp.SavePollResults(d.PollResultsPath, stamp.PollResults{
		LastChangedUsecs: now.UnixMicro(),
		UpdateRefspec:    refspec,
		UpdateID:         id,
	})
	return err
}
