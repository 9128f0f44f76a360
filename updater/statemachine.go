package updater

import (
	"context"
	"sync"

	"github.com/endlessm/eos-updater/updatererror"
)

// poller is the subset of *Fetcher the state machine drives. Depending
// on the interface rather than the concrete type lets tests substitute
// a stub that never shells out to the ostree binary.
type poller interface {
	Poll(ctx context.Context, volumeOnly bool) (*UpdateInfo, error)
	Pull(ctx context.Context, info *UpdateInfo, progress func(downloaded, total uint64)) error
}

// deployer is the subset of *Applier the state machine drives.
type deployer interface {
	Apply(ctx context.Context, info *UpdateInfo) error
}

// StateMachine drives the Ready → Polling → UpdateAvailable → Fetching
// → UpdateReady → ApplyingUpdate → UpdateApplied pipeline (spec.md
// §4.6). At most one long-running task is ever in flight; every
// state-changing method schedules work and returns immediately, with
// outcomes reported through OnState/OnProgress callbacks rather than
// return values, matching update/updater.go's dispatch-then-notify
// shape.
type StateMachine struct {
	Fetcher poller
	Applier deployer

	// OnState is invoked, holding no internal lock, every time State
	// changes. OnProgress is invoked on progress updates within a
	// running task. Both may be nil.
	OnState    func(State)
	OnProgress func(Progress)

	// IsOnline and IsMetered back the connectivity/metering checks Fetch
	// performs unless called with force=true (spec.md §4.6 "an optional
	// force flag bypassing connectivity and metering checks"). Either
	// may be nil, in which case that check is skipped.
	IsOnline  func() bool
	IsMetered func() bool

	mu      sync.Mutex
	state   State
	task    *task
	info    *UpdateInfo
	lastErr *updatererror.Error
}

// NewStateMachine returns a StateMachine in its initial Ready state.
func NewStateMachine(fetcher *Fetcher, applier *Applier) *StateMachine {
	return &StateMachine{Fetcher: fetcher, Applier: applier, state: StateReady}
}

// NewStateMachineWith is the interface-typed constructor tests use to
// inject stub poller/deployer implementations.
func NewStateMachineWith(fetcher poller, applier deployer) *StateMachine {
	return &StateMachine{Fetcher: fetcher, Applier: applier, state: StateReady}
}

// State returns the current state.
func (m *StateMachine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastError returns the error that drove the machine into StateError,
// or nil if the current state is not StateError.
func (m *StateMachine) LastError() *updatererror.Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// UpdateInfo returns the info captured by the most recent successful
// Poll, or nil if none is available.
func (m *StateMachine) UpdateInfo() *UpdateInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.info
}

func (m *StateMachine) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
	if m.OnState != nil {
		m.OnState(s)
	}
}

func (m *StateMachine) setError(err error) {
	uerr, ok := updatererror.As(err)
	if !ok {
		uerr = updatererror.New(updatererror.Fetching, "%v", err)
	}
	m.mu.Lock()
	if m.state == StateError && m.lastErr != nil && m.lastErr.Kind == updatererror.Cancelled {
		// An explicit Cancel already recorded the authoritative error;
		// the task's own unwinding (observing ctx.Err() and returning)
		// must not clobber it with a less specific one.
		m.mu.Unlock()
		return
	}
	m.lastErr = uerr
	m.mu.Unlock()
	m.setState(StateError)
}

func (m *StateMachine) reportProgress(p Progress) {
	if m.OnProgress != nil {
		m.OnProgress(p)
	}
}

// beginTask transitions to runningState and starts a new task, or
// fails with WrongState if the machine isn't currently in one of
// allowedFrom. It returns the new task so the caller can run fn on it,
// or nil if the transition was refused. Any lastErr from a previous
// Error state is cleared, since reaching here means that state is
// being left behind.
func (m *StateMachine) beginTask(runningState State, allowedFrom ...State) (*task, error) {
	m.mu.Lock()
	if !stateIn(m.state, allowedFrom) {
		cur := m.state
		m.mu.Unlock()
		return nil, updatererror.New(updatererror.WrongState,
			"cannot start from state %s, expected one of %v", cur, allowedFrom)
	}
	t := newTask(context.Background())
	m.task = t
	m.state = runningState
	m.lastErr = nil
	m.mu.Unlock()
	if m.OnState != nil {
		m.OnState(runningState)
	}
	return t, nil
}

func stateIn(s State, allowed []State) bool {
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}

// Poll starts the metadata fetcher searching the normal source set
// (upstream/LAN/volume per configuration). Legal from Ready or Error:
// monotone progression is not required, and a client Poll call is the
// normal way to retry after a prior operation (including a Cancel)
// left the machine in Error (spec.md §4.6, §8 scenario 5).
func (m *StateMachine) Poll(ctx context.Context) error {
	return m.poll(ctx, false)
}

// PollVolume starts the metadata fetcher restricted to removable-volume
// sources only (spec.md §4.3 "force a volume-only search"). Legal from
// Ready or Error, for the same reason as Poll.
func (m *StateMachine) PollVolume(ctx context.Context) error {
	return m.poll(ctx, true)
}

func (m *StateMachine) poll(ctx context.Context, volumeOnly bool) error {
	t, err := m.beginTask(StatePolling, StateReady, StateError)
	if err != nil {
		return err
	}
	t.run(func(taskCtx context.Context) error {
		return m.runPoll(taskCtx, volumeOnly)
	}, func(err error) {
		if err != nil {
			m.setError(err)
		}
	})
	return nil
}

func (m *StateMachine) runPoll(ctx context.Context, volumeOnly bool) error {
	info, err := m.Fetcher.Poll(ctx, volumeOnly)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.info = info
	m.mu.Unlock()
	if info == nil {
		m.setState(StateReady)
		return nil
	}
	m.setState(StateUpdateAvailable)
	return nil
}

// Fetch pulls the full content of the update captured by the last
// successful Poll. Legal only from UpdateAvailable.
func (m *StateMachine) Fetch(ctx context.Context, force bool) error {
	m.mu.Lock()
	info := m.info
	m.mu.Unlock()
	if info == nil {
		return updatererror.New(updatererror.WrongState, "no update captured by a prior Poll")
	}
	if !force {
		if m.IsOnline != nil && !m.IsOnline() {
			return updatererror.New(updatererror.Fetching, "no network connectivity")
		}
		if m.IsMetered != nil && m.IsMetered() {
			return updatererror.New(updatererror.MeteredConnection, "refusing to fetch on a metered connection")
		}
	}

	t, err := m.beginTask(StateFetching, StateUpdateAvailable)
	if err != nil {
		return err
	}
	t.run(func(taskCtx context.Context) error {
		return m.runFetch(taskCtx, info)
	}, func(err error) {
		if err != nil {
			m.setError(err)
			return
		}
	})
	return nil
}

func (m *StateMachine) runFetch(ctx context.Context, info *UpdateInfo) error {
	err := m.Fetcher.Pull(ctx, info, func(downloaded, total uint64) {
		m.reportProgress(Progress{
			DownloadedBytes: downloaded,
			DownloadSize:    total,
			UpdateID:        info.Checksum.String(),
			UpdateRefspec:   info.UpgradeRefspec.String(),
		})
	})
	if err != nil {
		return err
	}
	m.setState(StateUpdateReady)
	return nil
}

// Apply deploys the fetched update as the next boot. Legal only from
// UpdateReady.
func (m *StateMachine) Apply(ctx context.Context) error {
	m.mu.Lock()
	info := m.info
	m.mu.Unlock()
	if info == nil {
		return updatererror.New(updatererror.WrongState, "no update fetched to apply")
	}

	t, err := m.beginTask(StateApplyingUpdate, StateUpdateReady)
	if err != nil {
		return err
	}
	t.run(func(taskCtx context.Context) error {
		if err := m.Applier.Apply(taskCtx, info); err != nil {
			return err
		}
		m.setState(StateUpdateApplied)
		return nil
	}, func(err error) {
		if err != nil {
			m.setError(err)
		}
	})
	return nil
}

// Cancel requests cancellation of the in-flight task. It is legal only
// while a long-running task is active (Polling, Fetching,
// ApplyingUpdate); the cancelled task transitions to Error with kind
// Cancelled. Any other state fails with WrongState.
func (m *StateMachine) Cancel() error {
	m.mu.Lock()
	switch m.state {
	case StatePolling, StateFetching, StateApplyingUpdate:
		t := m.task
		m.mu.Unlock()
		t.Cancel()
		m.setError(updatererror.New(updatererror.Cancelled, "operation cancelled"))
		return nil
	default:
		cur := m.state
		m.mu.Unlock()
		return updatererror.New(updatererror.WrongState, "cannot cancel from state %s", cur)
	}
}

// Reset returns the machine to Ready from Error, clearing the last
// error. It is the one transition out of Error besides a fresh Poll
// retry implied by the client simply calling Poll again.
func (m *StateMachine) Reset() error {
	m.mu.Lock()
	if m.state != StateError {
		cur := m.state
		m.mu.Unlock()
		return updatererror.New(updatererror.WrongState, "cannot reset from state %s", cur)
	}
	m.state = StateReady
	m.lastErr = nil
	m.mu.Unlock()
	if m.OnState != nil {
		m.OnState(StateReady)
	}
	return nil
}
