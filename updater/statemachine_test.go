package updater

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/endlessm/eos-updater/ostreerepo"
	"github.com/endlessm/eos-updater/updatererror"
)

type stubPoller struct {
	pollInfo  *UpdateInfo
	pollErr   error
	pullErr   error
	pollBlock chan struct{}
	pullBlock chan struct{}
}

func (s *stubPoller) Poll(ctx context.Context, volumeOnly bool) (*UpdateInfo, error) {
	if s.pollBlock != nil {
		select {
		case <-s.pollBlock:
		case <-ctx.Done():
			return nil, updatererror.New(updatererror.Cancelled, "poll cancelled")
		}
	}
	return s.pollInfo, s.pollErr
}

func (s *stubPoller) Pull(ctx context.Context, info *UpdateInfo, progress func(downloaded, total uint64)) error {
	if s.pullBlock != nil {
		select {
		case <-s.pullBlock:
		case <-ctx.Done():
			return updatererror.New(updatererror.Cancelled, "pull cancelled")
		}
	}
	if progress != nil {
		progress(50, 100)
	}
	return s.pullErr
}

type stubDeployer struct {
	applyErr error
}

func (s *stubDeployer) Apply(ctx context.Context, info *UpdateInfo) error {
	return s.applyErr
}

func waitForState(t *testing.T, m *StateMachine, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %s, currently %s", want, m.State())
}

func sampleInfo() *UpdateInfo {
	return &UpdateInfo{
		Checksum:        ostreerepo.Checksum{1, 2, 3},
		UpgradeRefspec:  ostreerepo.Refspec{Remote: "eos", Ref: "os/eos/amd64/eos4"},
		OriginalRefspec: ostreerepo.Refspec{Remote: "eos", Ref: "os/eos/amd64/eos3"},
	}
}

func TestStateMachineFullHappyPath(t *testing.T) {
	m := NewStateMachineWith(&stubPoller{pollInfo: sampleInfo()}, &stubDeployer{})

	require.Equal(t, StateReady, m.State())
	require.NoError(t, m.Poll(context.Background()))
	waitForState(t, m, StateUpdateAvailable)

	require.NoError(t, m.Fetch(context.Background(), false))
	waitForState(t, m, StateUpdateReady)

	require.NoError(t, m.Apply(context.Background()))
	waitForState(t, m, StateUpdateApplied)
}

func TestStateMachinePollWithNoUpdateReturnsToReady(t *testing.T) {
	m := NewStateMachineWith(&stubPoller{pollInfo: nil}, &stubDeployer{})
	require.NoError(t, m.Poll(context.Background()))
	waitForState(t, m, StateReady)
}

func TestStateMachineRejectsRedundantInvocationWithWrongState(t *testing.T) {
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	m := NewStateMachineWith(&stubPoller{pollInfo: sampleInfo(), pollBlock: block}, &stubDeployer{})
	require.NoError(t, m.Poll(context.Background()))

	err := m.Poll(context.Background())
	require.Error(t, err)
	uerr, ok := updatererror.As(err)
	require.True(t, ok)
	require.Equal(t, updatererror.WrongState, uerr.Kind)

	err = m.Fetch(context.Background(), false)
	require.Error(t, err)
	uerr, ok = updatererror.As(err)
	require.True(t, ok)
	require.Equal(t, updatererror.WrongState, uerr.Kind)
}

func TestStateMachineCancelDuringPollTransitionsToCancelledError(t *testing.T) {
	block := make(chan struct{})
	m := NewStateMachineWith(&stubPoller{pollInfo: sampleInfo(), pollBlock: block}, &stubDeployer{})
	require.NoError(t, m.Poll(context.Background()))
	waitForState(t, m, StatePolling)

	require.NoError(t, m.Cancel())
	waitForState(t, m, StateError)
	require.Equal(t, updatererror.Cancelled, m.LastError().Kind)

	close(block)
}

func TestStateMachineCancelOutsideRunningStateFailsWithWrongState(t *testing.T) {
	m := NewStateMachineWith(&stubPoller{}, &stubDeployer{})
	err := m.Cancel()
	require.Error(t, err)
	uerr, ok := updatererror.As(err)
	require.True(t, ok)
	require.Equal(t, updatererror.WrongState, uerr.Kind)
}

func TestStateMachineFetchFailurePropagatesToError(t *testing.T) {
	m := NewStateMachineWith(&stubPoller{pollInfo: sampleInfo(), pullErr: errors.New("disk full")}, &stubDeployer{})
	require.NoError(t, m.Poll(context.Background()))
	waitForState(t, m, StateUpdateAvailable)

	require.NoError(t, m.Fetch(context.Background(), false))
	waitForState(t, m, StateError)
	require.Equal(t, updatererror.Fetching, m.LastError().Kind)
}

func TestStateMachineFetchRefusesMeteredConnectionUnlessForced(t *testing.T) {
	m := NewStateMachineWith(&stubPoller{pollInfo: sampleInfo()}, &stubDeployer{})
	m.IsMetered = func() bool { return true }
	require.NoError(t, m.Poll(context.Background()))
	waitForState(t, m, StateUpdateAvailable)

	err := m.Fetch(context.Background(), false)
	require.Error(t, err)
	uerr, ok := updatererror.As(err)
	require.True(t, ok)
	require.Equal(t, updatererror.MeteredConnection, uerr.Kind)
	require.Equal(t, StateUpdateAvailable, m.State())

	require.NoError(t, m.Fetch(context.Background(), true))
	waitForState(t, m, StateUpdateReady)
}

func TestStateMachineApplyFailureProducesError(t *testing.T) {
	m := NewStateMachineWith(&stubPoller{pollInfo: sampleInfo()}, &stubDeployer{applyErr: errors.New("deploy exploded")})
	require.NoError(t, m.Poll(context.Background()))
	waitForState(t, m, StateUpdateAvailable)
	require.NoError(t, m.Fetch(context.Background(), false))
	waitForState(t, m, StateUpdateReady)
	require.NoError(t, m.Apply(context.Background()))
	waitForState(t, m, StateError)
}

func TestStateMachineCancelMidFetchThenPollDrivesCycleToCompletion(t *testing.T) {
	// spec.md §4.6 "Error may be followed by Polling (triggered by a
	// client Poll call)" and §8 scenario 5: a Cancel during Fetch lands
	// in Error, but a subsequent Poll must succeed and drive the cycle
	// through to UpdateApplied, not fail with WrongState.
	block := make(chan struct{})
	stub := &stubPoller{pollInfo: sampleInfo(), pullBlock: block}
	m := NewStateMachineWith(stub, &stubDeployer{})

	require.NoError(t, m.Poll(context.Background()))
	waitForState(t, m, StateUpdateAvailable)

	require.NoError(t, m.Fetch(context.Background(), false))
	waitForState(t, m, StateFetching)

	require.NoError(t, m.Cancel())
	waitForState(t, m, StateError)
	require.Equal(t, updatererror.Cancelled, m.LastError().Kind)
	close(block)

	require.NoError(t, m.Poll(context.Background()))
	waitForState(t, m, StateUpdateAvailable)
	require.Nil(t, m.LastError())

	require.NoError(t, m.Fetch(context.Background(), false))
	waitForState(t, m, StateUpdateReady)

	require.NoError(t, m.Apply(context.Background()))
	waitForState(t, m, StateUpdateApplied)
}

func TestStateMachinePollVolumeLegalFromError(t *testing.T) {
	m := NewStateMachineWith(&stubPoller{pollErr: errors.New("network unreachable")}, &stubDeployer{})
	require.NoError(t, m.Poll(context.Background()))
	waitForState(t, m, StateError)

	require.NoError(t, m.PollVolume(context.Background()))
	waitForState(t, m, StateError)
	require.Equal(t, updatererror.Fetching, m.LastError().Kind)
}

func TestStateMachineResetReturnsToReady(t *testing.T) {
	m := NewStateMachineWith(&stubPoller{pollErr: errors.New("network unreachable")}, &stubDeployer{})
	require.NoError(t, m.Poll(context.Background()))
	waitForState(t, m, StateError)

	require.NoError(t, m.Reset())
	require.Equal(t, StateReady, m.State())
	require.Nil(t, m.LastError())
}

func TestStateMachineProgressCallbackFiresDuringFetch(t *testing.T) {
	var mu sync.Mutex
	var seen []Progress
	m := NewStateMachineWith(&stubPoller{pollInfo: sampleInfo()}, &stubDeployer{})
	m.OnProgress = func(p Progress) {
		mu.Lock()
		seen = append(seen, p)
		mu.Unlock()
	}
	require.NoError(t, m.Poll(context.Background()))
	waitForState(t, m, StateUpdateAvailable)
	require.NoError(t, m.Fetch(context.Background(), false))
	waitForState(t, m, StateUpdateReady)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	require.Equal(t, uint64(50), seen[0].DownloadedBytes)
	require.Equal(t, uint64(100), seen[0].DownloadSize)
}
