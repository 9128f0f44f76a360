package autodriver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/endlessm/eos-updater/updater"
)

// fakeClient is a scripted Client: each call to WaitForChange advances
// states to the next entry in its states slice.
type fakeClient struct {
	states     []updater.State
	idx        int
	errName    string
	errMessage string

	polled      bool
	polledPath  string
	fetched     bool
	fetchForce  bool
	applied     bool
	refspec, id string
}

func (f *fakeClient) Poll(ctx context.Context) error { f.polled = true; return nil }
func (f *fakeClient) PollVolume(ctx context.Context, path string) error {
	f.polled, f.polledPath = true, path
	return nil
}
func (f *fakeClient) Fetch(ctx context.Context, force bool) error {
	f.fetched, f.fetchForce = true, force
	if f.idx < len(f.states)-1 {
		f.idx++
	}
	return nil
}
func (f *fakeClient) Apply(ctx context.Context) error {
	f.applied = true
	if f.idx < len(f.states)-1 {
		f.idx++
	}
	return nil
}

func (f *fakeClient) State(ctx context.Context) (updater.State, error) {
	return f.states[f.idx], nil
}

func (f *fakeClient) LastError(ctx context.Context) (string, string, error) {
	return f.errName, f.errMessage, nil
}

func (f *fakeClient) WaitForChange(ctx context.Context) error {
	if f.idx < len(f.states)-1 {
		f.idx++
	}
	return nil
}

func (f *fakeClient) UpdateInfo(ctx context.Context) (string, string, error) {
	return f.refspec, f.id, nil
}

type fakeNetwork struct{ online bool }

func (n fakeNetwork) IsOnline() bool  { return n.online }
func (n fakeNetwork) IsMetered() bool { return false }

func TestRunExitsSuccessWhenOfflineAndNoVolumeGiven(t *testing.T) {
	d := &Driver{
		Client:            &fakeClient{states: []updater.State{updater.StateReady}},
		Network:           fakeNetwork{online: false},
		LastAutomaticStep: StepApply,
	}
	code, err := d.Run(context.Background(), Options{})
	require.NoError(t, err)
	require.Equal(t, 0, code)
}

func TestRunExitsSuccessWhenStampNotYetDue(t *testing.T) {
	dir := t.TempDir()
	st := newDueStamp(t, dir, time.Now().Add(time.Hour))
	c := &fakeClient{states: []updater.State{updater.StateReady}}
	d := &Driver{
		Client:            c,
		Network:           fakeNetwork{online: true},
		Stamp:             st,
		LastAutomaticStep: StepApply,
	}
	code, err := d.Run(context.Background(), Options{})
	require.NoError(t, err)
	require.Equal(t, 0, code)
	require.False(t, c.polled)
}

func TestRunExitsSuccessWhenIntervalDaysExtendsDueDate(t *testing.T) {
	dir := t.TempDir()
	// mtime is one hour in the past, but a two-day interval pushes the
	// effective due date well into the future.
	st := newDueStamp(t, dir, time.Now().Add(-time.Hour))
	c := &fakeClient{states: []updater.State{updater.StateReady}}
	d := &Driver{
		Client:            c,
		Network:           fakeNetwork{online: true},
		Stamp:             st,
		LastAutomaticStep: StepApply,
		IntervalDays:      2,
	}
	code, err := d.Run(context.Background(), Options{})
	require.NoError(t, err)
	require.Equal(t, 0, code)
	require.False(t, c.polled)
}

func TestRunStopsAfterPollWhenLastStepIsPoll(t *testing.T) {
	c := &fakeClient{states: []updater.State{updater.StatePolling, updater.StateUpdateAvailable}}
	d := &Driver{
		Client:            c,
		Network:           fakeNetwork{online: true},
		LastAutomaticStep: StepPoll,
	}
	code, err := d.Run(context.Background(), Options{})
	require.NoError(t, err)
	require.Equal(t, 0, code)
	require.True(t, c.polled)
	require.False(t, c.fetched)
}

func TestRunDrivesThroughFetchAndApplyWhenLastStepIsApply(t *testing.T) {
	c := &fakeClient{states: []updater.State{
		updater.StatePolling,
		updater.StateUpdateAvailable,
		updater.StateFetching,
		updater.StateUpdateReady,
		updater.StateApplyingUpdate,
		updater.StateUpdateApplied,
	}}
	dir := t.TempDir()
	st := newDueStamp(t, dir, time.Time{})
	d := &Driver{
		Client:              c,
		Network:             fakeNetwork{online: true},
		Stamp:               st,
		LastAutomaticStep:   StepApply,
		RandomizedDelayDays: 0,
	}
	code, err := d.Run(context.Background(), Options{})
	require.NoError(t, err)
	require.Equal(t, 0, code)
	require.True(t, c.fetched)
	require.True(t, c.applied)
}

func TestRunFromVolumeForcesPollVolumeAndBypassesStamp(t *testing.T) {
	c := &fakeClient{states: []updater.State{updater.StatePolling, updater.StateReady}}
	dir := t.TempDir()
	st := newDueStamp(t, dir, time.Now().Add(24*time.Hour))
	d := &Driver{
		Client:            c,
		Network:           fakeNetwork{online: false},
		Stamp:             st,
		LastAutomaticStep: StepApply,
	}
	code, err := d.Run(context.Background(), Options{FromVolume: "/media/usb"})
	require.NoError(t, err)
	require.Equal(t, 0, code)
	require.Equal(t, "/media/usb", c.polledPath)
}

func TestRunReportsGenericFailureOnError(t *testing.T) {
	c := &fakeClient{
		states:     []updater.State{updater.StatePolling, updater.StateError},
		errName:    "com.endlessm.Updater.Error.Fetching",
		errMessage: "no network",
	}
	d := &Driver{
		Client:            c,
		Network:           fakeNetwork{online: true},
		LastAutomaticStep: StepApply,
	}
	code, err := d.Run(context.Background(), Options{})
	require.Error(t, err)
	require.Equal(t, 1, code)
}

func TestRunNeverRewritesStampOnFailure(t *testing.T) {
	dir := t.TempDir()
	st := newDueStamp(t, dir, time.Time{})
	before := st.DueAt()
	c := &fakeClient{states: []updater.State{updater.StatePolling, updater.StateError}}
	d := &Driver{
		Client:            c,
		Network:           fakeNetwork{online: true},
		Stamp:             st,
		LastAutomaticStep: StepApply,
	}
	_, err := d.Run(context.Background(), Options{})
	require.Error(t, err)
	require.Equal(t, before, st.DueAt())
}

func TestRunDoesNothingWhenLastStepIsNone(t *testing.T) {
	c := &fakeClient{states: []updater.State{updater.StateReady}}
	d := &Driver{
		Client:            c,
		Network:           fakeNetwork{online: true},
		LastAutomaticStep: StepNone,
	}
	code, err := d.Run(context.Background(), Options{})
	require.NoError(t, err)
	require.Equal(t, 0, code)
	require.False(t, c.polled)
}
