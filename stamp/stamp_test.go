package stamp

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStampMissingFileIsDue(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "eos-updater-stamp"))
	require.True(t, s.IsDue(time.Now()))
}

func TestStampRecordSuccessWithNoRandomDelayIsExactlyNow(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "eos-updater-stamp"))
	now := time.Now().Truncate(time.Second)
	require.NoError(t, s.RecordSuccess(now, 0))
	require.True(t, s.DueAt().Equal(now))
}

func TestStampRecordSuccessStaysWithinRandomizedWindow(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "eos-updater-stamp"))
	now := time.Now().Truncate(time.Second)
	require.NoError(t, s.RecordSuccess(now, 5))

	due := s.DueAt()
	require.False(t, due.Before(now))
	require.False(t, due.After(now.Add(5*24*time.Hour)))
}

func TestStampNotDueBeforeRecordedTime(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "eos-updater-stamp"))
	future := time.Now().Add(48 * time.Hour)
	require.NoError(t, s.RecordSuccess(future, 0))
	require.False(t, s.IsDue(time.Now()))
}

func TestLoadPollResultsMissingFileIsZeroValue(t *testing.T) {
	pr, err := LoadPollResults(filepath.Join(t.TempDir(), "poll-results"))
	require.NoError(t, err)
	require.Equal(t, PollResults{}, pr)
}

func TestPollResultsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "poll-results")
	want := PollResults{LastChangedUsecs: 1234567890, UpdateRefspec: "eos:os/eos/amd64/eos4", UpdateID: "abc123"}

	changed, err := SavePollResults(path, want)
	require.NoError(t, err)
	require.True(t, changed)

	got, err := LoadPollResults(path)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestSavePollResultsSkipsRewriteWhenUnchanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "poll-results")
	pr := PollResults{LastChangedUsecs: 1, UpdateRefspec: "eos:os/eos/amd64/eos4", UpdateID: "abc"}

	changed, err := SavePollResults(path, pr)
	require.NoError(t, err)
	require.True(t, changed)

	pr.LastChangedUsecs = 999 // timestamp alone is not part of the identity comparison
	changed, err = SavePollResults(path, pr)
	require.NoError(t, err)
	require.False(t, changed)

	got, err := LoadPollResults(path)
	require.NoError(t, err)
	require.Equal(t, int64(1), got.LastChangedUsecs)
}

func TestSavePollResultsRewritesWhenRefspecChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "poll-results")
	first := PollResults{UpdateRefspec: "eos:os/eos/amd64/eos4", UpdateID: "abc"}
	second := PollResults{UpdateRefspec: "eos:os/eos/amd64/eos5", UpdateID: "abc"}

	_, err := SavePollResults(path, first)
	require.NoError(t, err)

	changed, err := SavePollResults(path, second)
	require.NoError(t, err)
	require.True(t, changed)
}
