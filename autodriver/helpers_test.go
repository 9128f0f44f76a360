package autodriver

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/endlessm/eos-updater/stamp"
)

// newDueStamp returns a *stamp.Stamp backed by a file whose mtime is
// dueAt, so Stamp.IsDue(now) can be exercised deterministically. A
// zero dueAt creates the stamp with a past mtime (always due).
func newDueStamp(t *testing.T, dir string, dueAt time.Time) *stamp.Stamp {
	t.Helper()
	path := filepath.Join(dir, "eos-updater-stamp")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	if dueAt.IsZero() {
		dueAt = time.Now().Add(-time.Hour)
	}
	require.NoError(t, os.Chtimes(path, dueAt, dueAt))
	return stamp.New(path)
}
