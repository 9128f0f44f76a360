package flatpak

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/endlessm/eos-updater/updatererror"
)

// ActionList is the final, per-file action sequence after the
// cross-directory priority overlay (spec.md §4.8 "Loading").
type ActionList struct {
	SourceFile string
	Priority   int
	Actions    []RefAction
}

// LoadDirectories scans dirs in the order given (later entries overlay
// earlier ones at the same filename) and returns one ActionList per
// distinct filename, chosen from the highest-priority directory that
// provides it.
func LoadDirectories(dirs []string) ([]ActionList, error) {
	winners := make(map[string]ActionList)

	for priority, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("flatpak: scanning %s: %w", dir, err)
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if !e.IsDir() {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)

		for _, name := range names {
			b, err := os.ReadFile(filepath.Join(dir, name))
			if err != nil {
				return nil, fmt.Errorf("flatpak: reading %s: %w", filepath.Join(dir, name), err)
			}
			actions, err := ParseFile(name, priority, string(b))
			if err != nil {
				return nil, updatererror.New(updatererror.MalformedAutoinstallSpec, "%v", err)
			}
			if existing, ok := winners[name]; !ok || priority > existing.Priority {
				winners[name] = ActionList{SourceFile: name, Priority: priority, Actions: actions}
			}
		}
	}

	names := make([]string, 0, len(winners))
	for name := range winners {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ActionList, 0, len(names))
	for _, name := range names {
		out = append(out, winners[name])
	}
	return out, nil
}
