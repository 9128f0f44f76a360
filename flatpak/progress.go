package flatpak

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"gopkg.in/ini.v1"
)

// ProgressCounter is the per-source_file "highest serial already
// applied" state, persisted as a key-file (spec.md §3, §6).
type ProgressCounter struct {
	Path    string
	applied map[string]uint32
}

// LoadProgressCounter reads path; a missing file starts every
// source_file at 0, matching "first run" treatment elsewhere in this
// daemon.
func LoadProgressCounter(path string) (*ProgressCounter, error) {
	pc := &ProgressCounter{Path: path, applied: make(map[string]uint32)}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return pc, nil
	}
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("flatpak: loading progress counter %s: %w", path, err)
	}
	section := f.Section("Progress")
	for _, key := range section.Keys() {
		n, err := strconv.ParseUint(key.Value(), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("flatpak: parsing progress counter %s=%s: %w", key.Name(), key.Value(), err)
		}
		pc.applied[key.Name()] = uint32(n)
	}
	return pc, nil
}

// Applied returns the highest serial already applied for sourceFile,
// or 0 if none recorded yet.
func (pc *ProgressCounter) Applied(sourceFile string) uint32 {
	return pc.applied[sourceFile]
}

// Set records serial as the new high-water mark for sourceFile. It
// does not persist; call Save when ready to write to disk (spec.md §5
// "updated non-atomically; partial updates are tolerated").
func (pc *ProgressCounter) Set(sourceFile string, serial uint32) {
	pc.applied[sourceFile] = serial
}

// Save persists the counter to Path.
func (pc *ProgressCounter) Save() error {
	f := ini.Empty()
	section, err := f.NewSection("Progress")
	if err != nil {
		return fmt.Errorf("flatpak: building progress counter section: %w", err)
	}

	names := make([]string, 0, len(pc.applied))
	for name := range pc.applied {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := section.NewKey(name, strconv.FormatUint(uint64(pc.applied[name]), 10)); err != nil {
			return fmt.Errorf("flatpak: writing progress counter key %s: %w", name, err)
		}
	}
	if err := f.SaveTo(pc.Path); err != nil {
		return fmt.Errorf("flatpak: saving progress counter %s: %w", pc.Path, err)
	}
	return nil
}
