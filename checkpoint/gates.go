package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/endlessm/eos-updater/ostreerepo"
)

// DenylistGate vetoes when a value read from Read matches any entry in
// Denylist, used for the DMI vendor/product and CPU model and kernel
// architecture predicates in spec.md §4.5 step 3.
type DenylistGate struct {
	GateName string
	Denylist []string
	Read     func() (string, error)
}

func (g *DenylistGate) Name() string { return g.GateName }

func (g *DenylistGate) Veto(ctx context.Context, booted, target ostreerepo.Refspec) (bool, error) {
	value, err := g.Read()
	if err != nil {
		// Unreadable hardware info is not itself a veto: a machine
		// without, say, a DMI table is not thereby barred from the
		// checkpoint.
		return false, nil
	}
	value = strings.TrimSpace(value)
	for _, d := range g.Denylist {
		if strings.EqualFold(value, d) {
			return true, nil
		}
	}
	return false, nil
}

// ReadDMI reads a /sys/class/dmi/id field (vendor or product name).
func ReadDMI(field string) func() (string, error) {
	return func() (string, error) {
		b, err := os.ReadFile(filepath.Join("/sys/class/dmi/id", field))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

// ReadCPUModel reads the first "model name" field from /proc/cpuinfo.
func ReadCPUModel() (string, error) {
	b, err := os.ReadFile("/proc/cpuinfo")
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(string(b), "\n") {
		if strings.HasPrefix(line, "model name") {
			if idx := strings.Index(line, ":"); idx >= 0 {
				return strings.TrimSpace(line[idx+1:]), nil
			}
		}
	}
	return "", nil
}

// ReadOnlyRootGate vetoes when the root filesystem is read-only, as
// reported by the kernel command line (spec.md §4.5 step 3).
type ReadOnlyRootGate struct {
	CmdlinePath string // defaults to /proc/cmdline
}

func (g *ReadOnlyRootGate) Name() string { return "read-only-root" }

func (g *ReadOnlyRootGate) Veto(ctx context.Context, booted, target ostreerepo.Refspec) (bool, error) {
	path := g.CmdlinePath
	if path == "" {
		path = "/proc/cmdline"
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return false, nil
	}
	fields := strings.Fields(string(b))
	for _, f := range fields {
		if f == "ro" {
			return true, nil
		}
		if f == "rw" {
			return false, nil
		}
	}
	return false, nil
}

// SplitDiskGate vetoes when IsSplitLayout reports the machine uses a
// split disk layout (spec.md §4.5 step 3).
type SplitDiskGate struct {
	IsSplitLayout func() (bool, error)
}

func (g *SplitDiskGate) Name() string { return "split-disk-layout" }

func (g *SplitDiskGate) Veto(ctx context.Context, booted, target ostreerepo.Refspec) (bool, error) {
	if g.IsSplitLayout == nil {
		return false, nil
	}
	return g.IsSplitLayout()
}

// RefGlobGate vetoes unless booted.Ref matches SourceGlob and
// target.Ref matches TargetGlob (spec.md §4.5 step 3 "source-ref /
// target-ref glob pair").
type RefGlobGate struct {
	SourceGlob, TargetGlob string
}

func (g *RefGlobGate) Name() string { return "ref-glob" }

func (g *RefGlobGate) Veto(ctx context.Context, booted, target ostreerepo.Refspec) (bool, error) {
	srcMatch, err := filepath.Match(g.SourceGlob, booted.Ref)
	if err != nil {
		return false, err
	}
	dstMatch, err := filepath.Match(g.TargetGlob, target.Ref)
	if err != nil {
		return false, err
	}
	return !(srcMatch && dstMatch), nil
}
