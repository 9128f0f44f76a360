package flatpak

import (
	"context"
	"strings"

	"github.com/endlessm/eos-updater/executil"
)

// CLIInstaller drives the flatpak CLI directly, the same shelled-out
// pattern ostreerepo.Repo uses for the ostree binary: flatpak has no
// stable Go binding in this ecosystem, but its CLI output is stable
// enough to script against.
type CLIInstaller struct {
	// Installation selects "--system" (default, empty) or
	// "--installation=NAME".
	Installation string
}

func (c *CLIInstaller) installationArg() []string {
	if c.Installation == "" {
		return nil
	}
	return []string{"--installation=" + c.Installation}
}

func (c *CLIInstaller) Install(ctx context.Context, remote, ref string) error {
	args := append([]string{"install", "-y", "--noninteractive"}, c.installationArg()...)
	args = append(args, remote, ref)
	_, err := executil.RunCaptured(ctx, "flatpak", args...)
	if err != nil && strings.Contains(err.Error(), "already installed") {
		return ErrAlreadyInstalled
	}
	return err
}

func (c *CLIInstaller) Update(ctx context.Context, remote, ref string) error {
	args := append([]string{"update", "-y", "--noninteractive"}, c.installationArg()...)
	args = append(args, ref)
	_, err := executil.RunCaptured(ctx, "flatpak", args...)
	if err != nil && strings.Contains(err.Error(), "not installed") {
		return ErrNotInstalled
	}
	return err
}

func (c *CLIInstaller) Uninstall(ctx context.Context, remote, ref string) error {
	args := append([]string{"uninstall", "-y", "--noninteractive"}, c.installationArg()...)
	args = append(args, ref)
	_, err := executil.RunCaptured(ctx, "flatpak", args...)
	if err != nil && strings.Contains(err.Error(), "not installed") {
		return ErrNotInstalled
	}
	return err
}

func (c *CLIInstaller) InstalledRemote(ctx context.Context, ref string) (string, bool, error) {
	args := append([]string{"info", "--show-origin"}, c.installationArg()...)
	args = append(args, ref)
	out, err := executil.RunCaptured(ctx, "flatpak", args...)
	if err != nil {
		if strings.Contains(err.Error(), "not installed") {
			return "", false, nil
		}
		return "", false, err
	}
	return strings.TrimSpace(string(out)), true, nil
}
