// Command eos-updater-flatpak-installer replays flatpak action lists
// against the flatpak CLI (spec.md §4.8). It is invoked with exactly
// one of --perform, --stamp, --check.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/endlessm/eos-updater/flatpak"
	"github.com/endlessm/eos-updater/journallog"
)

var (
	root = &cobra.Command{
		Use:   "eos-updater-flatpak-installer",
		Short: "Replay flatpak autoinstall action lists",
		RunE:  run,
	}

	perform, stamp, check bool
	alsoPull              bool
	actionDirs            []string
	progressFile          string
	debug                 bool
)

func init() {
	flags := root.Flags()
	flags.BoolVar(&perform, "perform", false, "install, update and uninstall the actions listed")
	flags.BoolVar(&stamp, "stamp", false, "record the actions as applied without touching flatpak")
	flags.BoolVar(&check, "check", false, "verify installed state matches the action lists without mutating anything")
	flags.BoolVar(&alsoPull, "also-pull", false, "pull flatpak remote refs before replaying (currently a no-op placeholder for CLI compatibility)")
	flags.StringSliceVar(&actionDirs, "actions-dir", nil, "directories to scan for action-list files, lowest priority first (repeatable)")
	flags.StringVar(&progressFile, "progress-file", "/var/lib/eos-updater/flatpak-autoinstall.progress", "path to the progress counter key-file")
	flags.BoolVar(&debug, "debug", false, "verbose logging")
}

func modeFromFlags() (flatpak.Mode, error) {
	set := 0
	var mode flatpak.Mode
	if perform {
		set++
		mode = flatpak.Perform
	}
	if stamp {
		set++
		mode = flatpak.Stamp
	}
	if check {
		set++
		mode = flatpak.Check
	}
	if set != 1 {
		return 0, fmt.Errorf("exactly one of --perform, --stamp, --check must be given")
	}
	return mode, nil
}

func run(cmd *cobra.Command, args []string) error {
	journallog.Setup("eos-updater-flatpak-installer", debug)

	mode, err := modeFromFlags()
	if err != nil {
		return err
	}
	if len(actionDirs) == 0 {
		actionDirs = []string{
			"/usr/share/eos-application-tools/flatpak-autoinstall.d",
			"/etc/eos-updater/flatpak-autoinstall.d",
		}
	}

	lists, err := flatpak.LoadDirectories(actionDirs)
	if err != nil {
		return fmt.Errorf("loading action lists: %w", err)
	}

	progress, err := flatpak.LoadProgressCounter(progressFile)
	if err != nil {
		return fmt.Errorf("loading progress counter: %w", err)
	}

	engine := &flatpak.Engine{
		Installer: &flatpak.CLIInstaller{},
		Progress:  progress,
	}

	report, err := engine.Run(context.Background(), lists, mode)
	if err != nil {
		return err
	}
	cmd.Printf("applied %d action(s)\n", len(report.Applied))
	return nil
}

func main() {
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "eos-updater-flatpak-installer: %v\n", err)
		os.Exit(1)
	}
}
