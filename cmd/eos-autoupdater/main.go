// Command eos-autoupdater drives one automatic-update cycle against an
// already-running eos-updater daemon (spec.md §4.10, §6).
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"

	"github.com/endlessm/eos-updater/autodriver"
	"github.com/endlessm/eos-updater/config"
	"github.com/endlessm/eos-updater/journallog"
	"github.com/endlessm/eos-updater/stamp"
)

const (
	exitSuccess      = 0
	exitGenericError = 1
	exitInvalidArgs  = 2
	exitBadConfig    = 3
)

var (
	root = &cobra.Command{
		Use:   "eos-autoupdater",
		Short: "Drive one automatic update cycle",
	}

	forceUpdate bool
	forceFetch  bool
	fromVolume  string
	configFile  string
	stateDir    string
	sessionBus  bool
	debug       bool
)

func init() {
	flags := root.Flags()
	flags.BoolVar(&forceUpdate, "force-update", false, "skip the stamp-file due check")
	flags.BoolVar(&forceFetch, "force-fetch", false, "bypass connectivity/metering checks when fetching")
	flags.StringVar(&fromVolume, "from-volume", "", "poll only removable-volume sources mounted at this path, implying --force-update")
	flags.StringVar(&configFile, "config-file", "/etc/eos-updater/eos-updater.conf", "configuration file path")
	flags.StringVar(&stateDir, "state-dir", "/var/lib/eos-updater", "directory holding the stamp and poll-results files")
	flags.BoolVar(&sessionBus, "session-bus", false, "connect to the session bus instead of the system bus (development only)")
	flags.BoolVar(&debug, "debug", false, "verbose logging")
	root.RunE = run
}

func run(cmd *cobra.Command, args []string) error {
	journallog.Setup("eos-autoupdater", debug)

	if forceUpdate && fromVolume != "" {
		return exitWith(exitInvalidArgs, fmt.Errorf("--force-update and --from-volume are mutually exclusive"))
	}

	cfg := config.New(configFile)
	lastStepName, err := cfg.String("Automatic Updates", "LastAutomaticStep")
	if err != nil {
		return exitWith(exitBadConfig, fmt.Errorf("reading LastAutomaticStep: %w", err))
	}
	lastStep, err := parseStep(lastStepName)
	if err != nil {
		return exitWith(exitBadConfig, err)
	}
	intervalDays, err := cfg.Uint("Automatic Updates", "IntervalDays")
	if err != nil {
		return exitWith(exitBadConfig, fmt.Errorf("reading IntervalDays: %w", err))
	}
	delayDays, err := cfg.Uint("Automatic Updates", "RandomizedDelayDays")
	if err != nil {
		return exitWith(exitBadConfig, fmt.Errorf("reading RandomizedDelayDays: %w", err))
	}

	conn, err := connectBus()
	if err != nil {
		return exitWith(exitGenericError, fmt.Errorf("connecting to the message bus: %w", err))
	}
	client, err := autodriver.NewDBusClient(conn)
	if err != nil {
		return exitWith(exitGenericError, fmt.Errorf("connecting to the updater daemon: %w", err))
	}

	d := &autodriver.Driver{
		Client:              client,
		Network:             &autodriver.NetworkManagerMonitor{Conn: conn},
		Stamp:               stamp.New(filepath.Join(stateDir, "eos-updater-stamp")),
		PollResultsPath:     filepath.Join(stateDir, "eos-updater-poll-results"),
		LastAutomaticStep:   lastStep,
		IntervalDays:        uint(intervalDays),
		RandomizedDelayDays: uint(delayDays),
	}

	code, err := d.Run(context.Background(), autodriver.Options{
		ForceUpdate: forceUpdate,
		ForceFetch:  forceFetch,
		FromVolume:  fromVolume,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "eos-autoupdater:", err)
	}
	os.Exit(code)
	return nil
}

func connectBus() (*dbus.Conn, error) {
	if sessionBus {
		return dbus.ConnectSessionBus()
	}
	return dbus.ConnectSystemBus()
}

func parseStep(name string) (autodriver.Step, error) {
	switch name {
	case "0", "None", "none":
		return autodriver.StepNone, nil
	case "1", "Poll", "poll":
		return autodriver.StepPoll, nil
	case "2", "Fetch", "fetch":
		return autodriver.StepFetch, nil
	case "3", "Apply", "apply":
		return autodriver.StepApply, nil
	default:
		return 0, fmt.Errorf("invalid LastAutomaticStep %q", name)
	}
}

// exitWith prints err and returns it unchanged so cobra still reports
// failure, but the process exit code is set explicitly: cobra itself
// only distinguishes success (0) from error (1), and spec.md §6/§7
// assign 2 and 3 to specific failure classes.
func exitWith(code int, err error) error {
	fmt.Fprintln(os.Stderr, "eos-autoupdater:", err)
	os.Exit(code)
	return err
}

func main() {
	// run() always calls os.Exit itself before returning; reaching here
	// with an error means cobra rejected the command line before RunE
	// ever ran (unknown flag, bad flag value), i.e. invalid arguments.
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "eos-autoupdater:", err)
		os.Exit(exitInvalidArgs)
	}
}
