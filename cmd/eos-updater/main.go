// Command eos-updater is the update daemon: it owns the state machine
// and exports it on the message bus at com.endlessm.Updater (spec.md
// §4.6, §6).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"

	"github.com/endlessm/eos-updater/autodriver"
	"github.com/endlessm/eos-updater/checkpoint"
	"github.com/endlessm/eos-updater/config"
	"github.com/endlessm/eos-updater/dbusapi"
	"github.com/endlessm/eos-updater/gpgverify"
	"github.com/endlessm/eos-updater/journallog"
	"github.com/endlessm/eos-updater/lanpeers"
	"github.com/endlessm/eos-updater/ostreerepo"
	"github.com/endlessm/eos-updater/sourceset"
	"github.com/endlessm/eos-updater/updater"
)

var (
	root = &cobra.Command{
		Use:   "eos-updater",
		Short: "Update daemon for OSTree-based systems",
		RunE:  run,
	}

	repoPath     string
	configFile   string
	mainRemote   string
	volumePath   string
	sessionBus   bool
	debug        bool
)

func init() {
	flags := root.Flags()
	flags.StringVar(&repoPath, "repo", "/ostree/repo", "path to the local OSTree repository")
	flags.StringVar(&configFile, "config-file", "/etc/eos-updater/eos-updater.conf", "configuration file path")
	flags.StringVar(&mainRemote, "main-remote", "eos", "remote name the main source consults")
	flags.StringVar(&volumePath, "volume-path", "/media", "mount point scanned for removable-volume sources")
	flags.BoolVar(&sessionBus, "session-bus", false, "export on the session bus instead of the system bus (development only)")
	flags.BoolVar(&debug, "debug", false, "verbose logging")
}

func run(cmd *cobra.Command, args []string) error {
	journallog.Setup("eos-updater", debug)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := ostreerepo.Open(ctx, repoPath)
	if err != nil {
		return fmt.Errorf("opening repository: %w", err)
	}

	cfg := config.New(configFile)
	order, err := cfg.StringList("Download", "Order")
	if err != nil {
		return fmt.Errorf("reading Download.Order: %w", err)
	}
	overrides, err := cfg.StringList("Download", "OverrideUris")
	if err != nil {
		return fmt.Errorf("reading Download.OverrideUris: %w", err)
	}
	advertise, err := cfg.Bool("Local Network Updates", "AdvertiseUpdates")
	if err != nil {
		return fmt.Errorf("reading Local Network Updates.AdvertiseUpdates: %w", err)
	}

	conn, err := connectBus()
	if err != nil {
		return fmt.Errorf("connecting to the message bus: %w", err)
	}

	sourcesConfig := sourceset.SourcesConfig{Order: toKinds(order), OverrideURIs: overrides}
	buildDeps := sourceset.BuildDeps{
		Repo:       repo,
		MainRemote: mainRemote,
		VolumePath: volumePath,
		Logf:       func(format string, a ...interface{}) { fmt.Fprintf(os.Stderr, format+"\n", a...) },
		NewLANFinder: func(ctx context.Context) (sourceset.Finder, error) {
			if !advertise {
				return nil, fmt.Errorf("LAN discovery disabled by configuration")
			}
			return sourceset.NewLANFinder(ctx, &lanpeers.AvahiLister{Conn: conn})
		},
	}

	decider := &checkpoint.Decider{
		NewerOnBootedRef: newerOnBootedRef(repo),
		OverrideEnvVar:   "EOS_UPDATER_FORCE_CHECKPOINT",
		Gates: []checkpoint.Gate{
			&checkpoint.DenylistGate{GateName: "dmi-product", Read: checkpoint.ReadDMI("product_name")},
			&checkpoint.DenylistGate{GateName: "dmi-vendor", Read: checkpoint.ReadDMI("sys_vendor")},
			&checkpoint.DenylistGate{GateName: "cpu-model", Read: checkpoint.ReadCPUModel},
			&checkpoint.ReadOnlyRootGate{},
		},
	}

	fetcher := &updater.Fetcher{
		Repo:              repo,
		CheckpointDecider: decider,
		BuildFinders: func(ctx context.Context) []sourceset.Finder {
			return sourceset.Build(ctx, sourcesConfig, buildDeps)
		},
		SignatureVerifier: loadSignatureVerifier(repoPath, mainRemote),
	}
	applier := &updater.Applier{Repo: repo}
	machine := updater.NewStateMachine(fetcher, applier)
	machine.IsOnline = (&autodriver.NetworkManagerMonitor{Conn: conn}).IsOnline
	machine.IsMetered = (&autodriver.NetworkManagerMonitor{Conn: conn}).IsMetered

	svc := dbusapi.NewService(machine)
	if err := svc.Export(conn); err != nil {
		return fmt.Errorf("exporting D-Bus service: %w", err)
	}

	reply, err := conn.RequestName(dbusapi.InterfaceName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("requesting bus name %s: %w", dbusapi.InterfaceName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("bus name %s already owned", dbusapi.InterfaceName)
	}

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		fmt.Fprintln(os.Stderr, "eos-updater: sd_notify READY failed:", err)
	}

	<-ctx.Done()
	return nil
}

// loadSignatureVerifier loads the configured remote's trusted keyring,
// used to check detached signatures on commits pulled through a
// temporary remote materialized for a LAN/volume/override finder
// result (spec.md §4.12). A missing keyring file disables the check
// rather than failing startup: not every deployment carries one, and
// collection-ID plus the remote's own pull verification still apply.
func loadSignatureVerifier(repoPath, remote string) *gpgverify.Verifier {
	path := filepath.Join(repoPath, remote+".trustedkeys.gpg")
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	verifier, err := gpgverify.NewVerifier(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "eos-updater: loading keyring %s: %v\n", path, err)
		return nil
	}
	return verifier
}

func connectBus() (*dbus.Conn, error) {
	if sessionBus {
		return dbus.ConnectSessionBus()
	}
	return dbus.ConnectSystemBus()
}

func toKinds(order []string) []sourceset.Kind {
	kinds := make([]sourceset.Kind, len(order))
	for i, o := range order {
		kinds[i] = sourceset.Kind(o)
	}
	return kinds
}

// newerOnBootedRef walks booted's commit parents from its current head
// looking for checkpoint, mirroring updater.Fetcher's own parent-walk
// (spec.md §4.5 step 2, §4.4 step 5): if checkpoint is an ancestor of
// the current head, maintenance has continued past it and the
// checkpoint must not be followed yet.
func newerOnBootedRef(repo *ostreerepo.Repo) checkpoint.NewerOnBootedRefFunc {
	return func(ctx context.Context, booted ostreerepo.Refspec, checkpointCommit ostreerepo.Checksum) (bool, error) {
		head, err := repo.ResolveRef(ctx, booted)
		if err != nil {
			return false, err
		}
		if head.IsZero() || head == checkpointCommit {
			return false, nil
		}
		cur := head
		for i := 0; i < 100000; i++ {
			commit, err := repo.LoadCommit(ctx, cur)
			if err != nil {
				return false, err
			}
			if commit.Parent == nil {
				return false, nil
			}
			if *commit.Parent == checkpointCommit {
				return true, nil
			}
			cur = *commit.Parent
		}
		return false, fmt.Errorf("eos-updater: parent chain exceeded sanity limit walking from %s", head)
	}
}

func main() {
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "eos-updater:", err)
		os.Exit(1)
	}
}
