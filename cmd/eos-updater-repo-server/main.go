// Command eos-updater-repo-server re-exports a local bare OSTree
// repository over HTTP to LAN peers (spec.md §4.9, §6).
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/coreos/go-systemd/v22/activation"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/endlessm/eos-updater/config"
	"github.com/endlessm/eos-updater/gpgverify"
	"github.com/endlessm/eos-updater/journallog"
	"github.com/endlessm/eos-updater/repod"
)

const (
	exitAdvertisingDisabled = 4
	exitNoListenSockets      = 5
)

var (
	root = &cobra.Command{
		Use:   "eos-updater-repo-server",
		Short: "Serve a local OSTree repository to LAN peers",
	}

	localPort    int
	timeout      int
	serveRemote  string
	portFile     string
	configFile   string
	repoPath     string
	debug        bool
)

func init() {
	flags := root.Flags()
	flags.IntVar(&localPort, "local-port", 0, "TCP port to listen on (0: use systemd socket activation or --port-file)")
	flags.IntVar(&timeout, "timeout", 60, "idle seconds with no requests before exiting (<=0 disables)")
	flags.StringVar(&serveRemote, "serve-remote", "eos", "remote whose refs back /refs/heads/X when no local head exists")
	flags.StringVar(&portFile, "port-file", "", "write the bound port number to this path and listen on an OS-assigned port")
	flags.StringVar(&configFile, "config-file", "/etc/eos-updater/eos-updater.conf", "configuration file path")
	flags.StringVar(&repoPath, "repo", "/ostree/repo", "path to the bare OSTree repository to serve")
	flags.BoolVar(&debug, "debug", false, "verbose logging")
	root.RunE = run
}

func run(cmd *cobra.Command, args []string) error {
	journallog.Setup("eos-updater-repo-server", debug)

	cfg := config.New(configFile)
	advertise, err := cfg.Bool("Local Network Updates", "AdvertiseUpdates")
	if err != nil {
		return err
	}
	if !advertise {
		os.Exit(exitAdvertisingDisabled)
	}

	checkServedRemoteKeyring(repoPath, serveRemote)

	listener, err := acquireListener()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitNoListenSockets)
	}

	server := repod.NewServer(repoPath, serveRemote)
	httpServer := &http.Server{Handler: server}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	idleTimeout := time.Duration(timeout) * time.Second
	idle := server.WatchIdle(ctx, idleTimeout, 5*time.Second)
	go func() {
		<-idle
		httpServer.Shutdown(context.Background())
	}()

	if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// checkServedRemoteKeyring loads the served remote's trusted keyring
// as a startup sanity check (spec.md §4.12): clients that end up
// pulling through this server still verify signatures themselves, but
// a keyring that fails to parse here is a configuration mistake worth
// surfacing immediately rather than only at a client's next poll. Not
// fatal: the server still serves objects on failure.
func checkServedRemoteKeyring(repoPath, remote string) {
	path := filepath.Join(repoPath, remote+".trustedkeys.gpg")
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	if _, err := gpgverify.NewVerifier(f); err != nil {
		logrus.WithError(err).WithField("keyring", path).Warn("eos-updater-repo-server: served remote's keyring failed to parse")
	}
}

// acquireListener binds the configured listen socket: an explicit
// port, an OS-assigned port recorded to --port-file, or exactly one
// systemd-activated socket (spec.md §6 "expects a listening socket
// file descriptor handed in by the service manager").
func acquireListener() (net.Listener, error) {
	switch {
	case localPort != 0:
		return net.Listen("tcp", fmt.Sprintf(":%d", localPort))
	case portFile != "":
		l, err := net.Listen("tcp", ":0")
		if err != nil {
			return nil, err
		}
		addr := l.Addr().(*net.TCPAddr)
		if err := os.WriteFile(portFile, []byte(fmt.Sprintf("%d\n", addr.Port)), 0o644); err != nil {
			l.Close()
			return nil, fmt.Errorf("writing port file: %w", err)
		}
		return l, nil
	default:
		files := activation.Files(true)
		if len(files) != 1 {
			return nil, fmt.Errorf("expected exactly one systemd-activated socket, got %d", len(files))
		}
		return net.FileListener(files[0])
	}
}

func main() {
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "eos-updater-repo-server:", err)
		os.Exit(1)
	}
}
