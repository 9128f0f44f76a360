// Package journallog wires the daemon's two logging registers -
// capnslog (used by the update/flatpak engines, matching upstream
// mantle) and logrus (used by the CLI entrypoints) - to a single
// destination: journald when running under systemd, stderr otherwise.
package journallog

import (
	"os"

	"github.com/coreos/go-systemd/v22/journal"
	"github.com/coreos/pkg/capnslog"
	"github.com/sirupsen/logrus"
)

// Setup configures both logging registers for process name name.
// debug enables verbose output on both.
func Setup(name string, debug bool) {
	level := capnslog.INFO
	logrusLevel := logrus.InfoLevel
	if debug {
		level = capnslog.DEBUG
		logrusLevel = logrus.DebugLevel
	}
	capnslog.SetGlobalLogLevel(level)
	logrus.SetLevel(logrusLevel)

	if journal.Enabled() {
		capnslog.SetFormatter(capnslog.NewStringFormatter(&journalWriter{}))
		logrus.SetOutput(&journalWriter{})
		logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
		return
	}

	capnslog.SetFormatter(capnslog.NewPrettyFormatter(os.Stderr, debug))
	logrus.SetOutput(os.Stderr)
}

// journalWriter adapts io.Writer onto journal.Print at PRIINFO; good
// enough fidelity for a daemon whose real severity is already baked
// into the formatted line by capnslog/logrus.
type journalWriter struct{}

func (journalWriter) Write(p []byte) (int, error) {
	if err := journal.Print(journal.PriInfo, "%s", string(p)); err != nil {
		os.Stderr.Write(p)
	}
	return len(p), nil
}
