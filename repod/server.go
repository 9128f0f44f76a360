// Package repod implements the repository HTTP server (spec.md §4.9):
// it re-exports a local bare OSTree repository to LAN peers while
// masquerading as an archive-mode repository, so a stock OSTree client
// can pull from it without modification.
package repod

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/endlessm/eos-updater/executil"
)

// passthroughExtensions are object suffixes served byte-for-byte from
// the underlying bare repository (spec.md §4.9).
var passthroughExtensions = []string{".commit", ".commitmeta", ".dirmeta", ".dirtree", ".sig", ".sizes2"}

// Server re-serves RepoPath (a bare OSTree repository) over HTTP.
type Server struct {
	RepoPath string
	Remote   string // configured remote whose refs/remotes/<Remote>/X backs /refs/heads/X

	// Regenerate rewrites the on-disk summary, invoked when a client
	// requests /summary or /summary.sig and none exists yet. Defaults
	// to shelling out to `ostree summary -u` if nil.
	Regenerate func(ctx context.Context) error

	mu           sync.Mutex
	pending      int
	lastActivity time.Time
}

// NewServer returns a Server bound to repoPath, re-serving as though
// fetched through remote.
func NewServer(repoPath, remote string) *Server {
	return &Server{RepoPath: repoPath, Remote: remote, lastActivity: time.Now()}
}

// IdleFor reports how long the server has gone with no active request
// and nothing in flight (spec.md §4.9 "pending == 0 && now −
// last_activity > timeout_seconds").
func (s *Server) IdleFor(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending > 0 {
		return 0
	}
	return now.Sub(s.lastActivity)
}

func (s *Server) enter() {
	s.mu.Lock()
	s.pending++
	s.mu.Unlock()
}

func (s *Server) leave() {
	s.mu.Lock()
	s.pending--
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// ServeHTTP implements the path dispatch in spec.md §4.9.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.enter()
	defer s.leave()

	p := path(r.URL.Path)

	if strings.Contains(p, "..") {
		http.Error(w, "path traversal rejected", http.StatusForbidden)
		return
	}

	switch {
	case p == "/config":
		s.serveConfig(w, r)
	case p == "/summary" || p == "/summary.sig":
		s.serveSummary(w, r, p)
	case strings.HasPrefix(p, "/objects/") && strings.HasSuffix(p, ".filez"):
		s.serveFilez(w, r, p)
	case strings.HasPrefix(p, "/objects/") && hasAnySuffix(p, passthroughExtensions):
		s.servePassthrough(w, r, p)
	case strings.HasPrefix(p, "/deltas/"), strings.HasPrefix(p, "/extensions/"):
		s.servePassthrough(w, r, p)
	case strings.HasPrefix(p, "/refs/heads/"):
		s.serveHeadRef(w, r, p)
	default:
		http.NotFound(w, r)
	}
}

func path(raw string) string {
	if raw == "" {
		return "/"
	}
	return raw
}

func hasAnySuffix(p string, suffixes []string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(p, suf) {
			return true
		}
	}
	return false
}

func (s *Server) diskPath(p string) string {
	return filepath.Join(s.RepoPath, filepath.FromSlash(strings.TrimPrefix(p, "/")))
}

func (s *Server) servePassthrough(w http.ResponseWriter, r *http.Request, p string) {
	full := s.diskPath(p)
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, full)
}

func (s *Server) serveConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprint(w, SynthesizeConfig())
}

// SynthesizeConfig returns the always-archive, never-real config blob
// served at /config (spec.md §4.9, §6): it never leaks the real bare
// repo config, which may carry remote credentials.
func SynthesizeConfig() string {
	return "[core]\nmode=archive-z2\nrepo_version=1\n"
}

func (s *Server) serveSummary(w http.ResponseWriter, r *http.Request, p string) {
	full := s.diskPath(p)
	if _, err := os.Stat(full); err != nil {
		if err := s.regenerateSummary(r.Context()); err != nil {
			logrus.WithError(err).Warn("repod: failed to regenerate summary")
			http.Error(w, "summary unavailable", http.StatusInternalServerError)
			return
		}
		// Guard against clients whose If-Modified-Since resolution is
		// only one second, per spec.md §4.9.
		time.Sleep(time.Second)
	}
	if _, err := os.Stat(full); err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, full)
}

func (s *Server) regenerateSummary(ctx context.Context) error {
	if s.Regenerate != nil {
		return s.Regenerate(ctx)
	}
	_, err := executil.RunCaptured(ctx, "ostree", "--repo="+s.RepoPath, "summary", "-u")
	return err
}

func (s *Server) serveHeadRef(w http.ResponseWriter, r *http.Request, p string) {
	full := s.diskPath(p)
	if _, err := os.Stat(full); err == nil {
		http.ServeFile(w, r, full)
		return
	}

	name := strings.TrimPrefix(p, "/refs/heads/")
	remotePath := filepath.Join(s.RepoPath, "refs", "remotes", s.Remote, filepath.FromSlash(name))
	if _, err := os.Stat(remotePath); err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, remotePath)
}
