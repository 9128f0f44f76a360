package ostreerepo

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/endlessm/eos-updater/executil"
)

// Repo is a handle on a local OSTree repository, opened at Path. It is
// single-process but not thread-safe at the object level (spec.md §5):
// callers serialize access, typically by routing all repo operations
// through the state machine's single in-flight task.
type Repo struct {
	Path    string
	Sysroot string // "" if this handle only needs repo, not sysroot, access
}

// Open locks and validates the repository at path.
func Open(ctx context.Context, path string) (*Repo, error) {
	if _, err := executil.RunCaptured(ctx, "ostree", "--repo="+path, "refs"); err != nil {
		return nil, errors.Wrapf(err, "ostreerepo: opening repo %s", path)
	}
	return &Repo{Path: path}, nil
}

func (r *Repo) repoArg() string { return "--repo=" + r.Path }

// ResolveRef resolves a refspec to its current checksum. Returns a
// zero Checksum and no error if the ref does not exist.
func (r *Repo) ResolveRef(ctx context.Context, refspec Refspec) (Checksum, error) {
	out, err := executil.RunCaptured(ctx, "ostree", r.repoArg(), "rev-parse", refspec.String())
	if err != nil {
		if strings.Contains(err.Error(), "Couldn't find") || strings.Contains(err.Error(), "No such") {
			return Checksum{}, nil
		}
		return Checksum{}, errors.Wrapf(err, "ostreerepo: resolving %s", refspec)
	}
	return ParseChecksum(strings.TrimSpace(string(out)))
}

// LoadCommit loads and parses a commit's metadata.
func (r *Repo) LoadCommit(ctx context.Context, checksum Checksum) (*CommitMetadata, error) {
	out, err := executil.RunCaptured(ctx, "ostree", r.repoArg(), "show", "--print-metadata-key=ALL", checksum.String())
	if err != nil {
		return nil, errors.Wrapf(err, "ostreerepo: loading commit %s", checksum)
	}
	return parseShowOutput(checksum, string(out))
}

// parseShowOutput parses the free-text output of `ostree show`. The
// format is stable but not machine-oriented, so we scan line by line
// for the fields this daemon cares about rather than depend on a full
// grammar.
func parseShowOutput(checksum Checksum, text string) (*CommitMetadata, error) {
	md := &CommitMetadata{Checksum: checksum}
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "Parent:"):
			p := strings.TrimSpace(strings.TrimPrefix(line, "Parent:"))
			if p != "" && !strings.Contains(p, "(no parent)") {
				if c, err := ParseChecksum(p); err == nil {
					md.Parent = &c
				}
			}
		case strings.HasPrefix(line, "Date:"):
			// OSTree prints an RFC3339-ish date; timestamp fidelity is
			// not required for the freshness comparisons this daemon
			// performs (those walk parents, not timestamps), so parse
			// best-effort and otherwise leave it at zero.
			md.Timestamp = parseOSTreeDate(strings.TrimSpace(strings.TrimPrefix(line, "Date:")))
		case strings.HasPrefix(line, "'eos.checkpoint-target'"):
			md.CheckpointTarget = extractQuotedValue(line)
		case strings.HasPrefix(line, "'eos.endoflife-rebase'"):
			md.EndOfLifeRebase = extractQuotedValue(line)
		case strings.HasPrefix(line, "'ostree.path'") || strings.HasPrefix(line, "'ostree.ref'"):
			md.OSTreePath = extractQuotedValue(line)
		}
	}
	return md, nil
}

func extractQuotedValue(line string) string {
	// Lines look like: 'eos.checkpoint-target' -> 'REFv2'
	idx := strings.Index(line, "-> '")
	if idx < 0 {
		return ""
	}
	rest := line[idx+len("-> '"):]
	end := strings.LastIndex(rest, "'")
	if end < 0 {
		return rest
	}
	return rest[:end]
}

func parseOSTreeDate(s string) int64 {
	// best-effort; unparseable dates are not fatal to metadata loading
	var y, mo, d, h, mi, se int
	if n, _ := fmt.Sscanf(s, "%d-%d-%d %d:%d:%d", &y, &mo, &d, &h, &mi, &se); n == 6 {
		return unixFromComponents(y, mo, d, h, mi, se)
	}
	return 0
}

// RemoteOptions are the per-remote settings the apply engine and
// fetcher read/write (spec.md §4.2, §4.7).
type RemoteOptions struct {
	URL          string
	Branches     []string
	CollectionID string
}

// GetRemoteOptions reads a remote's configured options.
func (r *Repo) GetRemoteOptions(ctx context.Context, remote string) (*RemoteOptions, error) {
	url, err := executil.RunCaptured(ctx, "ostree", r.repoArg(), "remote", "show-url", remote)
	if err != nil {
		return nil, errors.Wrapf(err, "ostreerepo: reading remote %s", remote)
	}
	branchesOut, _ := executil.RunCaptured(ctx, "ostree", r.repoArg(), "config", "get", "remote \""+remote+"\".branches")
	collIDOut, _ := executil.RunCaptured(ctx, "ostree", r.repoArg(), "config", "get", "remote \""+remote+"\".collection-id")
	return &RemoteOptions{
		URL:          strings.TrimSpace(string(url)),
		Branches:     splitBranches(strings.TrimSpace(string(branchesOut))),
		CollectionID: strings.TrimSpace(string(collIDOut)),
	}, nil
}

func splitBranches(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SetRemoteBranches rewrites a remote's branches= option. This is the
// "best-effort rewrite of branches=" step in the apply engine
// (spec.md §4.7 step 6); callers treat failure as non-fatal.
func (r *Repo) SetRemoteBranches(ctx context.Context, remote string, branches []string) error {
	_, err := executil.RunCaptured(ctx, "ostree", r.repoArg(), "config", "set",
		"remote \""+remote+"\".branches", strings.Join(branches, ";"))
	return errors.Wrapf(err, "ostreerepo: setting branches for remote %s", remote)
}

// AddRemote materializes a remote named name pointing at url, replacing
// any existing remote of that name first. Used to pull from a finder
// result that doesn't already name a configured remote (spec.md §4.4
// step 4b: LAN peers, volume drops and override URIs are discovered at
// poll time, not configured ahead of time). noGPGVerify skips
// signature checking, appropriate for these results since they carry
// no keyring of their own and rely on collection-ID verification
// instead.
func (r *Repo) AddRemote(ctx context.Context, name, url string, noGPGVerify bool) error {
	_ = r.DeleteRemote(ctx, name)
	args := []string{r.repoArg(), "remote", "add"}
	if noGPGVerify {
		args = append(args, "--no-gpg-verify")
	}
	args = append(args, name, url)
	_, err := executil.RunCaptured(ctx, "ostree", args...)
	return errors.Wrapf(err, "ostreerepo: adding remote %s (%s)", name, url)
}

// DeleteRemote removes a remote previously created by AddRemote.
// Callers treat failure as non-fatal best-effort cleanup.
func (r *Repo) DeleteRemote(ctx context.Context, name string) error {
	_, err := executil.RunCaptured(ctx, "ostree", r.repoArg(), "remote", "delete", "--if-exists", name)
	return errors.Wrapf(err, "ostreerepo: deleting remote %s", name)
}

// PullCommitOnly fetches only the commit object (and its signatures),
// not the filesystem tree, per spec.md §4.4 step 4b.
func (r *Repo) PullCommitOnly(ctx context.Context, remote, ref string) error {
	_, err := executil.RunCaptured(ctx, "ostree", r.repoArg(), "pull", "--commit-metadata-only", remote, ref)
	return errors.Wrapf(err, "ostreerepo: commit-only pull of %s:%s", remote, ref)
}

// PullOptions configures a full content pull (spec.md §4.2 "pull with
// options").
type PullOptions struct {
	Remote          string
	Ref             string
	ProgressBytes   func(downloaded, total uint64)
}

// Pull fetches the full commit content. Progress callbacks are
// best-effort; ostree's own `pull` does not expose fine-grained
// progress over a stable machine interface, so ProgressBytes is
// invoked once at start and once at completion with the sizes ostree
// reports on stdout.
func (r *Repo) Pull(ctx context.Context, opts PullOptions) error {
	out, err := executil.RunCaptured(ctx, "ostree", r.repoArg(), "pull", opts.Remote, opts.Ref)
	if err != nil {
		return errors.Wrapf(err, "ostreerepo: pulling %s:%s", opts.Remote, opts.Ref)
	}
	if opts.ProgressBytes != nil {
		downloaded, total := parsePullSizes(string(out))
		opts.ProgressBytes(downloaded, total)
	}
	return nil
}

func parsePullSizes(out string) (downloaded, total uint64) {
	// `ostree pull` prints a line like "Receiving objects: 123/456"; we
	// take the last such line as the final tally.
	for _, line := range strings.Split(out, "\n") {
		var a, b uint64
		if n, _ := fmt.Sscanf(strings.TrimSpace(line), "Receiving objects: %d/%d", &a, &b); n == 2 {
			downloaded, total = a, b
		}
	}
	return downloaded, total
}

// ObjectPath returns the on-disk path of checksum's loose object with
// the given extension (e.g. ".commit", ".commitmeta"), following
// OSTree's standard objects/XX/REST.ext layout.
func (r *Repo) ObjectPath(checksum Checksum, ext string) string {
	hexStr := checksum.String()
	return filepath.Join(r.Path, "objects", hexStr[:2], hexStr[2:]+ext)
}

// ReadObject reads a loose object's raw bytes directly off disk,
// bypassing the ostree CLI. Used for GPG signature verification
// (spec.md §4.12), where the caller needs the exact bytes a detached
// signature was computed over.
func (r *Repo) ReadObject(checksum Checksum, ext string) ([]byte, error) {
	b, err := os.ReadFile(r.ObjectPath(checksum, ext))
	if err != nil {
		return nil, errors.Wrapf(err, "ostreerepo: reading %s object for %s", ext, checksum)
	}
	return b, nil
}

// ClearRef removes a ref inside a single transaction, so a subsequent
// Prune can collect the now-unreferenced commits (spec.md §4.7 step 4).
func (r *Repo) ClearRef(ctx context.Context, refspec Refspec) error {
	_, err := executil.RunCaptured(ctx, "ostree", r.repoArg(), "refs", "--delete", refspec.String())
	return errors.Wrapf(err, "ostreerepo: clearing ref %s", refspec)
}

// Prune removes objects no longer reachable from any ref.
func (r *Repo) Prune(ctx context.Context) error {
	_, err := executil.RunCaptured(ctx, "ostree", r.repoArg(), "prune", "--refs-only")
	return errors.Wrap(err, "ostreerepo: pruning")
}

// RegenerateSummary rewrites the repository's summary file, used both
// by the apply engine's housekeeping and by the repo HTTP server when
// it finds no summary on disk (spec.md §4.9).
func (r *Repo) RegenerateSummary(ctx context.Context) error {
	_, err := executil.RunCaptured(ctx, "ostree", r.repoArg(), "summary", "-u")
	return errors.Wrap(err, "ostreerepo: regenerating summary")
}

// Deployment is a booted or bootable instance of a commit, as reported
// by `ostree admin status`.
type Deployment struct {
	OSName    string
	Checksum  Checksum
	Serial    int
	Booted    bool
}

// Sysroot status as parsed JSON, shaped like `ostree admin status --json`.
type sysrootStatusJSON struct {
	Deployments []struct {
		OSName   string `json:"osname"`
		Checksum string `json:"checksum"`
		Serial   int    `json:"serial"`
		Booted   bool   `json:"booted"`
	} `json:"deployments"`
}

// BootedDeployment returns the deployment currently booted.
func (r *Repo) BootedDeployment(ctx context.Context) (*Deployment, error) {
	out, err := executil.RunCaptured(ctx, "ostree", "admin", "--sysroot="+r.Sysroot, "status", "--json")
	if err != nil {
		return nil, errors.Wrap(err, "ostreerepo: reading sysroot status")
	}
	var status sysrootStatusJSON
	if err := json.Unmarshal(out, &status); err != nil {
		return nil, errors.Wrap(err, "ostreerepo: parsing sysroot status")
	}
	for _, d := range status.Deployments {
		if d.Booted {
			cs, err := ParseChecksum(d.Checksum)
			if err != nil {
				return nil, err
			}
			return &Deployment{OSName: d.OSName, Checksum: cs, Serial: d.Serial, Booted: true}, nil
		}
	}
	return nil, errors.New("ostreerepo: no booted deployment found")
}

// BootedOrigin reads the booted deployment's origin refspec.
func (r *Repo) BootedOrigin(ctx context.Context) (Refspec, error) {
	out, err := executil.RunCaptured(ctx, "ostree", "admin", "--sysroot="+r.Sysroot, "status")
	if err != nil {
		return Refspec{}, errors.Wrap(err, "ostreerepo: reading status")
	}
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if strings.Contains(line, "origin refspec:") {
			spec := strings.TrimSpace(strings.SplitN(line, "origin refspec:", 2)[1])
			return ParseRefspec(spec)
		}
	}
	return Refspec{}, errors.New("ostreerepo: origin refspec not found in status output")
}

// DeployOptions configures Deploy (spec.md §4.7 "deploy a tree as a
// new deployment rooted on a parent deployment").
type DeployOptions struct {
	OSName      string
	Refspec     Refspec
	Checksum    Checksum
	NoClean     bool
}

// Deploy runs `ostree admin deploy`, writing a new deployment rooted on
// the currently booted one.
func (r *Repo) Deploy(ctx context.Context, opts DeployOptions) error {
	args := []string{"admin", "--sysroot=" + r.Sysroot, "deploy", "--os=" + opts.OSName}
	if opts.NoClean {
		args = append(args, "--no-clean")
	}
	args = append(args, opts.Refspec.String())
	_, err := executil.RunCaptured(ctx, "ostree", args...)
	return errors.Wrapf(err, "ostreerepo: deploying %s", opts.Refspec)
}

// Cleanup runs `ostree admin cleanup`, the best-effort old-deployment
// pruning step that follows a successful Deploy.
func (r *Repo) Cleanup(ctx context.Context, osName string) error {
	_, err := executil.RunCaptured(ctx, "ostree", "admin", "--sysroot="+r.Sysroot, "cleanup", "--os="+osName)
	return errors.Wrap(err, "ostreerepo: cleanup")
}

func unixFromComponents(y, mo, d, h, mi, se int) int64 {
	days := daysFromCivil(y, mo, d)
	return days*86400 + int64(h)*3600 + int64(mi)*60 + int64(se)
}

// daysFromCivil is Howard Hinnant's days-from-civil algorithm, used so
// parseOSTreeDate doesn't need a full time-zone-aware layout parse for
// a field this daemon treats as advisory only.
func daysFromCivil(y, m, d int) int64 {
	y -= boolToInt(m <= 2)
	era := (y - boolToInt(y >= 0)*399) / 400
	if y < 0 {
		era = (y - 399) / 400
	}
	yoe := y - era*400
	var mp int
	if m > 2 {
		mp = m - 3
	} else {
		mp = m + 9
	}
	doy := (153*mp+2)/5 + d - 1
	doe := yoe*365 + yoe/4 - yoe/100 + doy
	return int64(era)*146097 + int64(doe) - 719468
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
