// Package config implements the layered key-file overlay described in
// spec.md §4.1: an ordered list of candidate file paths plus one
// embedded default document. The first file (in priority order) that
// defines a key wins; the embedded default is the final fallback and
// must define every key this daemon reads.
//
// Files are parsed lazily with gopkg.in/ini.v1 and cached on first
// query, matching the "no file I/O at construction" invariant.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
)

//go:embed default.ini
var defaultDocument []byte

// ErrKind distinguishes the two ways a configured file can fail to
// load, per spec.md §4.1 ("fail with a distinguishable error kind").
type ErrKind int

const (
	ErrPermission ErrKind = iota
	ErrParse
)

// LoadError is returned (wrapped) when a configured file exists but
// cannot be used.
type LoadError struct {
	Path string
	Kind ErrKind
	Err  error
}

func (e *LoadError) Error() string {
	kind := "parse error"
	if e.Kind == ErrPermission {
		kind = "permission error"
	}
	return fmt.Sprintf("config: %s in %s: %v", kind, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Layer is one file in the overlay, highest priority first.
type Layer struct {
	Path string

	mu     sync.Mutex
	loaded bool
	file   *ini.File // nil if the file was missing
}

// Config is the layered overlay: candidate files, in priority order,
// plus the built-in default.
type Config struct {
	layers  []*Layer
	fallback *ini.File

	once sync.Once
	err  error
}

// New builds a Config from caller-supplied candidate paths, highest
// priority first. No I/O happens here.
func New(paths ...string) *Config {
	layers := make([]*Layer, len(paths))
	for i, p := range paths {
		layers[i] = &Layer{Path: p}
	}
	return &Config{layers: layers}
}

func (c *Config) loadFallback() error {
	var err error
	c.once.Do(func() {
		c.fallback, err = ini.Load(defaultDocument)
		if err != nil {
			err = errors.Wrap(err, "config: embedded default document is malformed")
		}
		c.err = err
	})
	if c.err != nil {
		return c.err
	}
	return err
}

func (l *Layer) load() (*ini.File, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loaded {
		return l.file, nil
	}
	l.loaded = true

	data, err := os.ReadFile(l.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &LoadError{Path: l.Path, Kind: ErrPermission, Err: err}
	}

	f, perr := ini.Load(data)
	if perr != nil {
		return nil, &LoadError{Path: l.Path, Kind: ErrParse, Err: perr}
	}
	l.file = f
	return f, nil
}

// String returns the value of key in group, consulting layers in
// priority order then the embedded default.
func (c *Config) String(group, key string) (string, error) {
	for _, l := range c.layers {
		f, err := l.load()
		if err != nil {
			return "", err
		}
		if f == nil {
			continue
		}
		if sec, err := f.GetSection(group); err == nil && sec.HasKey(key) {
			return sec.Key(key).String(), nil
		}
	}
	if err := c.loadFallback(); err != nil {
		return "", err
	}
	sec, err := c.fallback.GetSection(group)
	if err != nil {
		return "", fmt.Errorf("config: group %q has no default", group)
	}
	if !sec.HasKey(key) {
		return "", fmt.Errorf("config: key %q in group %q has no default", key, group)
	}
	return sec.Key(key).String(), nil
}

// Bool, Uint and StringList are convenience wrappers over String.
func (c *Config) Bool(group, key string) (bool, error) {
	v, err := c.String(group, key)
	if err != nil {
		return false, err
	}
	return strconv.ParseBool(v)
}

// Uint parses the value as a base-10 unsigned integer.
func (c *Config) Uint(group, key string) (uint64, error) {
	v, err := c.String(group, key)
	if err != nil {
		return 0, err
	}
	var n uint64
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return 0, fmt.Errorf("config: %s/%s is not a uint: %q", group, key, v)
	}
	return n, nil
}

// StringList parses a GLib-keyfile-style ';'-separated list value.
func (c *Config) StringList(group, key string) ([]string, error) {
	v, err := c.String(group, key)
	if err != nil {
		return nil, err
	}
	if v == "" {
		return nil, nil
	}
	var out []string
	for _, item := range splitSemicolons(v) {
		if item != "" {
			out = append(out, item)
		}
	}
	return out, nil
}

// Groups returns the sorted union of group names defined across every
// layer and the embedded default.
func (c *Config) Groups() ([]string, error) {
	seen := make(map[string]struct{})
	for _, l := range c.layers {
		f, err := l.load()
		if err != nil {
			return nil, err
		}
		if f == nil {
			continue
		}
		for _, sec := range f.Sections() {
			if sec.Name() != ini.DefaultSection {
				seen[sec.Name()] = struct{}{}
			}
		}
	}
	if err := c.loadFallback(); err != nil {
		return nil, err
	}
	for _, sec := range c.fallback.Sections() {
		if sec.Name() != ini.DefaultSection {
			seen[sec.Name()] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for g := range seen {
		out = append(out, g)
	}
	sort.Strings(out)
	return out, nil
}

func splitSemicolons(s string) []string {
	var out []string
	start := 0
	for i, r := range s {
		if r == ';' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
