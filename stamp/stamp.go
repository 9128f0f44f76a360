// Package stamp implements the two small pieces of on-disk state the
// auto-driver consults between runs (spec.md §3, §6): the stamp file,
// whose mtime is its entire payload, and the PollResults blob.
package stamp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/rand"
	"os"
	"time"
)

// Stamp wraps the zero-byte stamp file at path. Its mtime records when
// the next automatic check becomes eligible.
type Stamp struct {
	Path string
}

// New returns a Stamp bound to path.
func New(path string) *Stamp {
	return &Stamp{Path: path}
}

// DueAt returns the time at or after which an automatic check is
// eligible to run. A missing file, or one whose mtime cannot be read,
// is treated as "time to update" (spec.md §7): it returns the zero
// Time, which any real "now" compares after.
func (s *Stamp) DueAt() time.Time {
	info, err := os.Stat(s.Path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// IsDue reports whether now is at or after the stamp's recorded time.
func (s *Stamp) IsDue(now time.Time) bool {
	return !now.Before(s.DueAt())
}

// RecordSuccess rewrites the stamp file's mtime to
// now + random_in(0, randomizedDelayDays) days (spec.md §3 "Stamp
// file", §8 "mtime ≥ now and mtime ≤ now + randomized_delay_days ·
// 86400"). randomizedDelayDays of 0 writes exactly now.
func (s *Stamp) RecordSuccess(now time.Time, randomizedDelayDays uint) error {
	var delay time.Duration
	if randomizedDelayDays > 0 {
		days := rand.Int63n(int64(randomizedDelayDays) + 1)
		delay = time.Duration(days) * 24 * time.Hour
	}
	mtime := now.Add(delay)
	return s.touch(mtime)
}

func (s *Stamp) touch(mtime time.Time) error {
	f, err := os.OpenFile(s.Path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("stamp: creating %s: %w", s.Path, err)
	}
	f.Close()
	if err := os.Chtimes(s.Path, mtime, mtime); err != nil {
		return fmt.Errorf("stamp: setting mtime on %s: %w", s.Path, err)
	}
	return nil
}

// PollResults is the persisted tuple clients use to recognize whether
// the most recently discovered update has already been reported
// (spec.md §3 "PollResults").
type PollResults struct {
	LastChangedUsecs int64
	UpdateRefspec    string
	UpdateID         string
}

const pollResultsMagic = uint32(0x454f5031) // "EOP1"

// LoadPollResults reads path. A missing file is treated as first run
// (spec.md §7) and returns a zero PollResults with no error.
func LoadPollResults(path string) (PollResults, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return PollResults{}, nil
		}
		return PollResults{}, fmt.Errorf("stamp: reading poll results %s: %w", path, err)
	}
	return decodePollResults(b)
}

func decodePollResults(b []byte) (PollResults, error) {
	r := bytes.NewReader(b)
	var magic uint32
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return PollResults{}, fmt.Errorf("stamp: truncated poll results: %w", err)
	}
	if magic != pollResultsMagic {
		return PollResults{}, fmt.Errorf("stamp: bad poll results magic %#x", magic)
	}
	var pr PollResults
	if err := binary.Read(r, binary.BigEndian, &pr.LastChangedUsecs); err != nil {
		return PollResults{}, fmt.Errorf("stamp: reading last-changed field: %w", err)
	}
	refspec, err := readString(r)
	if err != nil {
		return PollResults{}, fmt.Errorf("stamp: reading refspec field: %w", err)
	}
	id, err := readString(r)
	if err != nil {
		return PollResults{}, fmt.Errorf("stamp: reading id field: %w", err)
	}
	pr.UpdateRefspec, pr.UpdateID = refspec, id
	return pr, nil
}

func readString(r *bytes.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := r.Read(buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func encodePollResults(pr PollResults) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, pollResultsMagic)
	binary.Write(&buf, binary.BigEndian, pr.LastChangedUsecs)
	writeString(&buf, pr.UpdateRefspec)
	writeString(&buf, pr.UpdateID)
	return buf.Bytes()
}

func writeString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.BigEndian, uint32(len(s)))
	buf.WriteString(s)
}

// SavePollResults rewrites path only if next differs from the
// previously persisted contents in refspec or id (spec.md §3
// "Rewritten only when the refspec or id differ from the previous
// contents"). It reports whether a write occurred.
func SavePollResults(path string, next PollResults) (bool, error) {
	prev, err := LoadPollResults(path)
	if err != nil {
		// A corrupt prior file doesn't block writing a fresh one.
		prev = PollResults{}
	}
	if prev.UpdateRefspec == next.UpdateRefspec && prev.UpdateID == next.UpdateID {
		return false, nil
	}
	if err := os.WriteFile(path, encodePollResults(next), 0o644); err != nil {
		return false, fmt.Errorf("stamp: writing poll results %s: %w", path, err)
	}
	return true, nil
}
