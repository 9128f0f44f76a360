package repod

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/endlessm/eos-updater/executil"
)

// fileMeta is the stat/xattr header this server prepends to a bare
// object's raw content before recompressing it as a ".filez" object
// (spec.md §8 scenario 6: a decompressed filez body must be
// "byte-identical to the underlying bare file plus its stat/xattrs").
// Grounded on ostree_raw_file_to_archive_z2_stream combining a
// GFileInfo stat and an xattrs variant ahead of the content stream
// (original_source/src/eos-repo-server.c:335-356, load_compressed_file_stream).
// No GVariant encoder appears anywhere in the retrieval pack and a
// cgo libostree binding is out of scope (SPEC_FULL.md §4.2 "a real cgo
// binding to libostree is out of scope for this module"), so this is
// this server's own fixed-width, length-prefixed encoding of the same
// fields rather than a reproduction of libostree's internal GVariant
// byte layout.
type fileMeta struct {
	Mode   uint32
	UID    uint32
	GID    uint32
	Rdev   uint32
	Size   uint64
	Xattrs [][2][]byte // name, value
}

// readFileMeta stats objPath and lists its extended attributes via
// getfattr, the same CLI-shelling approach executil/ostreerepo use
// throughout this module in place of cgo bindings.
func readFileMeta(ctx context.Context, objPath string) (*fileMeta, error) {
	info, err := os.Lstat(objPath)
	if err != nil {
		return nil, err
	}
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil, fmt.Errorf("repod: cannot read raw stat for %s", objPath)
	}

	meta := &fileMeta{
		Mode: uint32(info.Mode().Perm()) | uint32(st.Mode&syscall.S_IFMT),
		UID:  st.Uid,
		GID:  st.Gid,
		Rdev: uint32(st.Rdev),
		Size: uint64(info.Size()),
	}

	xattrs, err := listXattrs(ctx, objPath)
	if err != nil {
		// getfattr absent or the filesystem lacks xattr support: serve
		// the object with an empty xattr list rather than failing the
		// whole request, matching this package's tolerance elsewhere
		// for best-effort auxiliary metadata.
		logrus.WithError(err).WithField("path", objPath).Debug("repod: no xattrs read for object")
	} else {
		meta.Xattrs = xattrs
	}
	return meta, nil
}

// listXattrs shells out to getfattr, requesting hex-encoded values so
// binary xattr payloads (e.g. SELinux contexts) survive text parsing
// intact.
func listXattrs(ctx context.Context, objPath string) ([][2][]byte, error) {
	out, err := executil.RunCaptured(ctx, "getfattr", "-d", "-m", "-", "-e", "hex", "--absolute-names", objPath)
	if err != nil {
		return nil, err
	}

	var xattrs [][2][]byte
	sc := bufio.NewScanner(strings.NewReader(string(out)))
	for sc.Scan() {
		line := sc.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx < 0 {
			continue
		}
		name := line[:idx]
		val, err := decodeGetfattrValue(line[idx+1:])
		if err != nil {
			continue
		}
		xattrs = append(xattrs, [2][]byte{[]byte(name), val})
	}
	return xattrs, nil
}

func decodeGetfattrValue(raw string) ([]byte, error) {
	if strings.HasPrefix(raw, "0x") {
		return hex.DecodeString(raw[2:])
	}
	return []byte(strings.Trim(raw, "\"")), nil
}

// encode serializes m as mode, uid, gid, rdev, size (all big-endian
// fixed-width), then an xattr count and each xattr as
// (name-length, name, value-length, value).
func (m *fileMeta) encode() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.BigEndian, m.Mode)
	binary.Write(buf, binary.BigEndian, m.UID)
	binary.Write(buf, binary.BigEndian, m.GID)
	binary.Write(buf, binary.BigEndian, m.Rdev)
	binary.Write(buf, binary.BigEndian, m.Size)
	binary.Write(buf, binary.BigEndian, uint32(len(m.Xattrs)))
	for _, kv := range m.Xattrs {
		binary.Write(buf, binary.BigEndian, uint32(len(kv[0])))
		buf.Write(kv[0])
		binary.Write(buf, binary.BigEndian, uint32(len(kv[1])))
		buf.Write(kv[1])
	}
	return buf.Bytes()
}
