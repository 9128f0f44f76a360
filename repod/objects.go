package repod

import (
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/klauspost/compress/zlib"
)

// chunkSize bounds the in-flight compressed bytes per connection
// (spec.md §5 "Backpressure ... bounding ... to one buffer (≥ 1 KiB,
// capped at 2 MiB or one file)").
const chunkSize = 64 * 1024

// serveFilez streams the bare repo's uncompressed ".file" object
// preceded by its stat/xattr header (fileMeta), recompressed on the
// fly as zlib level 2, masquerading as the ".filez" object an
// archive-mode repo would actually store (spec.md §4.9, §6).
func (s *Server) serveFilez(w http.ResponseWriter, r *http.Request, p string) {
	objPath := strings.TrimSuffix(s.diskPath(p), ".filez") + ".file"

	meta, err := readFileMeta(r.Context(), objPath)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	f, err := os.Open(objPath)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Transfer-Encoding", "chunked")
	w.WriteHeader(http.StatusOK)

	// Archive-mode OSTree repositories compress .filez objects at zlib
	// level 2; matching that here keeps served bytes byte-identical to
	// what a real archive repo would have stored.
	zw, err := zlib.NewWriterLevel(w, 2)
	if err != nil {
		return
	}
	defer zw.Close()

	if _, err := zw.Write(meta.encode()); err != nil {
		return
	}

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, chunkSize)
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			// Each iteration's Write blocks until the client (or its TCP
			// window) accepts the bytes, which is this server's
			// equivalent of the pause/resume backpressure in spec.md §5:
			// Go's synchronous http.ResponseWriter.Write already yields
			// that backpressure without a separate pause/resume call.
			if _, err := zw.Write(buf[:n]); err != nil {
				return
			}
			if flusher != nil {
				zw.Flush()
				flusher.Flush()
			}
		}
		if readErr == io.EOF {
			return
		}
		if readErr != nil {
			return
		}
	}
}
