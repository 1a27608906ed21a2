package archive

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zip"
	"github.com/ulikunitz/xz/lzma"
)

// ZipMethodLZMA is the zip compression method for LZMA entries.
const ZipMethodLZMA uint16 = 14

// flagLZMAEOS tells readers the entry ends with an end-of-stream marker.
const flagLZMAEOS = 0x2

// lzmaDictCap is the dictionary size used for the best tier.
const lzmaDictCap = 8 << 20

// lzmaPropsLen is the length of the properties block: one lc/lp/pb byte and
// the dictionary size.
const lzmaPropsLen = 5

// lzmaVersion is the LZMA SDK version recorded in each entry.
var lzmaVersion = [2]byte{9, 20}

func lzmaCompressor(dictCap int) zip.Compressor {
	return func(w io.Writer) (io.WriteCloser, error) {
		cfg := lzma.WriterConfig{DictCap: dictCap, EOSMarker: true}
		lw, err := cfg.NewWriter(&lzmaHeaderWriter{w: w})
		if err != nil {
			return nil, fmt.Errorf("create lzma writer: %w", err)
		}
		return lw, nil
	}
}

// lzmaHeaderWriter turns the 13 byte .lzma file header into the header zip
// expects: SDK version, properties length, then the properties. The
// uncompressed size is dropped.
type lzmaHeaderWriter struct {
	w   io.Writer
	off int
}

func (h *lzmaHeaderWriter) Write(p []byte) (int, error) {
	n := len(p)
	if h.off < lzma.HeaderLen && len(p) > 0 {
		if h.off == 0 {
			prefix := []byte{lzmaVersion[0], lzmaVersion[1], lzmaPropsLen, 0}
			if _, err := h.w.Write(prefix); err != nil {
				return 0, err
			}
		}
		take := min(len(p), lzma.HeaderLen-h.off)
		if h.off < lzmaPropsLen {
			keep := min(take, lzmaPropsLen-h.off)
			if _, err := h.w.Write(p[:keep]); err != nil {
				return 0, err
			}
		}
		h.off += take
		p = p[take:]
	}
	if len(p) > 0 {
		if _, err := h.w.Write(p); err != nil {
			return 0, err
		}
	}
	return n, nil
}
