package archive

import (
	"bytes"
	"io"

	"github.com/ulikunitz/xz/lzma"

	"github.com/kebairia/zipbackup/internal/logger"
)

type recordingLogger struct {
	infos    int
	warns    int
	warnMsgs []string
}

func (r *recordingLogger) Debug(string, ...any) {}
func (r *recordingLogger) Info(string, ...any)  { r.infos++ }
func (r *recordingLogger) Warn(msg string, _ ...any) {
	r.warns++
	r.warnMsgs = append(r.warnMsgs, msg)
}
func (r *recordingLogger) Error(string, ...any)      {}
func (r *recordingLogger) With(...any) logger.Logger { return r }

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }

// lzmaDecompressor reads an LZMA zip entry by rebuilding the .lzma file
// header from the entry's properties, with the size left unknown.
func lzmaDecompressor(r io.Reader) io.ReadCloser {
	prefix := make([]byte, 4+lzmaPropsLen)
	if _, err := io.ReadFull(r, prefix); err != nil {
		return io.NopCloser(errReader{err})
	}
	header := bytes.Repeat([]byte{0xff}, lzma.HeaderLen)
	copy(header, prefix[4:])
	lr, err := lzma.NewReader(io.MultiReader(bytes.NewReader(header), r))
	if err != nil {
		return io.NopCloser(errReader{err})
	}
	return io.NopCloser(lr)
}
