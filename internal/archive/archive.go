// Package archive writes world directories into a single zip container.
package archive

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zip"

	"github.com/kebairia/zipbackup/internal/config"
	"github.com/kebairia/zipbackup/internal/logger"
)

// SessionLock is the transient lock file a running server keeps inside each world.
const SessionLock = "session.lock"

// ioBufferSize sizes both the output writer and the per-file copy buffer.
const ioBufferSize = 256 * 1024

// ProgressFunc is called after each file with the bytes written so far and the measured total.
type ProgressFunc func(done, total int64)

// Options describe one archive run.
type Options struct {
	// Root is the server data directory; entry names are relative to it.
	Root string
	// Dirs are the subdirectories of Root to include.
	Dirs []string
	// Dest is the final archive path.
	Dest    string
	Tier    config.Tier
	Comment string
	// Exclude lists file names skipped in every directory.
	Exclude  []string
	Progress ProgressFunc
	Logger   logger.Logger
}

// Result summarizes a finished archive.
type Result struct {
	Path    string
	Files   int
	Bytes   int64
	Skipped int
	// Partial names entries cut short by a read error. They are in the
	// archive but truncated.
	Partial []string
	Total   Totals
}

var bufferPool = sync.Pool{
	New: func() any {
		b := make([]byte, ioBufferSize)
		return &b
	},
}

// Write archives every regular file under Root/Dirs into Dest.
//
// Files that cannot be read are logged and skipped. Any other failure removes
// the partially written archive before the error is returned. A failure to
// create the destination directory is returned as is.
func Write(ctx context.Context, opts Options) (res Result, retErr error) {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	excluded := make(map[string]struct{}, len(opts.Exclude))
	for _, name := range opts.Exclude {
		excluded[name] = struct{}{}
	}

	res.Path = opts.Dest
	res.Total = Measure(opts.Root, opts.Dirs, opts.Exclude)

	destDir := filepath.Dir(opts.Dest)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return res, fmt.Errorf("create backup directory %q: %w", destDir, err)
	}

	// Write next to the target so the final rename is atomic.
	tmp, err := os.CreateTemp(destDir, ".zip-backup-*.tmp")
	if err != nil {
		return res, fmt.Errorf("create temp archive: %w", err)
	}
	tmpPath := tmp.Name()

	defer func() {
		if retErr != nil {
			tmp.Close()
			if err := os.Remove(tmpPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
				log.Warn("failed to remove partial archive", "path", tmpPath, "error", err.Error())
			}
		}
	}()

	bw := bufio.NewWriterSize(tmp, ioBufferSize)
	zw := zip.NewWriter(bw)
	method, err := register(zw, opts.Tier)
	if err != nil {
		return res, err
	}
	if opts.Comment != "" {
		if err := zw.SetComment(opts.Comment); err != nil {
			return res, fmt.Errorf("set archive comment: %w", err)
		}
	}

	w := &walker{
		ctx:      ctx,
		root:     opts.Root,
		zw:       zw,
		method:   method,
		excluded: excluded,
		progress: opts.Progress,
		log:      log,
		res:      &res,
	}
	for _, dir := range opts.Dirs {
		if err := w.walk(dir); err != nil {
			return res, err
		}
	}

	if err := zw.Close(); err != nil {
		return res, fmt.Errorf("zip writer close failed: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return res, fmt.Errorf("buffer flush failed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return res, fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, opts.Dest); err != nil {
		return res, fmt.Errorf("failed to rename temp archive to final path: %w", err)
	}
	return res, nil
}

// register selects the zip method for the tier and installs its compressor.
func register(zw *zip.Writer, tier config.Tier) (uint16, error) {
	switch tier {
	case config.TierSpeed:
		return zip.Store, nil
	case config.TierBest, "":
		zw.RegisterCompressor(ZipMethodLZMA, lzmaCompressor(lzmaDictCap))
		return ZipMethodLZMA, nil
	default:
		return 0, fmt.Errorf("%w %q", config.ErrInvalidTier, tier)
	}
}

type walker struct {
	ctx      context.Context
	root     string
	zw       *zip.Writer
	method   uint16
	excluded map[string]struct{}
	progress ProgressFunc
	log      logger.Logger
	res      *Result
}

func (w *walker) walk(dir string) error {
	base := filepath.Join(w.root, dir)
	if _, err := os.Stat(base); err != nil {
		w.log.Warn("world directory not found, skipping", "path", base)
		return nil
	}

	return filepath.WalkDir(base, func(path string, d fs.DirEntry, walkErr error) error {
		if err := w.ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			// Unreadable directory or entry removed between listing and visiting.
			w.skip(path, walkErr)
			if d != nil && d.IsDir() && path != base {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if _, ok := w.excluded[d.Name()]; ok {
			return nil
		}

		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return fmt.Errorf("failed to get relative path for %s: %w", path, err)
		}
		return w.add(path, filepath.ToSlash(rel))
	})
}

// add writes one file. Files that cannot be opened are skipped; writer-side errors abort.
func (w *walker) add(path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		w.skip(path, err)
		return nil
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		w.skip(path, err)
		return nil
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		w.skip(path, err)
		return nil
	}
	header.Name = name
	header.Method = w.method
	if w.method == ZipMethodLZMA {
		header.Flags |= flagLZMAEOS
	}

	return w.copyEntry(path, header, f)
}

// copyEntry writes header and streams r into it. A zip entry cannot be
// withdrawn once started, so a read failure leaves a truncated entry behind.
func (w *walker) copyEntry(path string, header *zip.FileHeader, r io.Reader) error {
	dst, err := w.zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to write zip header for %s: %w", header.Name, err)
	}

	bufPtr := bufferPool.Get().(*[]byte)
	defer bufferPool.Put(bufPtr)

	src := &sourceReader{r: r}
	n, err := io.CopyBuffer(dst, src, *bufPtr)
	w.res.Bytes += n
	if err != nil {
		if src.err == nil {
			return fmt.Errorf("failed to write %s to archive: %w", header.Name, err)
		}
		w.res.Partial = append(w.res.Partial, header.Name)
		w.log.Warn("file partially archived, entry is truncated",
			"path", path,
			"written", n,
			"size", header.UncompressedSize64,
			"error", src.err.Error(),
		)
	} else {
		w.res.Files++
	}

	if w.progress != nil {
		w.progress(w.res.Bytes, w.res.Total.Bytes)
	}
	return nil
}

func (w *walker) skip(path string, err error) {
	w.res.Skipped++
	w.log.Warn("skipping file", "path", path, "error", err.Error())
}

// sourceReader records read errors so they can be told apart from write errors.
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		s.err = err
	}
	return n, err
}
