package archive

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/kebairia/zipbackup/internal/logger"
)

// Totals is the size of the data an archive run is expected to write.
type Totals struct {
	Files int
	Bytes int64
}

// Measure sums the size and count of the files Write would include.
// Unreadable entries and missing directories are ignored.
func Measure(root string, dirs []string, exclude []string) Totals {
	excluded := make(map[string]struct{}, len(exclude))
	for _, name := range exclude {
		excluded[name] = struct{}{}
	}

	var t Totals
	for _, dir := range dirs {
		base := filepath.Join(root, dir)
		if _, err := os.Stat(base); err != nil {
			continue
		}
		_ = filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if d != nil && d.IsDir() && path != base {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() || !d.Type().IsRegular() {
				return nil
			}
			if _, ok := excluded[d.Name()]; ok {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			t.Files++
			t.Bytes += info.Size()
			return nil
		})
	}
	return t
}

// LogProgress returns a ProgressFunc that logs each time another tenth of the
// measured total has been written.
func LogProgress(log logger.Logger, archive string) ProgressFunc {
	lastStep := int64(-1)
	return func(done, total int64) {
		if total <= 0 {
			return
		}
		step := done * 10 / total
		if step > 10 {
			step = 10
		}
		if step == lastStep {
			return
		}
		lastStep = step
		log.Info("archive progress",
			"archive", archive,
			"percent", step*10,
			"bytes", done,
			"total", total,
		)
	}
}
