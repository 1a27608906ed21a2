package backup

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ListAll asks List for every archive.
const ListAll = -1

// Archive is one finished backup in the backup directory.
type Archive struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
}

// SizeMiB returns the size in MiB rounded to one decimal.
func (a Archive) SizeMiB() float64 {
	return math.Round(float64(a.Size)/(1<<20)*10) / 10
}

// List returns how many archives dir holds and the newest limit of them,
// newest first. ListAll returns all of them and any other negative limit
// returns none. dir is created if missing.
func List(dir string, limit int) (int, []Archive, error) {
	if err := EnsureDirectoryExist(dir); err != nil {
		return 0, nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, nil, fmt.Errorf("read backup directory %q: %w", dir, err)
	}

	archives := make([]Archive, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.HasSuffix(e.Name(), ".zip") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed while listing.
			continue
		}
		archives = append(archives, Archive{
			Name:    strings.TrimSuffix(e.Name(), ".zip"),
			Path:    filepath.Join(dir, e.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.SliceStable(archives, func(i, j int) bool {
		return archives[i].ModTime.After(archives[j].ModTime)
	})

	total := len(archives)
	if limit != ListAll {
		archives = archives[:min(max(limit, 0), total)]
	}
	return total, archives, nil
}
