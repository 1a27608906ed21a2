package backup

import (
	"fmt"
	"os"
	"time"
)

// archiveTimeLayout renders timestamps as YYYY-MM-DD_HH-MM-SS.
const archiveTimeLayout = "2006-01-02_15-04-05"

func EnsureDirectoryExist(dirPath string) error {
	if err := os.MkdirAll(dirPath, 0o755); err != nil {
		return fmt.Errorf("failed to create backup directory %q: %w", dirPath, err)
	}
	return nil
}

// ArchiveName returns the file name of an archive started at t.
func ArchiveName(t time.Time) string {
	return "backup_" + t.Format(archiveTimeLayout) + ".zip"
}
