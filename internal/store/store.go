package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultDBFile is the file name used when no database path is configured.
const DefaultDBFile = "database.db"

// CheckExists reports whether a database file exists at dbPath.
// A missing parent directory counts as missing; a directory at dbPath is an error.
func CheckExists(dbPath string) (bool, error) {
	info, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check database %s: %w", dbPath, err)
	}
	if info.IsDir() {
		return false, fmt.Errorf("database path is a directory, expected file: %s", dbPath)
	}
	return true, nil
}

// GetDBPath returns the full path to the database file.
// An explicit file path wins; otherwise the default file name is joined to dir.
func GetDBPath(dir, file string) string {
	if file != "" {
		if filepath.IsAbs(file) || dir == "" {
			return filepath.Clean(file)
		}
		return filepath.Join(dir, file)
	}
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, DefaultDBFile)
}
