package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// StageDir creates an empty staging directory next to target, on the same
// filesystem so that it can later replace target with a rename.
func StageDir(target string) (string, error) {
	parent := filepath.Dir(target)
	if err := EnsureDir(parent); err != nil {
		return "", fmt.Errorf("failed to create parent of %s: %w", target, err)
	}
	return os.MkdirTemp(parent, StagingPrefix+filepath.Base(target)+"-")
}

// ReplaceDir swaps staged into place at target. The previous target, if any,
// is moved aside first and restored when the swap fails, so a reader of
// target sees either the old or the new tree.
func ReplaceDir(staged, target string) error {
	backup := ""
	if _, err := os.Lstat(target); err == nil {
		dir, err := os.MkdirTemp(filepath.Dir(target), BackupPrefix+filepath.Base(target)+"-")
		if err != nil {
			return fmt.Errorf("failed to reserve backup for %s: %w", target, err)
		}
		// MkdirTemp reserves the name; rename needs it to be free.
		if err := os.Remove(dir); err != nil {
			return err
		}
		if err := os.Rename(target, dir); err != nil {
			return fmt.Errorf("failed to move %s aside: %w", target, err)
		}
		backup = dir
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat %s: %w", target, err)
	}

	if err := os.Rename(staged, target); err != nil {
		if backup != "" {
			_ = os.Rename(backup, target)
		}
		return fmt.Errorf("failed to move %s into place: %w", staged, err)
	}

	if backup != "" {
		_ = os.RemoveAll(backup)
	}
	return nil
}

// IsStagingName reports whether name is a staging or backup directory left
// behind by StageDir or ReplaceDir.
func IsStagingName(name string) bool {
	return strings.HasPrefix(name, StagingPrefix) || strings.HasPrefix(name, BackupPrefix)
}
