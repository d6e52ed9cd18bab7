// Package archive extracts downloaded package artifacts and builds them for
// tests and tooling. Artifacts are zip containers; tar.gz is accepted too.
package archive

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/glorpus-work/sitepkg/pkg/errors"
	"github.com/glorpus-work/sitepkg/pkg/fsutil"
	"github.com/mholt/archives"
)

var supportedTypes = []string{
	"application/zip",
	"application/gzip",
	"application/x-tar",
}

// Manager handles archive extraction and creation operations.
type Manager struct{}

// NewManager creates a new Manager instance.
func NewManager() *Manager {
	return &Manager{}
}

// Sniff returns the detected MIME type of the artifact at path, or an
// ErrArchiveExtractFailed error when it is not an archive we can open.
func (am *Manager) Sniff(path string) (string, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "", errors.Mark(errors.ErrArchiveExtractFailed, err)
	}
	for m := mt; m != nil; m = m.Parent() {
		for _, supported := range supportedTypes {
			if m.Is(supported) {
				return mt.String(), nil
			}
		}
	}
	return "", errors.Wrapf(errors.ErrArchiveExtractFailed, "%s is %s, not an archive", filepath.Base(path), mt.String())
}

// ExtractAll extracts all files from an archive to the specified destination
// directory. Existing files are overwritten.
func (am *Manager) ExtractAll(ctx context.Context, archivePath, destDir string) error {
	if _, err := am.Sniff(archivePath); err != nil {
		return err
	}

	fsys, err := archives.FileSystem(ctx, archivePath, nil)
	if err != nil {
		return errors.Mark(errors.ErrArchiveExtractFailed, fmt.Errorf("failed to open archive %s: %w", archivePath, err))
	}
	if closer, ok := fsys.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}

	if err := fsutil.EnsureDir(destDir); err != nil {
		return errors.Mark(errors.ErrArchiveExtractFailed, fmt.Errorf("failed to create destination directory: %w", err))
	}

	err = fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return am.extractEntry(fsys, path, destDir, d)
	})
	if err != nil {
		return errors.Mark(errors.ErrArchiveExtractFailed, fmt.Errorf("extracting %s: %w", filepath.Base(archivePath), err))
	}
	return nil
}

// Create builds an archive from sourceDir. A .zip or .nupkg target gets a
// zip container, anything else a gzip compressed tarball.
func (am *Manager) Create(ctx context.Context, sourceDir, archivePath string) error {
	absolutePath, err := filepath.Abs(sourceDir)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for source directory: %w", err)
	}

	archiveFiles, err := archives.FilesFromDisk(ctx, nil, map[string]string{
		absolutePath + string(os.PathSeparator): "",
	})
	if err != nil {
		return fmt.Errorf("failed to read files from disk: %w", err)
	}

	if err := fsutil.EnsureFileDir(archivePath); err != nil {
		return err
	}
	file, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", archivePath, err)
	}
	defer func() { _ = file.Close() }()

	if err := formatFor(archivePath).Archive(ctx, file, archiveFiles); err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	return file.Sync()
}

func formatFor(archivePath string) archives.Archiver {
	switch strings.ToLower(filepath.Ext(archivePath)) {
	case ".zip", ".nupkg":
		return archives.Zip{}
	default:
		return archives.CompressedArchive{
			Compression: archives.Gz{},
			Archival:    archives.Tar{},
		}
	}
}

// extractEntry writes a single archive entry below destDir.
func (am *Manager) extractEntry(fsys fs.FS, path, destDir string, d fs.DirEntry) error {
	if path == "." {
		return nil
	}

	targetPath, err := safeJoin(destDir, path)
	if err != nil {
		return err
	}

	if d.IsDir() {
		if err := fsutil.EnsureDir(targetPath); err != nil {
			return err
		}
		_, err = physicalDir(destDir, targetPath)
		return err
	}

	info, err := d.Info()
	if err != nil {
		return fmt.Errorf("failed to get file info for %s: %w", path, err)
	}
	if err := fsutil.EnsureFileDir(targetPath); err != nil {
		return fmt.Errorf("failed to create parent directory for %s: %w", path, err)
	}
	parent, err := physicalDir(destDir, filepath.Dir(targetPath))
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return am.writeSymlink(fsys, path, destDir, parent, targetPath)
	}
	return am.writeRegularFile(fsys, path, targetPath, info)
}

// safeJoin rejects entries that would land outside destDir.
func safeJoin(destDir, name string) (string, error) {
	target := filepath.Join(destDir, filepath.FromSlash(name))
	if !within(destDir, target) {
		return "", errors.Wrapf(errors.ErrInvalidPath, "archive entry %q escapes destination", name)
	}
	return target, nil
}

// within reports whether path is root or lies below it.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator)) && !filepath.IsAbs(rel)
}

// physicalDir resolves the symlinks in dir and checks the result is still
// inside destDir. Links written by earlier entries must not carry later
// entries out of the destination.
func physicalDir(destDir, dir string) (string, error) {
	root, err := filepath.EvalSymlinks(destDir)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return "", err
	}
	if !within(root, resolved) {
		return "", errors.Wrapf(errors.ErrInvalidPath, "%s escapes destination through a symlink", dir)
	}
	return resolved, nil
}

// linkTarget validates target for a link created in the physical directory
// parent and returns it in clean form.
func linkTarget(destDir, parent, target string) (string, error) {
	target = filepath.FromSlash(target)
	if target == "" || filepath.IsAbs(target) || filepath.VolumeName(target) != "" {
		return "", errors.Wrapf(errors.ErrInvalidPath, "symlink target %q is not relative", target)
	}
	root, err := filepath.EvalSymlinks(destDir)
	if err != nil {
		return "", err
	}
	clean := filepath.Clean(target)
	if !within(root, filepath.Join(parent, clean)) {
		return "", errors.Wrapf(errors.ErrInvalidPath, "symlink target %q escapes destination", target)
	}
	return clean, nil
}

func (am *Manager) writeSymlink(fsys fs.FS, path, destDir, parent, targetPath string) error {
	link, err := fsys.Open(path)
	if err != nil {
		return fmt.Errorf("failed to read symlink %s: %w", path, err)
	}
	defer func() { _ = link.Close() }()

	raw, err := io.ReadAll(link)
	if err != nil {
		return fmt.Errorf("failed to read symlink target %s: %w", path, err)
	}
	target, err := linkTarget(destDir, parent, string(raw))
	if err != nil {
		return errors.Wrapf(err, "symlink %q", path)
	}

	_ = os.Remove(targetPath)
	return os.Symlink(target, targetPath)
}

func (am *Manager) writeRegularFile(fsys fs.FS, path, targetPath string, info fs.FileInfo) error {
	srcFile, err := fsys.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open source file %s: %w", path, err)
	}
	defer func() { _ = srcFile.Close() }()

	perm := info.Mode().Perm()
	if perm == 0 {
		perm = fsutil.FileModeDefault
	}
	dstFile, err := fsutil.CreateFilePerm(targetPath, perm)
	if err != nil {
		return fmt.Errorf("failed to create destination file %s: %w", targetPath, err)
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		_ = dstFile.Close()
		return fmt.Errorf("failed to copy file %s: %w", path, err)
	}
	if err := dstFile.Close(); err != nil {
		return err
	}

	if !info.ModTime().IsZero() {
		_ = os.Chtimes(targetPath, info.ModTime(), info.ModTime())
	}
	return nil
}
