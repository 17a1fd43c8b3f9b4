package files_manager

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"psd2png/contracts"
)

type Candidate = contracts.Candidate

// ErrNotDirectory is returned when the batch root exists but is a file.
var ErrNotDirectory = errors.New("not a directory")

// CheckRoot verifies that root exists and is a readable directory.
func CheckRoot(root string) error {
	if root == "" {
		return fmt.Errorf("root directory required")
	}
	stat, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("root directory: %w", err)
	}
	if !stat.IsDir() {
		return fmt.Errorf("root directory %s: %w", root, ErrNotDirectory)
	}
	if _, err := os.ReadDir(root); err != nil {
		return fmt.Errorf("root directory: %w", err)
	}
	return nil
}

// OutputPath replaces the extension of path with targetExt.
func OutputPath(path, targetExt string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + targetExt
}

// IsCandidate reports whether name carries the source extension exactly.
// ".PSD" and ".psb" are not candidates.
func IsCandidate(name string) bool {
	return filepath.Ext(name) == contracts.SourceExtension
}

// FindCandidates walks root recursively and returns every regular .psd file
// with the output path it converts to. Symbolic links are not followed.
// Subtrees that cannot be read are skipped; only a root that cannot be
// walked is an error.
func FindCandidates(root, targetExt string) ([]Candidate, error) {
	if err := CheckRoot(root); err != nil {
		return nil, err
	}

	var candidates []Candidate
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			if entry != nil && entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() || !IsCandidate(entry.Name()) {
			return nil
		}
		var size int64
		if info, err := entry.Info(); err == nil {
			size = info.Size()
		}
		candidates = append(candidates, Candidate{
			Path:       path,
			OutputPath: OutputPath(path, targetExt),
			Size:       size,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error while scanning directory: %w", err)
	}
	return candidates, nil
}

// WriteFileAtomic writes data to a temporary file beside path and renames it
// into place, so readers never observe a partial file. An existing file at
// path is replaced.
func WriteFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Chmod(0o644); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
