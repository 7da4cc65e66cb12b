package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileOperations provides file system utilities
type FileOperations struct{}

// NewFileOperations creates a new FileOperations instance
func NewFileOperations() *FileOperations {
	return &FileOperations{}
}

// EnsureDir creates the parent directory of path if it doesn't exist
func (f *FileOperations) EnsureDir(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, 0755)
}

// FileExists checks if a file exists
func (f *FileOperations) FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// AtomicRename performs an atomic file rename operation
func (f *FileOperations) AtomicRename(oldPath, newPath string) error {
	return os.Rename(oldPath, newPath)
}

// PartPath returns the temporary path used while writing outputPath
func (f *FileOperations) PartPath(outputPath string) string {
	return outputPath + ".part"
}

// WriteFileAtomic writes data to a .part file next to outputPath and renames
// it into place, so readers never observe a half-written result.
func (f *FileOperations) WriteFileAtomic(outputPath string, data []byte) (err error) {
	if err := f.EnsureDir(outputPath); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	partPath := f.PartPath(outputPath)
	file, err := os.OpenFile(partPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create partial file: %w", err)
	}
	defer func() {
		if err != nil {
			os.Remove(partPath)
		}
	}()

	if _, err = file.Write(data); err != nil {
		file.Close()
		return fmt.Errorf("failed to write partial file: %w", err)
	}
	if err = file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("failed to sync partial file: %w", err)
	}
	if err = file.Close(); err != nil {
		return fmt.Errorf("failed to close partial file: %w", err)
	}

	if err = f.AtomicRename(partPath, outputPath); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", partPath, err)
	}
	return nil
}

// CleanupPartial removes a leftover .part file for outputPath, if any
func (f *FileOperations) CleanupPartial(outputPath string) error {
	err := os.Remove(f.PartPath(outputPath))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
