package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Local keeps staged uploads and finished output files on disk.
type Local struct {
	outputDir string
	uploadDir string
}

func NewLocal(outputDir, uploadDir string) (*Local, error) {
	if uploadDir == "" {
		uploadDir = os.TempDir()
	}
	for _, dir := range []string{outputDir, uploadDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return &Local{outputDir: outputDir, uploadDir: uploadDir}, nil
}

func (l *Local) OutputDir() string {
	return l.outputDir
}

// OutputPath is the deterministic location of a job's result file. ext
// includes the leading dot.
func (l *Local) OutputPath(jobID, ext string) string {
	return filepath.Join(l.outputDir, fmt.Sprintf("output_%s%s", jobID, strings.ToLower(ext)))
}

// StageUpload copies an uploaded file into the upload directory. The caller
// owns the returned path and removes it once the job is done.
func (l *Local) StageUpload(jobID, fileName string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	f, err := os.CreateTemp(l.uploadDir, fmt.Sprintf("upload_%s_*%s", jobID, ext))
	if err != nil {
		return "", fmt.Errorf("failed to create staging file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to stage upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to stage upload: %w", err)
	}
	return f.Name(), nil
}

// WriteAtomic writes to a temp file first and renames it into place, so a
// reader never sees a half-written output.
func WriteAtomic(path string, write func(w io.Writer) error) error {
	tmpFile := path + ".tmp"

	f, err := os.Create(tmpFile)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmpFile, err)
	}

	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmpFile)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to close %s: %w", tmpFile, err)
	}

	return os.Rename(tmpFile, path)
}

// Exists reports whether path is a regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
