package upload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/keagan/reelscope/pkg/util"
)

// TempPath returns a collision-free path in dir for an upload named
// filename. The directory is created if needed.
func TempPath(dir, filename string) (string, error) {
	if err := util.EnsureDir(dir); err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	return filepath.Join(dir, uuid.NewString()+"_"+filepath.Base(filename)), nil
}

// Store copies r to a fresh temp path and returns it with the number of
// bytes written. At most limit bytes are accepted; a larger body is
// removed and reported as ErrFileTooLarge.
func Store(dir, filename string, r io.Reader, limit int64) (string, int64, error) {
	path, err := TempPath(dir, filename)
	if err != nil {
		return "", 0, err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("create upload file: %w", err)
	}

	n, err := io.Copy(f, io.LimitReader(r, limit+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		Cleanup(path)
		return "", n, fmt.Errorf("write upload: %w", err)
	}
	if n > limit {
		Cleanup(path)
		return "", n, invalid(ErrFileTooLarge, "File size exceeds %dMB limit.", limit/(1024*1024))
	}
	return path, n, nil
}

// Cleanup removes a stored upload, ignoring missing files.
func Cleanup(path string) {
	util.CleanupFiles(path)
}
