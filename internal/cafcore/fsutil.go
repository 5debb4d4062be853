package cafcore

import (
	"fmt"
	"os"
	"path/filepath"
)

// writeFileAtomic writes content to path via a temp-file-then-rename in
// the same directory, so readers never observe a partially written file.
func writeFileAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".caf-tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRepositoryError, err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath) //nolint:errcheck
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("%w: %v", ErrRepositoryError, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrRepositoryError, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("%w: %v", ErrRepositoryError, err)
	}
	success = true
	return nil
}

// readFileIfExists returns nil content (not an error) when path is absent.
func readFileIfExists(path string) ([]byte, error) {
	content, err := os.ReadFile(path) //nolint:gosec // repo-internal fixed path
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRepositoryError, err)
	}
	return content, nil
}

func removeFileIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", ErrRepositoryError, err)
	}
	return nil
}
