package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"slices"
)

// HashFile returns the hex SHA-256 of a file's content.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashFiles returns a combined hash of several files: the SHA-256 over
// each path followed by its content hash, in sorted path order.
func HashFiles(paths []string) (string, error) {
	sorted := make([]string, len(paths))
	for i, p := range paths {
		sorted[i] = filepath.Clean(p)
	}
	slices.Sort(sorted)

	h := sha256.New()
	for _, p := range sorted {
		fh, err := HashFile(p)
		if err != nil {
			return "", err
		}
		io.WriteString(h, p)
		io.WriteString(h, fh)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
