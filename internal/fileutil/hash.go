package fileutil

import (
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/zeebo/xxh3"

	"github.com/skelly-dev/graphloom/internal/ignore"
)

// HashFile returns the xxh3 digest of a file's bytes.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := xxh3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes returns the same digest as HashFile for in-memory content.
func HashBytes(content []byte) string {
	return fmt.Sprintf("%016x", xxh3.Hash(content))
}

// ScanFileHashes walks rootPath and hashes every regular file the ignore
// rules keep. Keys are slash-separated paths relative to rootPath. Files
// larger than maxBytes are skipped when maxBytes > 0.
func ScanFileHashes(rootPath string, ignoreRules []string, maxBytes int64) (map[string]string, error) {
	hashes := make(map[string]string)
	ignoreMatcher := ignore.NewMatcher(ignoreRules)

	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		relPath, err := filepath.Rel(rootPath, path)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}

		if ignoreMatcher.ShouldIgnore(relPath, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		if maxBytes > 0 {
			info, err := d.Info()
			if err != nil {
				return err
			}
			if info.Size() > maxBytes {
				return nil
			}
		}

		hash, err := HashFile(path)
		if err != nil {
			return err
		}
		hashes[filepath.ToSlash(relPath)] = hash

		return nil
	})

	return hashes, err
}
