package pipeline

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ArtifactInfo summarizes a verified bundle directory
type ArtifactInfo struct {
	Path  string
	Files int
	Bytes int64
}

// VerifyArtifact checks that the bundle output directory exists and
// gathers file count and total size. The existence check alone decides
// success; the stats are informational.
func VerifyArtifact(path string) (ArtifactInfo, error) {
	info := ArtifactInfo{Path: path}

	stat, err := os.Stat(path)
	if err != nil || !stat.IsDir() {
		return info, fmt.Errorf("%w: %s", ErrArtifactMissing, path)
	}

	walkErr := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		info.Files++
		info.Bytes += fi.Size()
		return nil
	})
	if walkErr != nil {
		// The directory exists, so the build still counts as verified
		return info, nil
	}
	return info, nil
}
