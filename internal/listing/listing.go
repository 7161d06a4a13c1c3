// Package listing enumerates the viewable log files in a directory.
package listing

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tripwire/logviewer/internal/inspect"
)

// Entry describes one listed file. LastModified is in Unix milliseconds.
type Entry struct {
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	LastModified int64  `json:"lastModified"`
	Readable     bool   `json:"readable"`
}

// List returns the readable regular files directly inside dir whose names
// end in one of exts (case-insensitive), most recently modified first.
func List(dir string, exts []string) ([]Entry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing: read %q: %w", dir, err)
	}

	files := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !matches(e.Name(), exts) {
			continue
		}
		snap := inspect.Stat(filepath.Join(dir, e.Name()))
		if !snap.IsRegular || !snap.Readable {
			continue
		}
		files = append(files, Entry{
			Name:         e.Name(),
			Size:         snap.Size,
			LastModified: snap.ModTime.UnixMilli(),
			Readable:     true,
		})
	}

	sort.SliceStable(files, func(i, j int) bool {
		return files[i].LastModified > files[j].LastModified
	})
	return files, nil
}

func matches(name string, exts []string) bool {
	lower := strings.ToLower(name)
	for _, ext := range exts {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}
