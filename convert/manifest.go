package convert

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/carbocation/omeconvert"
	"github.com/carbocation/pfx"
)

const ManifestFilename = "manifest.json"

// ManifestEntry is a CWL-style Directory object.
type ManifestEntry struct {
	Class    string `json:"class"`
	Path     string `json:"path"`
	Basename string `json:"basename"`
}

// WriteManifest writes one Directory entry per directory, sorted by basename,
// with absolute paths.
func WriteManifest(path string, dirs []string) error {
	entries := make([]ManifestEntry, 0, len(dirs))
	for _, dir := range dirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return pfx.Err(err)
		}
		entries = append(entries, ManifestEntry{
			Class:    "Directory",
			Path:     abs,
			Basename: filepath.Base(abs),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Basename < entries[j].Basename })

	return omeconvert.WriteFileAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	})
}

// ReadManifest reads a manifest written by WriteManifest.
func ReadManifest(path string) ([]ManifestEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pfx.Err(err)
	}
	defer f.Close()

	var out []ManifestEntry
	if err := json.NewDecoder(f).Decode(&out); err != nil {
		return nil, pfx.Err(err)
	}

	return out, nil
}
