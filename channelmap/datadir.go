package channelmap

import (
	"os"
	"path/filepath"

	"github.com/kardianos/osext"
	"github.com/spf13/afero"
)

const (
	// MappingFilename is the headerless raw,canonical CSV.
	MappingFilename = "channel_name_mapping.csv"

	// KnownChannelsFilename lists the reference panel, one name per line.
	KnownChannelsFilename = "known_channels.txt"

	// DataDirEnv, when set, names the first candidate data directory.
	DataDirEnv = "OMECONVERT_DATA_DIR"
)

// DefaultCandidates lists where the reference data is looked for when nothing
// else is configured, in priority order.
func DefaultCandidates() []string {
	var out []string

	if dir := os.Getenv(DataDirEnv); dir != "" {
		out = append(out, dir)
	}

	out = append(out, "data")

	if folder, err := osext.ExecutableFolder(); err == nil {
		out = append(out,
			filepath.Join(folder, "data"),
			filepath.Join(folder, "..", "share", "omeconvert"),
		)
	}

	return append(out, "/opt/omeconvert/data")
}

// FindDataDir returns the first candidate that contains both reference files.
func FindDataDir(fs afero.Fs, candidates []string) (string, error) {
	for _, dir := range candidates {
		if isFile(fs, filepath.Join(dir, MappingFilename)) && isFile(fs, filepath.Join(dir, KnownChannelsFilename)) {
			return dir, nil
		}
	}

	tried := make([]string, len(candidates))
	copy(tried, candidates)

	return "", &ConfigurationError{Candidates: tried}
}

func isFile(fs afero.Fs, path string) bool {
	info, err := fs.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
