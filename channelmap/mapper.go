// Package channelmap reconciles raw instrument channel names with the
// canonical marker names used downstream, and classifies the result against a
// reference panel of known channels.
package channelmap

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/carbocation/pfx"
	"github.com/gocarina/gocsv"
	"github.com/spf13/afero"
)

// Mapping maps raw channel names to canonical names.
type Mapping map[string]string

// Mapper renames channels and classifies them. It is immutable once built and
// safe for concurrent use.
type Mapper struct {
	mapping Mapping
	known   Set
	dir     string
}

// Result is the outcome of mapping one image's channel list.
type Result struct {
	// NewChannels has the same length and order as the input.
	NewChannels []string

	// Differences holds every (old, new) pair where renaming changed a name.
	Differences RenameSet

	// Matched are mapped names found in the reference panel.
	Matched Set

	// Unmatched are mapped names missing from the reference panel.
	Unmatched Set

	// NotPresent are reference panel names this image never produced.
	NotPresent Set
}

// New returns a Mapper over copies of mapping and known.
func New(mapping Mapping, known Set) *Mapper {
	m := &Mapper{
		mapping: make(Mapping, len(mapping)),
		known:   make(Set, len(known)),
	}
	for k, v := range mapping {
		m.mapping[k] = v
	}
	for k := range known {
		m.known[k] = struct{}{}
	}
	return m
}

// Load locates the data directory among candidates and reads both reference
// files from it.
func Load(fs afero.Fs, candidates []string) (*Mapper, error) {
	dir, err := FindDataDir(fs, candidates)
	if err != nil {
		return nil, err
	}

	mapping, err := loadFile(fs, filepath.Join(dir, MappingFilename), LoadMapping)
	if err != nil {
		return nil, err
	}

	known, err := loadFile(fs, filepath.Join(dir, KnownChannelsFilename), LoadKnown)
	if err != nil {
		return nil, err
	}

	m := New(mapping, known)
	m.dir = dir

	return m, nil
}

func loadFile[T any](fs afero.Fs, path string, parse func(io.Reader) (T, error)) (T, error) {
	var zero T

	f, err := fs.Open(path)
	if err != nil {
		return zero, pfx.Err(err)
	}
	defer f.Close()

	out, err := parse(f)
	if err != nil {
		return zero, pfx.Err(fmt.Errorf("%s: %w", path, err))
	}

	return out, nil
}

type mappingRow struct {
	Raw       string
	Canonical string
}

// LoadMapping reads a headerless two-column CSV of raw,canonical names. Names
// are kept exactly as written. When a raw name appears more than once, the
// last row wins.
func LoadMapping(r io.Reader) (Mapping, error) {
	rows := []*mappingRow{}
	if err := gocsv.UnmarshalWithoutHeaders(r, &rows); err != nil {
		return nil, err
	}

	out := make(Mapping, len(rows))
	for _, row := range rows {
		out[row.Raw] = row.Canonical
	}

	return out, nil
}

// LoadKnown reads one channel name per line. Names are trimmed and blank lines
// are skipped.
func LoadKnown(r io.Reader) (Set, error) {
	out := make(Set)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name == "" {
			continue
		}
		out[name] = struct{}{}
	}

	return out, scanner.Err()
}

// Dir is the data directory the Mapper was loaded from, if any.
func (m *Mapper) Dir() string {
	return m.dir
}

// Known returns a copy of the reference panel.
func (m *Mapper) Known() Set {
	out := make(Set, len(m.known))
	for k := range m.known {
		out[k] = struct{}{}
	}
	return out
}

// MapChannelName returns the canonical name for name. Unknown names pass
// through unchanged. DAPI channels lose any round suffix, so "DAPI-1" becomes
// "DAPI".
func (m *Mapper) MapChannelName(name string) string {
	mapped, ok := m.mapping[name]
	if !ok {
		mapped = name
	}

	if len(mapped) >= 4 && strings.EqualFold(mapped[:4], "dapi") {
		mapped, _, _ = strings.Cut(mapped, "-")
	}

	return mapped
}

// MapChannelNames maps names position by position and classifies the
// distinct results against the reference panel.
func (m *Mapper) MapChannelNames(names []string) Result {
	res := Result{
		NewChannels: make([]string, len(names)),
		Differences: make(RenameSet),
	}

	for i, name := range names {
		mapped := m.MapChannelName(name)
		res.NewChannels[i] = mapped
		if mapped != name {
			res.Differences[Rename{Old: name, New: mapped}] = struct{}{}
		}
	}

	distinct := NewSet(res.NewChannels...)
	res.Matched = distinct.Intersect(m.known)
	res.Unmatched = distinct.Subtract(m.known)
	res.NotPresent = m.known.Subtract(distinct)

	return res
}
