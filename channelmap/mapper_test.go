package channelmap

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenarioMapper() *Mapper {
	return New(
		Mapping{"CD3e": "CD3", "DAPI1": "DAPI-1"},
		NewSet("CD3", "DAPI", "CD20"),
	)
}

func TestMapChannelNameIdentityFallback(t *testing.T) {
	m := scenarioMapper()
	for _, name := range []string{"Unknown1", "CD20", "", "cd3e", "Ki-67"} {
		assert.Equal(t, name, m.MapChannelName(name))
	}
}

func TestMapChannelNameDAPI(t *testing.T) {
	m := New(Mapping{"Hoechst": "DAPI-02"}, nil)

	cases := map[string]string{
		"DAPI-5":       "DAPI",
		"dapi-1-extra": "dapi",
		"Dapi":         "Dapi",
		"DAPI":         "DAPI",
		"DAPI1":        "DAPI1",
		"Hoechst":      "DAPI",
		"xDAPI-1":      "xDAPI-1",
	}
	for in, want := range cases {
		assert.Equal(t, want, m.MapChannelName(in), in)
	}
}

func TestMapChannelNamesScenario(t *testing.T) {
	res := scenarioMapper().MapChannelNames([]string{"CD3e", "DAPI1", "CD20", "Unknown1"})

	assert.Equal(t, []string{"CD3", "DAPI", "CD20", "Unknown1"}, res.NewChannels)
	assert.Equal(t, []Rename{{"CD3e", "CD3"}, {"DAPI1", "DAPI"}}, res.Differences.Sorted())
	assert.Equal(t, []string{"CD20", "CD3", "DAPI"}, res.Matched.Sorted())
	assert.Equal(t, []string{"Unknown1"}, res.Unmatched.Sorted())
	assert.Empty(t, res.NotPresent)
}

func TestMapChannelNamesPreservesDuplicates(t *testing.T) {
	res := scenarioMapper().MapChannelNames([]string{"CD3e", "CD20", "CD3e"})

	assert.Equal(t, []string{"CD3", "CD20", "CD3"}, res.NewChannels)
	assert.Len(t, res.Differences, 1)
	assert.Equal(t, []string{"DAPI"}, res.NotPresent.Sorted())
}

func TestMapChannelNamesClassificationInvariants(t *testing.T) {
	m := scenarioMapper()
	inputs := [][]string{
		nil,
		{"CD3e"},
		{"X", "Y", "X"},
		{"DAPI-3", "DAPI-4", "CD20", "CD45"},
		{"CD3", "DAPI", "CD20"},
	}

	for _, in := range inputs {
		res := m.MapChannelNames(in)
		require.Len(t, res.NewChannels, len(in))

		seen := NewSet(res.NewChannels...)
		union := NewSet()
		for k := range res.Matched {
			union[k] = struct{}{}
			assert.False(t, res.Unmatched.Has(k), "%q both matched and unmatched", k)
		}
		for k := range res.Unmatched {
			union[k] = struct{}{}
		}
		assert.Equal(t, seen.Sorted(), union.Sorted())
		assert.Equal(t, m.Known().Subtract(seen).Sorted(), res.NotPresent.Sorted())
	}
}

func TestMapChannelNamesCanonicalRoundTrip(t *testing.T) {
	res := scenarioMapper().MapChannelNames([]string{"CD3", "DAPI", "CD20"})
	assert.Empty(t, res.Differences)
	assert.Empty(t, res.Unmatched)
	assert.Empty(t, res.NotPresent)
}

func TestLoadMappingLastWins(t *testing.T) {
	m, err := LoadMapping(strings.NewReader("CD3e,CD3\nPanCK,Pan-Cytokeratin\nCD3e,CD3E\n"))
	require.NoError(t, err)
	assert.Equal(t, Mapping{"CD3e": "CD3E", "PanCK": "Pan-Cytokeratin"}, m)
}

func TestLoadMappingKeepsWhitespace(t *testing.T) {
	m, err := LoadMapping(strings.NewReader("CD3e ,CD3\nCD20,CD20 \n"))
	require.NoError(t, err)
	assert.Equal(t, Mapping{"CD3e ": "CD3", "CD20": "CD20 "}, m)

	mapper := &Mapper{mapping: m, known: Set{}}
	assert.Equal(t, "CD3e", mapper.MapChannelName("CD3e"))
	assert.Equal(t, "CD3", mapper.MapChannelName("CD3e "))
}

func TestLoadKnownSkipsBlankLines(t *testing.T) {
	s, err := LoadKnown(strings.NewReader("CD3\n  CD20  \n\nDAPI\n\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"CD20", "CD3", "DAPI"}, s.Sorted())
}

func TestFindDataDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/a/"+MappingFilename, []byte("x,y\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/b/"+MappingFilename, []byte("x,y\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/b/"+KnownChannelsFilename, []byte("y\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/c/"+MappingFilename, []byte("x,y\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/c/"+KnownChannelsFilename, []byte("y\n"), 0o644))

	dir, err := FindDataDir(fs, []string{"/missing", "/a", "/b", "/c"})
	require.NoError(t, err)
	assert.Equal(t, "/b", dir)
}

func TestFindDataDirListsEveryCandidate(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(filepath.Join("/x", KnownChannelsFilename), 0o755))

	candidates := []string{"/nope", "/x", "relative/dir"}
	_, err := FindDataDir(fs, candidates)

	var cerr *ConfigurationError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, candidates, cerr.Candidates)
	for _, c := range candidates {
		assert.Contains(t, err.Error(), c)
	}
	assert.Contains(t, err.Error(), "data directory not found")
}

func TestLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/"+MappingFilename, []byte("CD3e,CD3\nDAPI1,DAPI-1\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/data/"+KnownChannelsFilename, []byte("CD3\nDAPI\nCD20\n"), 0o644))

	m, err := Load(fs, []string{"/data"})
	require.NoError(t, err)
	assert.Equal(t, "/data", m.Dir())
	assert.Equal(t, "CD3", m.MapChannelName("CD3e"))
	assert.Equal(t, "DAPI", m.MapChannelName("DAPI1"))
	assert.Equal(t, []string{"CD20", "CD3", "DAPI"}, m.Known().Sorted())
}

func TestWriteReport(t *testing.T) {
	res := scenarioMapper().MapChannelNames([]string{"CD3e", "DAPI1", "Unknown1"})

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, res))

	out := buf.String()
	assert.Contains(t, out, "CD3e -> CD3")
	assert.Contains(t, out, "DAPI1 -> DAPI")
	assert.Contains(t, out, "Matched (2)")
	assert.Contains(t, out, "Unmatched (1)")
	assert.Contains(t, out, "Not present (1)")
	assert.Contains(t, out, "CD20")
}
