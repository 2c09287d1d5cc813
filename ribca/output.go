package ribca

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/carbocation/omeconvert"
	"github.com/carbocation/omeconvert/store"
	"github.com/carbocation/pfx"
)

const (
	AnnotationsTable = "annotations"
	VotesTable       = "votes"
)

// ArchiveSubdir is where raw annotations are archived when no archive
// directory is given.
const ArchiveSubdir = "archive"

// OutputResult describes what ConvertOutput wrote.
type OutputResult struct {
	ImageName   string
	StorePath   string
	CSVPaths    []string
	ArchivePath string

	Annotations *Table
	Votes       *Votes
}

// StoreTable converts t for storage under name.
func (t *Table) StoreTable(name string) *store.Table {
	out := &store.Table{
		Name:      name,
		IndexName: t.IndexName,
		Index:     t.Index,
		Columns:   t.Columns,
		Rows:      make([][]interface{}, len(t.Cells)),
	}
	for i, row := range t.Cells {
		out.Rows[i] = make([]interface{}, len(row))
		for j, cell := range row {
			out.Rows[i][j] = cell
		}
	}
	return out
}

// StoreTable converts v for storage under name.
func (v *Votes) StoreTable(name string) *store.Table {
	out := &store.Table{
		Name:    name,
		Index:   v.Index,
		Columns: v.Columns,
		Rows:    make([][]interface{}, len(v.Values)),
	}
	for i, row := range v.Values {
		out.Rows[i] = make([]interface{}, len(row))
		for j, cell := range row {
			out.Rows[i][j] = cell
		}
	}
	return out
}

// ConvertOutput reads the classifier output in resultsDir and writes it to
// outputDir/<image>.sqlite with "annotations", "votes" and "metadata" tables,
// where <image> comes from image_name.txt. With opts.CSV the two tables are
// also written as <image>_annotations.csv and <image>_votes.csv. The raw
// annotation file is always copied to archiveDir/<image>.csv; an empty
// archiveDir means outputDir/archive.
func ConvertOutput(resultsDir, outputDir, archiveDir string, opts Options) (*OutputResult, error) {
	annotations, votes, err := ReadOutput(resultsDir, opts)
	if err != nil {
		return nil, err
	}

	name, err := ReadImageName(resultsDir)
	if err != nil {
		return nil, err
	}

	if archiveDir == "" {
		archiveDir = filepath.Join(outputDir, ArchiveSubdir)
	}

	res := &OutputResult{
		ImageName:   name,
		Annotations: annotations,
		Votes:       votes,
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, pfx.Err(err)
	}

	tables := []*store.Table{
		annotations.StoreTable(AnnotationsTable),
		votes.StoreTable(VotesTable),
	}

	absResults, err := filepath.Abs(resultsDir)
	if err != nil {
		return nil, pfx.Err(err)
	}
	res.StorePath, err = writeStore(filepath.Join(outputDir, name+".sqlite"), tables, map[string]string{
		"image_name":  name,
		"results_dir": absResults,
	})
	if err != nil {
		return nil, err
	}

	if opts.CSV {
		for _, t := range tables {
			path := filepath.Join(outputDir, name+"_"+t.Name+".csv")
			if err := omeconvert.WriteFileAtomic(path, func(w io.Writer) error {
				return store.WriteCSV(w, t)
			}); err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			res.CSVPaths = append(res.CSVPaths, path)
		}
	}

	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return nil, pfx.Err(err)
	}
	res.ArchivePath = filepath.Join(archiveDir, name+".csv")
	if err := omeconvert.CopyFileAtomic(filepath.Join(resultsDir, AnnotationFilename), res.ArchivePath); err != nil {
		return nil, pfx.Err(err)
	}

	logger := opts.logger()
	logger.Printf("%s: wrote %d annotated cells and %d vote rows to %s\n", name, annotations.Len(), votes.Len(), res.StorePath)

	sums, err := Summarize(annotations)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := WriteSummaries(&buf, sums); err != nil {
		return nil, err
	}
	logger.Printf("%s: annotation summary:\n%s", name, buf.String())

	return res, nil
}

// writeStore publishes tables and metadata at path and returns where the
// store ended up.
func writeStore(path string, tables []*store.Table, metadata map[string]string) (string, error) {
	st, err := store.Create(path)
	if err != nil {
		return "", err
	}

	for _, t := range tables {
		if err := st.WriteTable(t); err != nil {
			st.Abort()
			return "", fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := st.WriteMetadata(metadata); err != nil {
		st.Abort()
		return "", fmt.Errorf("%s: %w", path, err)
	}

	if err := st.Close(); err != nil {
		return "", err
	}
	return st.Path(), nil
}
