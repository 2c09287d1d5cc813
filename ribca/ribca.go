// Package ribca reads the flat-file output of the RIBCA cell-typing classifier
// (annotations, confidence scores, thresholds and votes) and converts it into
// indexed tables.
package ribca

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/carbocation/omeconvert"
	"github.com/carbocation/pfx"
)

const (
	AnnotationFilename = "headless_annotation_0.txt"
	ConfidenceFilename = "headless_confidence_0.txt"
	ThresholdsFilename = "headless_confidence_thresholds_0.txt"
	VotesFilename      = "headless_votes_0.txt"
	ImageNameFilename  = "image_name.txt"

	// CellTypeColumn is the categorical label column of the annotation file.
	CellTypeColumn = "RIBCA_CellType"
)

// Options controls reading and converting classifier output.
type Options struct {
	// Strict requires the four files to describe exactly the same cells.
	Strict bool

	// CSV also writes the converted tables as CSV files.
	CSV bool

	// Log receives warnings and progress. Nil means the standard logger.
	Log *log.Logger
}

func (o Options) logger() *log.Logger {
	if o.Log != nil {
		return o.Log
	}
	return log.Default()
}

// MismatchError reports files whose cell ids differ. Missing maps each file
// name to how many ids seen in some other file it lacks.
type MismatchError struct {
	Dir     string
	Missing map[string]int
}

func (e *MismatchError) Error() string {
	names := make([]string, 0, len(e.Missing))
	for name := range e.Missing {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s lacks %d", name, e.Missing[name])
	}

	return fmt.Sprintf("%s: cell ids differ between result files: %s", e.Dir, strings.Join(parts, ", "))
}

func readFile[T any](dir, name string, read func(io.Reader) (T, error)) (T, error) {
	var zero T

	path := filepath.Join(dir, name)
	f, err := omeconvert.OpenMaybeCompressed(path)
	if err != nil {
		return zero, pfx.Err(err)
	}
	defer f.Close()

	out, err := read(f)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", path, err)
	}

	return out, nil
}

// ReadOutput reads the classifier output in dir. The annotation, confidence
// and threshold tables are joined on cell id; the votes are returned as their
// own table. Both are sorted by cell id.
func ReadOutput(dir string, opts Options) (*Table, *Votes, error) {
	names := []string{AnnotationFilename, ConfidenceFilename, ThresholdsFilename}
	tables := make([]*Table, len(names))
	for i, name := range names {
		t, err := readFile(dir, name, ReadTable)
		if err != nil {
			return nil, nil, err
		}
		tables[i] = t
	}

	votes, err := readFile(dir, VotesFilename, ReadVotes)
	if err != nil {
		return nil, nil, err
	}

	ids := map[string][]int64{VotesFilename: votes.Index}
	for i, name := range names {
		ids[name] = tables[i].Index
	}
	if missing := missingIDs(ids); len(missing) > 0 {
		mismatch := &MismatchError{Dir: dir, Missing: missing}
		if opts.Strict {
			return nil, nil, mismatch
		}
		opts.logger().Printf("Warning: %v\n", mismatch)
	}

	return Join(tables...), votes, nil
}

// missingIDs counts, per file, the ids from the union of all files that the
// file lacks. Files missing nothing are left out.
func missingIDs(ids map[string][]int64) map[string]int {
	union := make(map[int64]struct{})
	for _, list := range ids {
		for _, id := range list {
			union[id] = struct{}{}
		}
	}

	out := make(map[string]int)
	for name, list := range ids {
		if n := len(union) - len(list); n > 0 {
			out[name] = n
		}
	}

	return out
}

// ReadImageName returns the trimmed first line of dir/image_name.txt.
func ReadImageName(dir string) (string, error) {
	path := filepath.Join(dir, ImageNameFilename)
	f, err := os.Open(path)
	if err != nil {
		return "", pfx.Err(err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var name string
	if scanner.Scan() {
		name = strings.TrimSpace(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return "", pfx.Err(err)
	}

	if name == "" {
		return "", fmt.Errorf("%s: no image name", path)
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%s: %q cannot be used as a file name", path, name)
	}

	return name, nil
}
