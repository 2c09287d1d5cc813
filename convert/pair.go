package convert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/carbocation/pfx"
)

const (
	ExprSubdir = "expr"
	MaskSubdir = "mask"
)

// imageSuffixes are stripped, longest first, to find an image's stem.
var imageSuffixes = []string{".ome.tiff", ".ome.tif", ".tiff", ".tif"}

// Pair is an expression image and its segmentation mask.
type Pair struct {
	Name string
	Expr string
	Mask string
}

// PairResult describes a converted pair.
type PairResult struct {
	Pair      Pair
	OutputDir string
	Expr      ExprResult
	Mask      MaskResult
}

// ImageStem returns the file name without its TIFF suffix, and false for files
// that are not TIFFs.
func ImageStem(filename string) (string, bool) {
	base := filepath.Base(filename)
	lower := strings.ToLower(base)
	for _, suffix := range imageSuffixes {
		if !strings.HasSuffix(lower, suffix) {
			continue
		}
		if len(base) == len(suffix) {
			return "", false
		}
		return base[:len(base)-len(suffix)], true
	}
	return "", false
}

// FindPairs matches inputDir/expr/<stem>.ome.tiff with
// inputDir/mask/<stem>.ome.tiff. Every image must have a partner and stems
// must be unique within each folder. Pairs are sorted by name.
func FindPairs(inputDir string) ([]Pair, error) {
	exprs, err := stems(filepath.Join(inputDir, ExprSubdir))
	if err != nil {
		return nil, err
	}
	masks, err := stems(filepath.Join(inputDir, MaskSubdir))
	if err != nil {
		return nil, err
	}

	var unpaired []string
	out := make([]Pair, 0, len(exprs))
	for stem, exprPath := range exprs {
		maskPath, ok := masks[stem]
		if !ok {
			unpaired = append(unpaired, exprPath)
			continue
		}
		out = append(out, Pair{Name: stem, Expr: exprPath, Mask: maskPath})
	}
	for stem, maskPath := range masks {
		if _, ok := exprs[stem]; !ok {
			unpaired = append(unpaired, maskPath)
		}
	}

	if len(unpaired) > 0 {
		sort.Strings(unpaired)
		return nil, fmt.Errorf("%s: images without a partner: %s", inputDir, strings.Join(unpaired, ", "))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out, nil
}

func stems(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, pfx.Err(err)
	}

	out := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		stem, ok := ImageStem(entry.Name())
		if !ok {
			continue
		}
		if prev, dup := out[stem]; dup {
			return nil, fmt.Errorf("%s: %s and %s share the name %q", dir, filepath.Base(prev), entry.Name(), stem)
		}
		out[stem] = filepath.Join(dir, entry.Name())
	}

	return out, nil
}

// ConvertPair converts both images of p into outputDir, creating it if needed.
func (c *Converter) ConvertPair(ctx context.Context, p Pair, outputDir string) (PairResult, error) {
	res := PairResult{Pair: p, OutputDir: outputDir}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return res, pfx.Err(err)
	}

	var err error
	if res.Expr, err = c.ConvertExprImage(ctx, p.Expr, outputDir); err != nil {
		return res, err
	}
	if res.Mask, err = c.ConvertMaskImage(ctx, p.Mask, outputDir); err != nil {
		return res, err
	}

	return res, nil
}
