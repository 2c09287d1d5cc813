// Package convert turns OME-TIFF expression and mask images into the squeezed
// expr.tiff, mask.tiff and markers.txt files consumed by the downstream
// pipeline.
package convert

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"

	"cloud.google.com/go/storage"
	"github.com/carbocation/omeconvert"
	"github.com/carbocation/omeconvert/channelmap"
	"github.com/carbocation/omeconvert/ometiff"
	"github.com/carbocation/pfx"
)

const (
	ExprImageFilename = "expr.tiff"
	MaskImageFilename = "mask.tiff"
	MarkersFilename   = "markers.txt"
)

// Converter holds what every conversion needs. A Converter is safe for
// concurrent use.
type Converter struct {
	Mapper *channelmap.Mapper

	// Storage is only needed for gs:// inputs.
	Storage *storage.Client

	Log *log.Logger
}

// New returns a Converter logging to the standard logger.
func New(mapper *channelmap.Mapper, client *storage.Client) *Converter {
	return &Converter{
		Mapper:  mapper,
		Storage: client,
		Log:     log.Default(),
	}
}

// ExprResult describes a converted expression image.
type ExprResult struct {
	Source    string
	OutputDir string
	Channels  channelmap.Result
	Shape     []int
}

// MaskResult describes a converted mask image.
type MaskResult struct {
	Source       string
	OutputDir    string
	ChannelIndex int
	Shape        []int
}

func (c *Converter) logf(format string, args ...interface{}) {
	if c.Log != nil {
		c.Log.Printf(format, args...)
	}
}

// openImage returns the image's channel names and its full pixel array.
func (c *Converter) openImage(path string) ([]string, *ometiff.PixelArray, error) {
	f, size, err := omeconvert.MaybeOpenFromGoogleStorage(path, c.Storage)
	if err != nil {
		return nil, nil, pfx.Err(err)
	}
	defer f.Close()

	rdr, err := ometiff.NewReader(f, size)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}

	channels, err := rdr.ChannelNames()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}

	arr, err := rdr.ReadArray()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}

	return channels, arr, nil
}

// ConvertExprImage writes markers.txt and expr.tiff for imagePath into
// outputDir. The image must squeeze to exactly three dimensions (CYX);
// otherwise a *ShapeError is returned and nothing is written.
func (c *Converter) ConvertExprImage(ctx context.Context, imagePath, outputDir string) (ExprResult, error) {
	res := ExprResult{Source: imagePath, OutputDir: outputDir}

	if err := ctx.Err(); err != nil {
		return res, err
	}

	channels, arr, err := c.openImage(imagePath)
	if err != nil {
		return res, err
	}

	res.Channels = c.Mapper.MapChannelNames(channels)

	squeezed := arr.Squeeze()
	res.Shape = squeezed.Shape
	if squeezed.NDim() != 3 {
		return res, &ShapeError{Path: imagePath, Shape: squeezed.Shape}
	}
	if n := len(res.Channels.NewChannels); n != squeezed.Shape[0] {
		c.logf("%s: %d channel names but %d planes along the channel axis\n", imagePath, n, squeezed.Shape[0])
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}

	if err := omeconvert.WriteFileAtomic(filepath.Join(outputDir, MarkersFilename), func(w io.Writer) error {
		for _, name := range res.Channels.NewChannels {
			if _, err := fmt.Fprintln(w, name); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return res, pfx.Err(err)
	}

	if err := omeconvert.WriteFileAtomic(filepath.Join(outputDir, ExprImageFilename), func(w io.Writer) error {
		return ometiff.Encode(w, squeezed, nil)
	}); err != nil {
		return res, pfx.Err(err)
	}

	c.logf("%s: wrote %d channels of shape %v to %s (%d renamed, %d matched, %d unmatched, %d not present)\n",
		imagePath, len(res.Channels.NewChannels), squeezed.Shape, outputDir,
		len(res.Channels.Differences), len(res.Channels.Matched), len(res.Channels.Unmatched), len(res.Channels.NotPresent))

	return res, nil
}

// CellChannelIndex returns the position of the first channel named exactly
// "cell" or "cells", or -1.
func CellChannelIndex(channels []string) int {
	for i, name := range channels {
		if name == "cell" || name == "cells" {
			return i
		}
	}
	return -1
}

// ConvertMaskImage extracts the cell plane of a segmentation mask into
// outputDir/mask.tiff. Mask channel names are used as-is.
func (c *Converter) ConvertMaskImage(ctx context.Context, imagePath, outputDir string) (MaskResult, error) {
	res := MaskResult{Source: imagePath, OutputDir: outputDir, ChannelIndex: -1}

	if err := ctx.Err(); err != nil {
		return res, err
	}

	channels, arr, err := c.openImage(imagePath)
	if err != nil {
		return res, err
	}

	idx := CellChannelIndex(channels)
	if idx < 0 {
		return res, &NotFoundError{Path: imagePath, Channels: channels}
	}
	res.ChannelIndex = idx

	squeezed := arr.Squeeze()
	if squeezed.NDim() < 3 {
		// A single-channel mask squeezes straight to its plane.
		if idx != 0 || squeezed.NDim() != 2 {
			return res, &ShapeError{Path: imagePath, Shape: squeezed.Shape}
		}
	} else {
		if squeezed, err = squeezed.Index(idx); err != nil {
			return res, fmt.Errorf("%s: cell channel: %w", imagePath, err)
		}
	}
	res.Shape = squeezed.Shape

	if err := ctx.Err(); err != nil {
		return res, err
	}

	if err := omeconvert.WriteFileAtomic(filepath.Join(outputDir, MaskImageFilename), func(w io.Writer) error {
		return ometiff.EncodePlane(w, squeezed)
	}); err != nil {
		return res, pfx.Err(err)
	}

	c.logf("%s: wrote channel %d (%s) of shape %v to %s\n", imagePath, idx, channels[idx], squeezed.Shape, outputDir)

	return res, nil
}
