package ometiff

import (
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

// ErrNotOME is returned when an image carries no OME-XML description.
var ErrNotOME = errors.New("image description is not OME-XML")

// Metadata is the subset of OME-XML needed to name channels and lay out the
// pixel planes.
type Metadata struct {
	XMLName xml.Name `xml:"OME"`
	Images  []Image  `xml:"Image"`
}

type Image struct {
	ID     string `xml:"ID,attr"`
	Name   string `xml:"Name,attr"`
	Pixels Pixels `xml:"Pixels"`
}

type Pixels struct {
	DimensionOrder string    `xml:"DimensionOrder,attr"`
	Type           string    `xml:"Type,attr"`
	SizeX          int       `xml:"SizeX,attr"`
	SizeY          int       `xml:"SizeY,attr"`
	SizeZ          int       `xml:"SizeZ,attr"`
	SizeC          int       `xml:"SizeC,attr"`
	SizeT          int       `xml:"SizeT,attr"`
	Channels       []Channel `xml:"Channel"`
}

type Channel struct {
	ID              string  `xml:"ID,attr"`
	Name            *string `xml:"Name,attr"`
	SamplesPerPixel int     `xml:"SamplesPerPixel,attr"`
}

// ParseOMEXML decodes an OME-XML document. Elements are matched by local name,
// so the default OME namespace of any schema revision is accepted. Declared
// non-UTF-8 encodings are honoured.
func ParseOMEXML(r io.Reader) (*Metadata, error) {
	decoder := xml.NewDecoder(r)
	decoder.CharsetReader = charset.NewReaderLabel

	m := &Metadata{}
	if err := decoder.Decode(m); err != nil {
		var uerr xml.UnmarshalError
		if errors.As(err, &uerr) && strings.Contains(string(uerr), "expected element type <OME>") {
			return nil, ErrNotOME
		}
		return nil, err
	}

	return m, nil
}

// ChannelNames returns the Name attribute of every Pixels/Channel element in
// document order. Channels without a Name attribute are skipped.
func (m *Metadata) ChannelNames() []string {
	var out []string
	for _, img := range m.Images {
		for _, ch := range img.Pixels.Channels {
			if ch.Name != nil {
				out = append(out, *ch.Name)
			}
		}
	}
	return out
}

func looksLikeXML(desc string) bool {
	return strings.HasPrefix(strings.TrimSpace(desc), "<")
}
