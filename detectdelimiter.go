package omeconvert

import (
	"bufio"
	"bytes"

	"github.com/csimplestring/go-csv/detector"
)

// delimiterSampleLines bounds how much of a table is inspected when sniffing.
const delimiterSampleLines = 64

// DetermineDelimiter returns the single most likely rune that would delimit the
// values in sample, assuming a CSV-like file. Comma is the fallback.
func DetermineDelimiter(sample []byte) rune {
	var head bytes.Buffer
	scanner := bufio.NewScanner(bytes.NewReader(sample))
	scanner.Buffer(make([]byte, 0, 64*1024), len(sample)+1)
	for i := 0; i < delimiterSampleLines && scanner.Scan(); i++ {
		head.Write(scanner.Bytes())
		head.WriteByte('\n')
	}

	d := detector.New()
	delimiters := d.DetectDelimiter(&head, '"')

	for _, delim := range delimiters {
		switch delim {
		case ",", "\t", ";", "|":
			return rune(delim[0])
		}
	}

	return ','
}
