// Package omeconvert holds the I/O helpers shared by the converters: opening
// local or gs:// inputs, transparent decompression of flat files, delimiter
// sniffing and atomic output writes.
//
// The conversion logic itself lives in the channelmap, ometiff, convert, ribca
// and store packages, and is driven by cmd/omeconvert.
package omeconvert
