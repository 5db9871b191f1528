// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package kar is an api for an lz4 backed file format.
// It's purpose is to be well suited for streaming resources
// from it. It's designed to be memory mapped, so (unlike tar) it knows
// where all the files are located before they're read. The archive itself
// is not compressed, rather every file is individually compressed, so it
// can be read from its place and decompressed on the fly. It trades some
// space efficiency for getting resources from disk to a usable state fast.
// It can be read from concurrently.
//
// Layout:
//
//	"KAR\x00" | header size (16 bytes, little endian) | gob Header | payloads
//
// Index offsets are relative to the first byte after the gob header.
package kar

import (
	"errors"
	"sort"
)

// package errors
var (
	ErrFileFormat = errors.New("corrupted or not a kar archive")
	ErrClosed     = errors.New("builder already written")
)

// Sizes relevant to the header of file
const (
	MagicLength            = 4
	HeaderSizeNumberLength = 16

	// maximum gob header accepted by Open
	maxHeaderSize = 64 << 20
)

// Magic identifies kar archives
var Magic = [MagicLength]byte{'K', 'A', 'R', '\x00'}

// IndexEntry is info for one file in the file index.
type IndexEntry struct {
	Name           string
	Offset         int64
	Size           int64
	CompressedSize int64
}

// Header is the file header for kar files.
type Header struct {
	Author      string
	DateCreated int64
	Version     int64
	Index       []IndexEntry
}

// Names returns the file names in the index, sorted
func (h *Header) Names() []string {
	names := make([]string, 0, len(h.Index))
	for _, e := range h.Index {
		names = append(names, e.Name)
	}
	sort.Strings(names)
	return names
}

func (h *Header) dataSize() int64 {
	var size int64
	for _, e := range h.Index {
		if end := e.Offset + e.CompressedSize; end > size {
			size = end
		}
	}
	return size
}
