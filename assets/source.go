// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package assets

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/devblok/mydemo/core"
	"github.com/devblok/mydemo/utility/kar"
	"github.com/gobuffalo/packd"
	"github.com/h2non/filetype"
	"github.com/mitchellh/go-homedir"
	"golang.org/x/exp/mmap"
)

// Source is a place assets are looked up in. Open must wrap
// fs.ErrNotExist when the asset is not there.
type Source interface {
	Open(name string) (io.ReadCloser, error)
	String() string
}

// DirSource reads assets from a directory
type DirSource string

// Open implements interface
func (d DirSource) Open(name string) (io.ReadCloser, error) {
	if !fs.ValidPath(name) {
		return nil, fmt.Errorf("asset name %q: %w", name, core.ErrInvalidData)
	}
	return os.Open(filepath.Join(string(d), filepath.FromSlash(name)))
}

func (d DirSource) String() string {
	return "dir:" + string(d)
}

// Box is the part of a packr box the store needs
type Box interface {
	packd.Finder
	packd.Haser
}

// BoxSource reads assets embedded with packr
type BoxSource struct {
	Name string
	Box  Box
}

// Open implements interface
func (b BoxSource) Open(name string) (io.ReadCloser, error) {
	if !b.Box.Has(name) {
		return nil, fmt.Errorf("box %s: %s: %w", b.Name, name, fs.ErrNotExist)
	}
	data, err := b.Box.Find(name)
	if err != nil {
		return nil, fmt.Errorf("box %s: %s: %w", b.Name, name, err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b BoxSource) String() string {
	return "box:" + b.Name
}

var karType = filetype.NewType("kar", "application/x-kar")

func init() {
	filetype.AddMatcher(karType, func(buf []byte) bool {
		return len(buf) >= kar.MagicLength && bytes.Equal(buf[:kar.MagicLength], kar.Magic[:])
	})
}

// OpenArchive memory maps a kar archive
func OpenArchive(path string) (*ArchiveSource, error) {
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("archive path: %w", err)
	}

	r, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}

	head := make([]byte, 262)
	n, _ := r.ReadAt(head, 0)
	kind, _ := filetype.Match(head[:n])
	if kind != karType {
		r.Close()
		return nil, fmt.Errorf("archive %s is %s, not kar: %w", path, describe(kind.MIME.Value), core.ErrInvalidData)
	}

	ar, err := kar.Open(r)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("archive %s: %w: %s", path, core.ErrInvalidData, err.Error())
	}
	return &ArchiveSource{path: path, archive: ar, closer: r}, nil
}

func describe(mime string) string {
	if mime == "" {
		return "unknown"
	}
	return mime
}

// ArchiveSource reads assets from a kar archive
type ArchiveSource struct {
	path    string
	archive *kar.Archive
	closer  io.Closer
}

// Open implements interface
func (a *ArchiveSource) Open(name string) (io.ReadCloser, error) {
	r, err := a.archive.Open(name)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(r), nil
}

// Names lists the archived assets
func (a *ArchiveSource) Names() []string {
	return a.archive.Names()
}

// Close unmaps the archive
func (a *ArchiveSource) Close() error {
	return a.closer.Close()
}

func (a *ArchiveSource) String() string {
	return "kar:" + a.path
}
