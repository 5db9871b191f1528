// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kar

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/pierrec/lz4"
)

// NewBuilder creates a new Builder. Do not fill the Index in
// the header, it will be overwritten anyway.
func NewBuilder(header Header) (*Builder, error) {
	header.Index = nil
	return &Builder{
		header: header,
		files:  make(map[string]compressedFile),
	}, nil
}

type compressedFile struct {
	// Size in uncompressed state
	Size int64

	Data []byte
}

// Builder is the high level builder for the archive format.
// Arhives are versioned and cannot be appended to, this Builder
// is the way to create an archive. Whenever Add is called the data
// is compressed and kept until WriteTo bundles it all together.
type Builder struct {
	header Header

	mutex   sync.Mutex
	files   map[string]compressedFile
	written bool
}

// Add compresses everything read from r and stores it under name.
// Adding the same name twice replaces the earlier file.
// Will block until lz4 finishes compression. Is safe
// to use concurrently in different goroutines.
func (b *Builder) Add(name string, r io.Reader) error {
	if name == "" {
		return fmt.Errorf("kar: empty file name")
	}

	var compressed bytes.Buffer
	writer := lz4.NewWriter(&compressed)
	written, err := io.Copy(writer, r)
	if err != nil {
		return fmt.Errorf("kar: compress %s: %w", name, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("kar: compress %s: %w", name, err)
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.written {
		return ErrClosed
	}
	b.files[name] = compressedFile{
		Size: written,
		Data: compressed.Bytes(),
	}
	return nil
}

// Len returns the number of files added so far
func (b *Builder) Len() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.files)
}

// WriteTo bundles and writes all of the files added to the Builder
// into a kar archive that is ready to use. A Builder can only be written once.
func (b *Builder) WriteTo(w io.Writer) (int64, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.written {
		return 0, ErrClosed
	}

	names := make([]string, 0, len(b.files))
	for name := range b.files {
		names = append(names, name)
	}
	sort.Strings(names)

	header := b.header
	var offset int64
	for _, name := range names {
		f := b.files[name]
		header.Index = append(header.Index, IndexEntry{
			Name:           name,
			Offset:         offset,
			Size:           f.Size,
			CompressedSize: int64(len(f.Data)),
		})
		offset += int64(len(f.Data))
	}

	rawHeader, err := gobEncode(header)
	if err != nil {
		return 0, fmt.Errorf("kar: encode header: %w", err)
	}

	var total int64
	write := func(p []byte) error {
		n, err := w.Write(p)
		total += int64(n)
		return err
	}

	if err := write(Magic[:]); err != nil {
		return total, err
	}
	if err := write(int64ToBinary(int64(len(rawHeader)))); err != nil {
		return total, err
	}
	if err := write(rawHeader); err != nil {
		return total, err
	}
	for _, name := range names {
		if err := write(b.files[name].Data); err != nil {
			return total, err
		}
	}

	b.written = true
	b.files = nil
	return total, nil
}
