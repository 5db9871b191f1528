// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import (
	"fmt"

	"github.com/devblok/mydemo/core"
)

// Release frees items in reverse order, so they can be listed in creation order.
// Nil entries are skipped.
func Release(items ...Releasable) {
	for idx := len(items) - 1; idx >= 0; idx-- {
		if items[idx] != nil {
			items[idx].Release()
		}
	}
}

// NewBufferWithData creates a buffer sized for data and fills it
func NewBufferWithData(dev Device, usage BufferUsage, data []byte) (Buffer, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty buffer: %w", core.ErrInvalidData)
	}
	buf, err := dev.CreateBuffer(usage, len(data))
	if err != nil {
		return nil, err
	}
	if err := buf.Write(0, data); err != nil {
		buf.Release()
		return nil, err
	}
	return buf, nil
}

// CheckWrite validates a buffer write against the buffer size
func CheckWrite(size, offset, n int) error {
	if offset < 0 || offset+n > size {
		return fmt.Errorf("write of %d bytes at %d overflows buffer of %d: %w", n, offset, size, core.ErrInvalidData)
	}
	return nil
}
