// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"image"
	"image/color"
	"testing"

	"github.com/devblok/mydemo/core"
	qt "github.com/frankban/quicktest"
)

func TestSliceUint32(t *testing.T) {
	c := qt.New(t)

	data := []byte{1, 0, 0, 0, 2, 0, 0, 0, 9}
	words := core.SliceUint32(data)
	c.Assert(words, qt.HasLen, 2)
	c.Assert(words[0], qt.Equals, uint32(1))
	c.Assert(words[1], qt.Equals, uint32(2))

	c.Assert(core.SliceUint32([]byte{1, 2}), qt.IsNil)
}

func TestSafeStrings(t *testing.T) {
	c := qt.New(t)
	c.Assert(core.SafeString("main"), qt.Equals, "main\x00")
	c.Assert(core.SafeString("main\x00"), qt.Equals, "main\x00")
	c.Assert(core.SafeStrings([]string{"a", "b\x00"}), qt.DeepEquals, []string{"a\x00", "b\x00"})
}

func checkerboard(w, h int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x+y)%2 == 0 {
				img.Set(x, y, color.NRGBA{R: 255, A: 255})
			} else {
				img.Set(x, y, color.NRGBA{B: 255, A: 255})
			}
		}
	}
	return img
}

func TestGetPixelsTight(t *testing.T) {
	c := qt.New(t)

	pixels := core.GetPixels(checkerboard(4, 2), 0)
	c.Assert(pixels, qt.HasLen, 4*4*2)
	c.Assert(pixels[0:4], qt.DeepEquals, []uint8{255, 0, 0, 255})
	c.Assert(pixels[4:8], qt.DeepEquals, []uint8{0, 0, 255, 255})
}

func TestGetPixelsRowPitch(t *testing.T) {
	c := qt.New(t)

	pixels := core.GetPixels(checkerboard(4, 2), 32)
	c.Assert(pixels, qt.HasLen, 32*2)
	// second row starts at the pitch, not at the packed width
	c.Assert(pixels[32:36], qt.DeepEquals, []uint8{0, 0, 255, 255})
	c.Assert(pixels[16:20], qt.DeepEquals, []uint8{0, 0, 0, 0})
}

func TestGetPixelsOffsetBounds(t *testing.T) {
	c := qt.New(t)

	img := checkerboard(4, 4).(*image.NRGBA).SubImage(image.Rect(1, 1, 3, 3))
	pixels := core.GetPixels(img, 0)
	c.Assert(pixels, qt.HasLen, 2*2*4)
	c.Assert(pixels[0:4], qt.DeepEquals, []uint8{255, 0, 0, 255})
}

func BenchmarkSliceUint32Small(b *testing.B) {
	data := make([]byte, 100)
	for idx := 0; idx < b.N; idx++ {
		core.SliceUint32(data)
	}
}

func BenchmarkSliceUint32Big(b *testing.B) {
	data := make([]byte, 100000)
	for idx := 0; idx < b.N; idx++ {
		core.SliceUint32(data)
	}
}

func BenchmarkGetPixelsNoRowPitch(b *testing.B) {
	img := checkerboard(256, 256)
	for idx := 0; idx < b.N; idx++ {
		core.GetPixels(img, 0)
	}
}

func BenchmarkGetPixelsBigRowPitch(b *testing.B) {
	img := checkerboard(256, 256)
	for idx := 0; idx < b.N; idx++ {
		core.GetPixels(img, 2048)
	}
}
