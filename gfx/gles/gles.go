// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gles implements gfx.Device on OpenGL 4.1 core. Command buffers
// hold closures that are replayed on Submit, a fence sync per slot keeps
// the CPU away from slots the GPU still reads.
package gles

import (
	"encoding/binary"
	"fmt"

	"github.com/devblok/mydemo/core"
	"github.com/devblok/mydemo/gfx"
	"github.com/go-gl/gl/v4.1-core/gl"
)

// spirvMagic is the first word of a SPIR-V module, which GL cannot consume
const spirvMagic = 0x07230203

// checkGLSL rejects empty or binary shader code
func checkGLSL(code []byte) error {
	if len(code) == 0 {
		return fmt.Errorf("gl: empty shader: %w", core.ErrInvalidData)
	}
	if len(code) >= 4 && binary.LittleEndian.Uint32(code) == spirvMagic {
		return fmt.Errorf("gl: SPIR-V shader given to GLSL compiler: %w", core.ErrInvalidData)
	}
	return nil
}

func shaderType(s gfx.ShaderStage) (uint32, error) {
	switch s {
	case gfx.VertexStage:
		return gl.VERTEX_SHADER, nil
	case gfx.FragmentStage:
		return gl.FRAGMENT_SHADER, nil
	}
	return 0, fmt.Errorf("gl: shader stage %d: %w", s, core.ErrInvalidData)
}

func drawMode(t gfx.Topology) uint32 {
	if t == gfx.TriangleStrip {
		return gl.TRIANGLE_STRIP
	}
	return gl.TRIANGLES
}

// indexType returns the GL type and byte size of an index
func indexType(t gfx.IndexType) (uint32, int) {
	if t == gfx.Uint32 {
		return gl.UNSIGNED_INT, 4
	}
	return gl.UNSIGNED_SHORT, 2
}

func filter(f gfx.Filter) int32 {
	if f == gfx.Nearest {
		return gl.NEAREST
	}
	return gl.LINEAR
}

// clearMask returns the buffers cleared at the start of a pass
func clearMask(cfg gfx.RenderPassConfig) uint32 {
	var mask uint32
	if cfg.Color.Load == gfx.LoadOpClear {
		mask |= gl.COLOR_BUFFER_BIT
	}
	if cfg.Depth != nil && cfg.Depth.Load == gfx.LoadOpClear {
		mask |= gl.DEPTH_BUFFER_BIT | gl.STENCIL_BUFFER_BIT
	}
	return mask
}

// syncDone interprets a glClientWaitSync result
func syncDone(status uint32) (bool, error) {
	switch status {
	case gl.ALREADY_SIGNALED, gl.CONDITION_SATISFIED:
		return true, nil
	case gl.TIMEOUT_EXPIRED:
		return false, nil
	}
	return false, fmt.Errorf("gl: glClientWaitSync() failed with 0x%x: %w", status, core.ErrUnknown)
}
