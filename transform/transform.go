// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package transform keeps the model-view-projection state of a demo and
// encodes it for uniform buffer upload.
package transform

import (
	"unsafe"

	"github.com/chewxy/math32"
	glm "github.com/go-gl/mathgl/mgl32"
)

// MatrixSize is the byte size of one uploaded matrix
const MatrixSize = int(unsafe.Sizeof(glm.Mat4{}))

// Camera describes a perspective camera
type Camera struct {
	From, To, Up glm.Vec3

	// FovY in radians
	FovY      float32
	Near, Far float32
}

// TeapotCamera looks at the teapot from the side
var TeapotCamera = Camera{
	From: glm.Vec3{7, 2, 0},
	To:   glm.Vec3{0, 0, 1},
	Up:   glm.Vec3{0, 1, 0},
	FovY: math32.Pi / 2,
	Near: 0.1,
	Far:  100,
}

// OffscreenCamera looks down the negative Z axis
var OffscreenCamera = Camera{
	From: glm.Vec3{0, 0, 7},
	To:   glm.Vec3{0, 0, -1},
	Up:   glm.Vec3{0, 1, 0},
	FovY: math32.Pi / 2,
	Near: 4,
	Far:  8,
}

// State is the transform of one demo. MVP accumulates every
// Rotate and Translate call on top of Projection * View * Model.
type State struct {
	Model      glm.Mat4
	View       glm.Mat4
	Projection glm.Mat4
	MVP        glm.Mat4
}

// NewState builds the projection for a width x height surface. With flipY
// the projection is converted to Vulkan clip space, where Y points down.
func NewState(cam Camera, width, height uint32, model glm.Mat4, flipY bool) State {
	aspect := float32(1)
	if height != 0 {
		aspect = float32(width) / float32(height)
	}
	s := State{
		Model:      model,
		View:       glm.LookAtV(cam.From, cam.To, cam.Up),
		Projection: glm.Perspective(cam.FovY, aspect, cam.Near, cam.Far),
	}
	if flipY {
		s.Projection[5] *= -1
	}
	s.MVP = s.Projection.Mul4(s.View).Mul4(s.Model)
	return s
}

// Rotate post-multiplies MVP with a rotation about axis
func (s *State) Rotate(angle float32, axis glm.Vec3) {
	s.MVP = s.MVP.Mul4(glm.HomogRotate3D(angle, axis.Normalize()))
}

// Translate post-multiplies MVP with a translation
func (s *State) Translate(x, y, z float32) {
	s.MVP = s.MVP.Mul4(glm.Translate3D(x, y, z))
}

// Bytes returns the MVP laid out column major, ready for upload
func (s *State) Bytes() []byte {
	return MatrixBytes(&s.MVP)
}

// MatrixBytes aliases m as a byte slice
func MatrixBytes(m *glm.Mat4) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(m)), MatrixSize)
}

// RotationStep is the Y rotation applied for a frame that took frameTimeMs
func RotationStep(frameTimeMs float32) float32 {
	return (math32.Pi / 150) * 0.05 * frameTimeMs
}

// TranslationStep is the X translation applied for a frame that took
// frameTimeMs on a surface width pixels wide
func TranslationStep(width uint32, frameTimeMs float32) float32 {
	return float32(width) / 1000 * frameTimeMs / 1000
}
