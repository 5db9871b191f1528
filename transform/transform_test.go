// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package transform_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/chewxy/math32"
	"github.com/devblok/mydemo/transform"
	qt "github.com/frankban/quicktest"
	glm "github.com/go-gl/mathgl/mgl32"
)

func TestNewStateFlip(t *testing.T) {
	c := qt.New(t)

	gl := transform.NewState(transform.TeapotCamera, 800, 600, glm.Ident4(), false)
	vk := transform.NewState(transform.TeapotCamera, 800, 600, glm.Ident4(), true)

	c.Assert(vk.Projection[5], qt.Equals, -gl.Projection[5])
	c.Assert(vk.Projection[0], qt.Equals, gl.Projection[0])
	c.Assert(gl.MVP.ApproxEqual(gl.Projection.Mul4(gl.View)), qt.IsTrue)
}

func TestRotateAccumulates(t *testing.T) {
	c := qt.New(t)

	s := transform.NewState(transform.TeapotCamera, 800, 600, glm.Ident4(), false)
	base := s.MVP
	step := transform.RotationStep(16)

	s.Rotate(step, glm.Vec3{0, 1, 0})
	s.Rotate(step, glm.Vec3{0, 1, 0})

	want := base.Mul4(glm.HomogRotate3DY(2 * step))
	c.Assert(s.MVP.ApproxEqualThreshold(want, 1e-5), qt.IsTrue)
}

func TestTranslateAccumulates(t *testing.T) {
	c := qt.New(t)

	s := transform.State{MVP: glm.Ident4()}
	s.Translate(1, 0, 0)
	s.Translate(0.5, 0, 0)
	c.Assert(s.MVP.Col(3), qt.Equals, glm.Vec4{1.5, 0, 0, 1})
}

func TestSteps(t *testing.T) {
	c := qt.New(t)

	c.Assert(math32.Abs(transform.RotationStep(150)-0.05*math32.Pi) < 1e-6, qt.IsTrue)
	c.Assert(transform.TranslationStep(1000, 1000), qt.Equals, float32(1))
	c.Assert(math32.Abs(transform.TranslationStep(800, 16)-0.0128) < 1e-6, qt.IsTrue)
}

func TestBytes(t *testing.T) {
	c := qt.New(t)

	s := transform.State{MVP: glm.Translate3D(2, 3, 4)}
	data := s.Bytes()
	c.Assert(data, qt.HasLen, 64)
	// column major, translation lives in elements 12..14
	c.Assert(math.Float32frombits(binary.LittleEndian.Uint32(data[12*4:])), qt.Equals, float32(2))
	c.Assert(math.Float32frombits(binary.LittleEndian.Uint32(data[14*4:])), qt.Equals, float32(4))
}

func BenchmarkRotateAndUpload(b *testing.B) {
	s := transform.NewState(transform.TeapotCamera, 800, 600, glm.Ident4(), true)
	dst := make([]byte, transform.MatrixSize)
	for idx := 0; idx < b.N; idx++ {
		s.Rotate(transform.RotationStep(16), glm.Vec3{0, 1, 0})
		copy(dst, s.Bytes())
	}
}
