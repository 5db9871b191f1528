// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package assets_test

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	log "github.com/sirupsen/logrus"
	"golang.org/x/image/bmp"

	"github.com/devblok/mydemo/assets"
	"github.com/devblok/mydemo/core"
	"github.com/devblok/mydemo/gfx"
	"github.com/devblok/mydemo/utility/kar"
)

type mapBox map[string][]byte

func (m mapBox) Has(name string) bool {
	_, ok := m[name]
	return ok
}

func (m mapBox) Find(name string) ([]byte, error) {
	data, ok := m[name]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}

func (m mapBox) FindString(name string) (string, error) {
	data, err := m.Find(name)
	return string(data), err
}

func quietLogger() log.FieldLogger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

const triangleDocument = `<?xml version="1.0" encoding="utf-8"?>
<COLLADA xmlns="http://www.collada.org/2005/11/COLLADASchema" version="1.4.1">
  <library_geometries>
    <geometry id="Tri-mesh" name="Tri">
      <mesh>
        <source id="Tri-positions">
          <float_array id="Tri-positions-array" count="9">0 0 0 1 0 0 0 1 0</float_array>
          <technique_common><accessor source="#Tri-positions-array" count="3" stride="3"/></technique_common>
        </source>
        <vertices id="Tri-vertices"><input semantic="POSITION" source="#Tri-positions"/></vertices>
        <triangles count="1">
          <input semantic="VERTEX" source="#Tri-vertices" offset="0"/>
          <p>0 1 2</p>
        </triangles>
      </mesh>
    </geometry>
  </library_geometries>
</COLLADA>`

func writeFile(c *qt.C, dir, name string, data []byte) {
	c.Assert(os.WriteFile(filepath.Join(dir, name), data, 0644), qt.IsNil)
}

func testImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	for x := 0; x < 4; x++ {
		img.Set(x, 0, color.RGBA{R: 255, A: 255})
		img.Set(x, 1, color.RGBA{B: 255, A: 255})
	}
	return img
}

func TestStoreSourceOrder(t *testing.T) {
	c := qt.New(t)
	dir := c.TempDir()
	writeFile(c, dir, "shared.txt", []byte("dir"))

	box := mapBox{"shared.txt": []byte("box"), "boxonly.txt": []byte("only in box")}
	store := assets.NewStore(quietLogger(), assets.DirSource(dir), assets.BoxSource{Name: "test", Box: box})

	data, err := store.ReadAll("shared.txt")
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Equals, "dir")

	data, err = store.ReadAll("boxonly.txt")
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Equals, "only in box")

	_, err = store.ReadAll("missing.txt")
	c.Assert(err, qt.ErrorIs, core.ErrNotFound)
	c.Assert(core.ResultOf(err), qt.Equals, core.NotFound)
}

func TestStoreRejectsEscapingNames(t *testing.T) {
	c := qt.New(t)
	store := assets.NewStore(quietLogger(), assets.DirSource(c.TempDir()))
	_, err := store.ReadAll("../secret")
	c.Assert(core.ResultOf(err), qt.Equals, core.InvalidData)
}

func TestStoreArchive(t *testing.T) {
	c := qt.New(t)
	dir := c.TempDir()

	b, err := kar.NewBuilder(kar.Header{Author: "test", DateCreated: time.Now().Unix(), Version: 1})
	c.Assert(err, qt.IsNil)
	c.Assert(b.Add("Tri.dae", strings.NewReader(triangleDocument)), qt.IsNil)
	c.Assert(b.Add("note.txt", strings.NewReader("archived")), qt.IsNil)
	var buf bytes.Buffer
	_, err = b.WriteTo(&buf)
	c.Assert(err, qt.IsNil)
	archivePath := filepath.Join(dir, "assets.kar")
	writeFile(c, dir, "assets.kar", buf.Bytes())

	ar, err := assets.OpenArchive(archivePath)
	c.Assert(err, qt.IsNil)
	c.Assert(ar.Names(), qt.DeepEquals, []string{"Tri.dae", "note.txt"})

	store := assets.NewStore(quietLogger(), ar)
	defer ar.Close()

	data, err := store.ReadAll("note.txt")
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Equals, "archived")

	m, err := store.LoadModel("Tri.dae")
	c.Assert(err, qt.IsNil)
	c.Assert(m.Meshes, qt.HasLen, 1)
	c.Assert(m.Meshes[0].Indices, qt.DeepEquals, []uint32{0, 1, 2})

	again, err := store.LoadModel("Tri.dae")
	c.Assert(err, qt.IsNil)
	c.Assert(again, qt.Equals, m)

	store.ReleaseAll()
	reloaded, err := store.LoadModel("Tri.dae")
	c.Assert(err, qt.IsNil)
	c.Assert(reloaded, qt.Not(qt.Equals), m)
}

func TestOpenArchiveRejectsOtherFiles(t *testing.T) {
	c := qt.New(t)
	dir := c.TempDir()

	var png bytes.Buffer
	c.Assert(encodePNG(&png), qt.IsNil)
	writeFile(c, dir, "image.kar", png.Bytes())
	_, err := assets.OpenArchive(filepath.Join(dir, "image.kar"))
	c.Assert(err, qt.ErrorMatches, `.*image/png, not kar.*`)
	c.Assert(core.ResultOf(err), qt.Equals, core.InvalidData)

	_, err = assets.OpenArchive(filepath.Join(dir, "absent.kar"))
	c.Assert(core.ResultOf(err), qt.Equals, core.NotFound)
}

func encodePNG(w io.Writer) error {
	return png.Encode(w, testImage())
}

func TestLoadTexture(t *testing.T) {
	c := qt.New(t)
	var pngData, bmpData bytes.Buffer
	c.Assert(encodePNG(&pngData), qt.IsNil)
	c.Assert(bmp.Encode(&bmpData, testImage()), qt.IsNil)

	box := mapBox{
		"Marble.png": pngData.Bytes(),
		"Marble.bmp": bmpData.Bytes(),
		"notes.txt":  []byte("plain text is not a texture"),
	}
	store := assets.NewStore(quietLogger(), assets.BoxSource{Name: "test", Box: box})

	for _, name := range []string{"Marble.png", "Marble.bmp"} {
		c.Run(name, func(c *qt.C) {
			img, err := store.LoadTexture(name)
			c.Assert(err, qt.IsNil)
			c.Assert(img.Bounds(), qt.Equals, image.Rect(0, 0, 4, 2))
			r, _, b, _ := img.At(0, 1).RGBA()
			c.Assert(r, qt.Equals, uint32(0))
			c.Assert(b, qt.Equals, uint32(0xffff))

			cached, err := store.LoadTexture(name)
			c.Assert(err, qt.IsNil)
			c.Assert(cached, qt.Equals, img)
		})
	}

	_, err := store.LoadTexture("notes.txt")
	c.Assert(core.ResultOf(err), qt.Equals, core.InvalidData)
	_, err = store.LoadTexture("absent.png")
	c.Assert(core.ResultOf(err), qt.Equals, core.NotFound)
}

func TestLoadModelUnsupported(t *testing.T) {
	c := qt.New(t)
	store := assets.NewStore(quietLogger(), assets.BoxSource{Name: "test", Box: mapBox{"teapot.obj": []byte("v 0 0 0")}})
	_, err := store.LoadModel("teapot.obj")
	c.Assert(core.ResultOf(err), qt.Equals, core.InvalidData)

	_, err = store.LoadModel("teapot.dae")
	c.Assert(core.ResultOf(err), qt.Equals, core.NotFound)
}

func TestShaderNames(t *testing.T) {
	c := qt.New(t)
	c.Assert(assets.ShaderNames(gfx.Vulkan, "VertShader", gfx.VertexStage), qt.DeepEquals,
		[]string{"VertShader.vert.spv", "VertShader_vk.spv", "VertShader.spv"})
	c.Assert(assets.ShaderNames(gfx.OpenGL, "FragShader", gfx.FragmentStage), qt.DeepEquals,
		[]string{"FragShader.frag"})
	c.Assert(assets.ShaderNames(gfx.Headless, "VertShader", gfx.VertexStage), qt.DeepEquals,
		[]string{"VertShader.vert", "VertShader.vert.spv", "VertShader_vk.spv", "VertShader.spv"})
}

func TestLoadShader(t *testing.T) {
	c := qt.New(t)
	spirv := []byte{0x03, 0x02, 0x23, 0x07, 0, 0, 1, 0}
	box := mapBox{
		"Good.spv":   spirv,
		"Bad_vk.spv": []byte("#version 450"),
		"Basic.vert": []byte("#version 410 core"),
		"Basic.frag": []byte("#version 410 core\nout vec4 color;"),
		"Vkonly.spv": spirv,
	}
	store := assets.NewStore(quietLogger(), assets.BoxSource{Name: "test", Box: box})

	data, err := store.LoadShader(gfx.Vulkan, "Good", gfx.VertexStage)
	c.Assert(err, qt.IsNil)
	c.Assert(data, qt.DeepEquals, spirv)

	_, err = store.LoadShader(gfx.Vulkan, "Bad", gfx.VertexStage)
	c.Assert(core.ResultOf(err), qt.Equals, core.InvalidData)

	data, err = store.LoadShader(gfx.OpenGL, "Basic", gfx.FragmentStage)
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Contains, "out vec4 color")

	_, err = store.LoadShader(gfx.OpenGL, "Vkonly", gfx.VertexStage)
	c.Assert(core.ResultOf(err), qt.Equals, core.NotFound)

	data, err = store.LoadShader(gfx.Headless, "Vkonly", gfx.VertexStage)
	c.Assert(err, qt.IsNil)
	c.Assert(data, qt.DeepEquals, spirv)
}

func TestNewStoreFromConfig(t *testing.T) {
	c := qt.New(t)
	dir := c.TempDir()
	writeFile(c, dir, "VertShader.vert", []byte("// overridden"))

	store, err := assets.NewStoreFromConfig(core.AssetConfiguration{Directory: dir}, quietLogger())
	c.Assert(err, qt.IsNil)
	defer store.Close()
	c.Assert(store.Sources(), qt.HasLen, 2)
	c.Assert(store.Sources()[0].String(), qt.Equals, "dir:"+dir)
	c.Assert(store.Sources()[1].String(), qt.Equals, "box:data")

	data, err := store.LoadShader(gfx.OpenGL, "VertShader", gfx.VertexStage)
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Equals, "// overridden")

	_, err = assets.NewStoreFromConfig(core.AssetConfiguration{
		Archives: []string{filepath.Join(dir, "absent.kar")},
	}, quietLogger())
	c.Assert(core.ResultOf(err), qt.Equals, core.NotFound)
}

func TestEmbeddedAssets(t *testing.T) {
	c := qt.New(t)
	store := assets.NewStore(quietLogger(), assets.Embedded())
	shaders := []struct {
		name  string
		stage gfx.ShaderStage
	}{
		{"VertShader", gfx.VertexStage},
		{"FragShader", gfx.FragmentStage},
		{"Triangle", gfx.VertexStage},
		{"Triangle", gfx.FragmentStage},
	}
	for _, s := range shaders {
		data, err := store.LoadShader(gfx.OpenGL, s.name, s.stage)
		c.Assert(err, qt.IsNil, qt.Commentf("%s", s.name))
		c.Assert(string(data), qt.Contains, "#version 410")
	}
	m, err := store.LoadModel("cube.dae")
	c.Assert(err, qt.IsNil)
	c.Assert(m.Meshes[0].Info().NumFaces, qt.Equals, 12)
}
