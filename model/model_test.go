// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package model_test

import (
	"encoding/binary"
	"os"
	"testing"

	"github.com/devblok/mydemo/core"
	"github.com/devblok/mydemo/model"
	qt "github.com/frankban/quicktest"
	glm "github.com/go-gl/mathgl/mgl32"
)

func TestNewTriangle(t *testing.T) {
	c := qt.New(t)
	m := model.NewTriangle()
	c.Assert(m.Meshes, qt.HasLen, 1)
	c.Assert(m.Nodes, qt.HasLen, 1)

	mesh, id, err := m.MeshOf(0)
	c.Assert(err, qt.IsNil)
	c.Assert(id, qt.Equals, 0)
	c.Assert(mesh.Vertices[2].Pos, qt.Equals, glm.Vec3{0, 0.9, 0.9})
	c.Assert(mesh.IndexType(), qt.Equals, model.IndexUint16)
	c.Assert(mesh.Info(), qt.Equals, model.Info{NumVertices: 3, NumFaces: 1, PositionIndex: 0})

	indices := mesh.IndexData()
	c.Assert(indices, qt.HasLen, 6)
	c.Assert(binary.LittleEndian.Uint16(indices[4:]), qt.Equals, uint16(2))
	c.Assert(mesh.VertexData(), qt.HasLen, 3*int(model.VertexSize))
}

func TestVertexLayout(t *testing.T) {
	c := qt.New(t)
	c.Assert(model.VertexSize, qt.Equals, uint32(32))

	var mesh model.Mesh
	attrs := mesh.Attributes()
	c.Assert(attrs, qt.HasLen, 3)
	c.Assert(attrs[1], qt.Equals, model.Attribute{Semantic: model.Normal, Offset: 12, Components: 3})
	c.Assert(attrs[2].Offset, qt.Equals, uint32(24))
	c.Assert(mesh.AttributeIndex(model.UV0), qt.Equals, 2)
	c.Assert(mesh.AttributeIndex("COLOR"), qt.Equals, -1)
}

func TestIndexTypeWidening(t *testing.T) {
	c := qt.New(t)
	mesh := model.Mesh{Indices: []uint32{0, 1, 70000}}
	c.Assert(mesh.IndexType(), qt.Equals, model.IndexUint32)
	c.Assert(mesh.IndexData(), qt.HasLen, 12)
	c.Assert(mesh.IndexType().Size(), qt.Equals, 4)
}

func TestNonIndexedFaces(t *testing.T) {
	c := qt.New(t)
	mesh := model.Mesh{Vertices: make([]model.Vertex, 6)}
	c.Assert(mesh.HasIndices(), qt.IsFalse)
	c.Assert(mesh.NumFaces(), qt.Equals, 2)
	c.Assert(mesh.IndexData(), qt.IsNil)
}

func TestModelNodeErrors(t *testing.T) {
	c := qt.New(t)
	m := model.Model{Nodes: []model.Node{{MeshID: 3}}}

	_, err := m.Node(1)
	c.Assert(core.ResultOf(err), qt.Equals, core.NotFound)

	_, _, err = m.MeshOf(0)
	c.Assert(core.ResultOf(err), qt.Equals, core.InvalidData)
}

func TestImportCollada(t *testing.T) {
	c := qt.New(t)
	data, err := os.ReadFile("testdata/quad.dae")
	c.Assert(err, qt.IsNil)

	m, err := model.ImportCollada(data)
	c.Assert(err, qt.IsNil)
	c.Assert(m.Nodes, qt.DeepEquals, []model.Node{{Name: "Quad", MeshID: 0}})

	mesh := m.Meshes[0]
	c.Assert(mesh.Name, qt.Equals, "Quad")
	c.Assert(mesh.NumStrips, qt.Equals, 0)
	c.Assert(mesh.Topology, qt.Equals, model.TriangleList)
	c.Assert(mesh.Vertices, qt.HasLen, 4)
	c.Assert(mesh.Indices, qt.DeepEquals, []uint32{0, 1, 2, 0, 2, 3})
	c.Assert(mesh.Vertices[2], qt.Equals, model.Vertex{
		Pos:    glm.Vec3{1, 1, 0},
		Normal: glm.Vec3{0, 0, 1},
		UV:     glm.Vec2{1, 1},
	})
	c.Assert(mesh.NumFaces(), qt.Equals, 2)
}

const stripDocument = `<COLLADA>
  <library_geometries>
    <geometry id="Strip-mesh" name="Strip">
      <mesh>
        <source id="Strip-positions">
          <float_array id="Strip-positions-array">0 0 0 1 0 0 0 1 0 1 1 0</float_array>
        </source>
        <vertices id="Strip-vertices">
          <input semantic="POSITION" source="#Strip-positions"/>
        </vertices>
        <tristrips count="1">
          <input semantic="VERTEX" source="#Strip-vertices" offset="0"/>
          <p>0 1 2 3</p>
        </tristrips>
      </mesh>
    </geometry>
  </library_geometries>
</COLLADA>`

func TestImportColladaStrips(t *testing.T) {
	c := qt.New(t)
	m, err := model.ImportCollada([]byte(stripDocument))
	c.Assert(err, qt.IsNil)
	c.Assert(m.Meshes[0].NumStrips, qt.Equals, 1)
	c.Assert(m.Meshes[0].Topology, qt.Equals, model.TriangleStrip)
	// no scene, one node per mesh
	c.Assert(m.Nodes, qt.DeepEquals, []model.Node{{Name: "Strip", MeshID: 0}})
}

func TestImportColladaInvalid(t *testing.T) {
	c := qt.New(t)

	tests := []struct {
		name string
		doc  string
	}{
		{"not xml", "teapot"},
		{"no geometry", "<COLLADA></COLLADA>"},
		{"index out of range", `<COLLADA><library_geometries><geometry id="g"><mesh>
			<source id="p"><float_array>0 0 0</float_array></source>
			<vertices id="v"><input semantic="POSITION" source="#p"/></vertices>
			<triangles count="1"><input semantic="VERTEX" source="#v" offset="0"/><p>0 1 2</p></triangles>
			</mesh></geometry></library_geometries></COLLADA>`},
		{"missing positions", `<COLLADA><library_geometries><geometry id="g"><mesh>
			<vertices id="v"><input semantic="POSITION" source="#p"/></vertices>
			<triangles count="1"><input semantic="VERTEX" source="#v" offset="0"/><p>0 0 0</p></triangles>
			</mesh></geometry></library_geometries></COLLADA>`},
	}
	for _, test := range tests {
		c.Run(test.name, func(c *qt.C) {
			_, err := model.ImportCollada([]byte(test.doc))
			c.Assert(core.ResultOf(err), qt.Equals, core.InvalidData)
		})
	}
}
