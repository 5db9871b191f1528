// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package collada_test

import (
	"encoding/xml"
	"os"
	"testing"

	"github.com/devblok/mydemo/util/collada"
	qt "github.com/frankban/quicktest"
)

func TestTrianglesDecode(t *testing.T) {
	c := qt.New(t)
	data := `
		<triangles material="Material-material" count="12">
		<input semantic="VERTEX" source="#Cube-mesh-vertices" offset="0"/>
		<input semantic="NORMAL" source="#Cube-mesh-normals" offset="1"/>
		<p>0 0 2 0 3 0 7 1 5 1 4 1 4 2 1 2 0 2 5 3 2 3 1 3 2 4 7 4 3 4 0 5 7 5 4 5 0 6 1 6 2 6 7 7 6 7 5 7 4 8 5 8 1 8 5 9 6 9 2 9 2 10 6 10 7 10 0 11 3 11 7 11</p>
		</triangles>
	`
	var triangles collada.Triangles
	c.Assert(xml.Unmarshal([]byte(data), &triangles), qt.IsNil)
	c.Assert(triangles.Material, qt.Equals, "Material-material")
	c.Assert(triangles.Count, qt.Equals, 12)
	c.Assert(triangles.Inputs, qt.HasLen, 2)
	c.Assert(triangles.Stride(), qt.Equals, 2)
	c.Assert(triangles.Index, qt.HasLen, 12*6)
}

func TestTristripsDecode(t *testing.T) {
	c := qt.New(t)
	data := `
		<tristrips count="2">
		<input semantic="VERTEX" source="#Strip-vertices" offset="0"/>
		<p>0 1 2 3</p>
		<p>4 5 6</p>
		</tristrips>
	`
	var strips collada.Tristrips
	c.Assert(xml.Unmarshal([]byte(data), &strips), qt.IsNil)
	c.Assert(strips.Count, qt.Equals, 2)
	c.Assert(strips.Strips, qt.DeepEquals, [][]int{{0, 1, 2, 3}, {4, 5, 6}})
}

func TestInputDecode(t *testing.T) {
	c := qt.New(t)
	data := `
	<object>
		<input semantic="VERTEX" source="#Cube-mesh-vertices" offset="0" />
		<input semantic="NORMAL" source="#Cube-mesh-normals" offset="1" />
		<input semantic="TEXCOORD" source="#Cube-mesh-textures" offset="2" set="1" />
	</object>
	`

	type Object struct {
		XMLNname xml.Name        `xml:"object"`
		Inputs   []collada.Input `xml:"input"`
	}

	var obj Object
	c.Assert(xml.Unmarshal([]byte(data), &obj), qt.IsNil)
	c.Assert(obj.Inputs, qt.DeepEquals, []collada.Input{
		{Semantic: "VERTEX", Source: "#Cube-mesh-vertices", Offset: 0},
		{Semantic: "NORMAL", Source: "#Cube-mesh-normals", Offset: 1},
		{Semantic: "TEXCOORD", Source: "#Cube-mesh-textures", Offset: 2, Set: 1},
	})
}

func TestFloatsDecode(t *testing.T) {
	c := qt.New(t)
	data := `<float_array id="Cube-mesh-normals-array" count="36">0 0 -1 0 0 1 1 0 -2.38419e-7 0 -1 -4.76837e-7 -1 2.38419e-7 -1.49012e-7 2.68221e-7 1 2.38419e-7 0 0 -1 0 0 1 1 -5.96046e-7 3.27825e-7 -4.76837e-7 -1 0 -1 2.38419e-7 -1.19209e-7 2.08616e-7
	1 0</float_array>`

	var floats collada.Floats
	c.Assert(xml.Unmarshal([]byte(data), &floats), qt.IsNil)
	c.Assert(floats.Data, qt.HasLen, 36)
	c.Assert(floats.ID, qt.Equals, "Cube-mesh-normals-array")
}

func TestDocumentDecode(t *testing.T) {
	c := qt.New(t)
	data, err := os.ReadFile("testdata/quad.dae")
	c.Assert(err, qt.IsNil)

	var doc collada.Collada
	c.Assert(xml.Unmarshal(data, &doc), qt.IsNil)
	c.Assert(doc.Geometries, qt.HasLen, 1)

	mesh := doc.Geometries[0].Mesh
	c.Assert(mesh.Triangles, qt.HasLen, 1)
	c.Assert(mesh.Triangles[0].Stride(), qt.Equals, 3)
	c.Assert(mesh.Vertices.Inputs[0].Semantic, qt.Equals, "POSITION")

	positions, err := mesh.FindSource("#Quad-mesh-positions")
	c.Assert(err, qt.IsNil)
	c.Assert(positions.Floats.Data, qt.HasLen, 12)
	c.Assert(positions.Stride(), qt.Equals, 3)

	uv, err := mesh.FindSource("Quad-mesh-map-0")
	c.Assert(err, qt.IsNil)
	c.Assert(uv.Stride(), qt.Equals, 2)

	_, err = mesh.FindSource("#Quad-mesh-colors")
	c.Assert(err, qt.ErrorMatches, `collada: source "Quad-mesh-colors" not found`)

	var visited []string
	doc.VisualScenes[0].Nodes[0].Walk(func(n *collada.Node) {
		visited = append(visited, n.ID)
	})
	c.Assert(visited, qt.DeepEquals, []string{"Root", "Quad"})
	c.Assert(doc.VisualScenes[0].Nodes[0].Children[0].InstanceGeometry[0].URL, qt.Equals, "#Quad-mesh")
}
