// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package model

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/devblok/mydemo/core"
	"github.com/devblok/mydemo/util/collada"
	glm "github.com/go-gl/mathgl/mgl32"
)

// ImportCollada reads a Collada document and converts every geometry
// into a Mesh. Triangle lists are imported, triangle strips are only counted.
func ImportCollada(fileContents []byte) (*Model, error) {
	var doc collada.Collada
	if err := xml.Unmarshal(fileContents, &doc); err != nil {
		return nil, fmt.Errorf("collada: %w: %s", core.ErrInvalidData, err.Error())
	}
	if len(doc.Geometries) == 0 {
		return nil, fmt.Errorf("collada: no geometries: %w", core.ErrInvalidData)
	}

	var m Model
	meshIDs := make(map[string]int, len(doc.Geometries))
	for _, g := range doc.Geometries {
		mesh, err := importMesh(&g.Mesh)
		if err != nil {
			return nil, fmt.Errorf("collada geometry %s: %w", g.ID, err)
		}
		mesh.Name = g.Name
		meshIDs[g.ID] = len(m.Meshes)
		m.Meshes = append(m.Meshes, mesh)
	}

	for _, scene := range doc.VisualScenes {
		for idx := range scene.Nodes {
			scene.Nodes[idx].Walk(func(n *collada.Node) {
				for _, inst := range n.InstanceGeometry {
					if id, ok := meshIDs[strings.TrimPrefix(inst.URL, "#")]; ok {
						m.Nodes = append(m.Nodes, Node{Name: n.Name, MeshID: id})
					}
				}
			})
		}
	}

	// documents without a scene still get one node per mesh
	if len(m.Nodes) == 0 {
		for idx, mesh := range m.Meshes {
			m.Nodes = append(m.Nodes, Node{Name: mesh.Name, MeshID: idx})
		}
	}
	return &m, nil
}

type vertexKey [3]int

func importMesh(cm *collada.Mesh) (Mesh, error) {
	var mesh Mesh
	for _, s := range cm.Tristrips {
		mesh.NumStrips += len(s.Strips)
	}
	if len(cm.Triangles) == 0 {
		if mesh.NumStrips > 0 {
			mesh.Topology = TriangleStrip
			return mesh, nil
		}
		return mesh, fmt.Errorf("no triangles: %w", core.ErrInvalidData)
	}

	positions, err := positionSource(cm)
	if err != nil {
		return mesh, err
	}

	seen := make(map[vertexKey]uint32)
	for _, tri := range cm.Triangles {
		stride := tri.Stride()
		var normals, uvs *collada.Source
		posOffset, normalOffset, uvOffset := -1, -1, -1
		for _, in := range tri.Inputs {
			switch in.Semantic {
			case "VERTEX":
				posOffset = int(in.Offset)
			case "NORMAL":
				if normals, err = cm.FindSource(in.Source); err != nil {
					return mesh, fmt.Errorf("%w: %s", core.ErrInvalidData, err.Error())
				}
				normalOffset = int(in.Offset)
			case "TEXCOORD":
				if in.Set != 0 {
					continue
				}
				if uvs, err = cm.FindSource(in.Source); err != nil {
					return mesh, fmt.Errorf("%w: %s", core.ErrInvalidData, err.Error())
				}
				uvOffset = int(in.Offset)
			}
		}
		if posOffset < 0 {
			return mesh, fmt.Errorf("triangles without VERTEX input: %w", core.ErrInvalidData)
		}
		if len(tri.Index)%(stride*3) != 0 {
			return mesh, fmt.Errorf("index count %d is not a multiple of %d: %w", len(tri.Index), stride*3, core.ErrInvalidData)
		}

		for base := 0; base < len(tri.Index); base += stride {
			key := vertexKey{tri.Index[base+posOffset], -1, -1}
			if normalOffset >= 0 {
				key[1] = tri.Index[base+normalOffset]
			}
			if uvOffset >= 0 {
				key[2] = tri.Index[base+uvOffset]
			}
			if idx, ok := seen[key]; ok {
				mesh.Indices = append(mesh.Indices, idx)
				continue
			}

			var vert Vertex
			if vert.Pos, err = vec3At(positions, key[0]); err != nil {
				return mesh, err
			}
			if key[1] >= 0 {
				if vert.Normal, err = vec3At(normals, key[1]); err != nil {
					return mesh, err
				}
			}
			if key[2] >= 0 {
				if vert.UV, err = vec2At(uvs, key[2]); err != nil {
					return mesh, err
				}
			}

			idx := uint32(len(mesh.Vertices))
			seen[key] = idx
			mesh.Vertices = append(mesh.Vertices, vert)
			mesh.Indices = append(mesh.Indices, idx)
		}
	}
	return mesh, nil
}

func positionSource(cm *collada.Mesh) (*collada.Source, error) {
	for _, in := range cm.Vertices.Inputs {
		if in.Semantic == "POSITION" {
			src, err := cm.FindSource(in.Source)
			if err != nil {
				return nil, fmt.Errorf("%w: %s", core.ErrInvalidData, err.Error())
			}
			return src, nil
		}
	}
	return nil, fmt.Errorf("vertices without POSITION input: %w", core.ErrInvalidData)
}

func vec3At(src *collada.Source, idx int) (glm.Vec3, error) {
	base := idx * src.Stride()
	if idx < 0 || base+3 > len(src.Floats.Data) {
		return glm.Vec3{}, fmt.Errorf("index %d out of range in %s: %w", idx, src.ID, core.ErrInvalidData)
	}
	d := src.Floats.Data
	return glm.Vec3{d[base], d[base+1], d[base+2]}, nil
}

func vec2At(src *collada.Source, idx int) (glm.Vec2, error) {
	base := idx * src.Stride()
	if idx < 0 || base+2 > len(src.Floats.Data) {
		return glm.Vec2{}, fmt.Errorf("index %d out of range in %s: %w", idx, src.ID, core.ErrInvalidData)
	}
	d := src.Floats.Data
	return glm.Vec2{d[base], d[base+1]}, nil
}
