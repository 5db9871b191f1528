// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package model holds meshes in the layout the renderers upload them in:
// interleaved vertices plus an optional index list.
package model

import (
	"fmt"
	"unsafe"

	"github.com/devblok/mydemo/core"
	glm "github.com/go-gl/mathgl/mgl32"
)

// Vertex is a model vertex
type Vertex struct {
	Pos    glm.Vec3
	Normal glm.Vec3
	UV     glm.Vec2
}

// VertexSize is the stride of interleaved vertex data
const VertexSize = uint32(unsafe.Sizeof(Vertex{}))

// Semantic names a vertex attribute
type Semantic string

// Known semantics
const (
	Position Semantic = "POSITION"
	Normal   Semantic = "NORMAL"
	UV0      Semantic = "UV0"
)

// Attribute describes where a semantic lives inside a Vertex
type Attribute struct {
	Semantic   Semantic
	Offset     uint32
	Components int
}

var attributes = []Attribute{
	{Semantic: Position, Offset: uint32(unsafe.Offsetof(Vertex{}.Pos)), Components: 3},
	{Semantic: Normal, Offset: uint32(unsafe.Offsetof(Vertex{}.Normal)), Components: 3},
	{Semantic: UV0, Offset: uint32(unsafe.Offsetof(Vertex{}.UV)), Components: 2},
}

// IndexType is the width of one index
type IndexType int

// Index widths
const (
	IndexUint16 IndexType = iota
	IndexUint32
)

// Size returns the byte size of one index
func (t IndexType) Size() int {
	if t == IndexUint16 {
		return 2
	}
	return 4
}

func (t IndexType) String() string {
	if t == IndexUint16 {
		return "uint16"
	}
	return "uint32"
}

// Topology is the primitive type of a mesh
type Topology int

// Supported topologies
const (
	TriangleList Topology = iota
	TriangleStrip
)

// Mesh is a single drawable piece of geometry
type Mesh struct {
	Name     string
	Vertices []Vertex
	Indices  []uint32
	Topology Topology

	// NumStrips counts triangle strips found on import, they are not drawable
	NumStrips int
}

// Attributes returns the attribute table of the mesh
func (m *Mesh) Attributes() []Attribute {
	return attributes
}

// AttributeIndex returns the position of a semantic in the attribute
// table, or -1 when it is not present
func (m *Mesh) AttributeIndex(s Semantic) int {
	for idx, a := range attributes {
		if a.Semantic == s {
			return idx
		}
	}
	return -1
}

// IndexType picks the narrowest index width able to address every vertex
func (m *Mesh) IndexType() IndexType {
	var max uint32
	for _, i := range m.Indices {
		if i > max {
			max = i
		}
	}
	if max <= 0xffff {
		return IndexUint16
	}
	return IndexUint32
}

// HasIndices reports whether the mesh is drawn indexed
func (m *Mesh) HasIndices() bool {
	return len(m.Indices) > 0
}

// NumFaces returns the number of triangles in a triangle list
func (m *Mesh) NumFaces() int {
	if m.HasIndices() {
		return len(m.Indices) / 3
	}
	return len(m.Vertices) / 3
}

// VertexData returns the interleaved vertices as bytes, it aliases Vertices
func (m *Mesh) VertexData() []byte {
	if len(m.Vertices) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&m.Vertices[0])), len(m.Vertices)*int(VertexSize))
}

// IndexData returns the indices encoded with IndexType
func (m *Mesh) IndexData() []byte {
	if len(m.Indices) == 0 {
		return nil
	}
	if m.IndexType() == IndexUint32 {
		return unsafe.Slice((*byte)(unsafe.Pointer(&m.Indices[0])), len(m.Indices)*4)
	}
	narrow := make([]uint16, len(m.Indices))
	for idx, i := range m.Indices {
		narrow[idx] = uint16(i)
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&narrow[0])), len(narrow)*2)
}

// Info is the summary logged after loading a mesh
type Info struct {
	NumVertices   int
	NumFaces      int
	PositionIndex int
}

// Info summarises the mesh
func (m *Mesh) Info() Info {
	return Info{
		NumVertices:   len(m.Vertices),
		NumFaces:      m.NumFaces(),
		PositionIndex: m.AttributeIndex(Position),
	}
}

// Node places a mesh into the scene
type Node struct {
	Name   string
	MeshID int
}

// Model is a set of meshes and the nodes referencing them
type Model struct {
	Meshes []Mesh
	Nodes  []Node
}

// Node returns the node at idx
func (m *Model) Node(idx int) (Node, error) {
	if idx < 0 || idx >= len(m.Nodes) {
		return Node{}, fmt.Errorf("node %d of %d: %w", idx, len(m.Nodes), core.ErrNotFound)
	}
	return m.Nodes[idx], nil
}

// MeshOf returns the mesh referenced by node idx and its id
func (m *Model) MeshOf(nodeIdx int) (*Mesh, int, error) {
	node, err := m.Node(nodeIdx)
	if err != nil {
		return nil, 0, err
	}
	if node.MeshID < 0 || node.MeshID >= len(m.Meshes) {
		return nil, 0, fmt.Errorf("node %d references mesh %d: %w", nodeIdx, node.MeshID, core.ErrInvalidData)
	}
	return &m.Meshes[node.MeshID], node.MeshID, nil
}

var trianglePositions = []glm.Vec3{
	{-0.9, 0, 0},
	{0.9, 0, 0},
	{0, 0.9, 0.9},
}

// NewTriangle builds the single triangle model, one node and one mesh
func NewTriangle() *Model {
	mesh := Mesh{
		Name:     "triangle",
		Indices:  []uint32{0, 1, 2},
		Topology: TriangleList,
	}
	for _, p := range trianglePositions {
		mesh.Vertices = append(mesh.Vertices, Vertex{
			Pos:    p,
			Normal: glm.Vec3{0, 0, 1},
		})
	}
	return &Model{
		Meshes: []Mesh{mesh},
		Nodes:  []Node{{Name: "triangle", MeshID: 0}},
	}
}
