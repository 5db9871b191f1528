// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package demo

import (
	"fmt"

	"github.com/devblok/mydemo/core"
	"github.com/devblok/mydemo/gfx"
	"github.com/devblok/mydemo/model"
	log "github.com/sirupsen/logrus"
)

// VertexBinding maps a mesh semantic to a vertex shader input.
// Bindings are assigned locations in the order they are listed.
type VertexBinding struct {
	Semantic model.Semantic
	Variable string
}

// Vertex bindings used by the shipped shaders
var (
	PositionBindings = []VertexBinding{
		{model.Position, "inPositions"},
	}
	ModelBindings = []VertexBinding{
		{model.Position, "inPositions"},
		{model.Normal, "inNormals"},
		{model.UV0, "inUVs"},
	}
)

// InputAssemblyFromMesh builds the vertex layout feeding the bound
// semantics of mesh into the shader variables.
func InputAssemblyFromMesh(mesh *model.Mesh, bindings []VertexBinding) (gfx.VertexLayout, error) {
	layout := gfx.VertexLayout{Stride: model.VertexSize}
	attrs := mesh.Attributes()
	for loc, b := range bindings {
		idx := mesh.AttributeIndex(b.Semantic)
		if idx < 0 {
			return layout, fmt.Errorf("mesh %s has no %s attribute: %w", mesh.Name, b.Semantic, core.ErrInvalidData)
		}
		attr := attrs[idx]

		var format gfx.AttribFormat
		switch attr.Components {
		case 2:
			format = gfx.Float2
		case 3:
			format = gfx.Float3
		case 4:
			format = gfx.Float4
		default:
			return layout, fmt.Errorf("%s with %d components: %w", b.Semantic, attr.Components, core.ErrInvalidData)
		}

		layout.Attributes = append(layout.Attributes, gfx.VertexAttribute{
			Location: uint32(loc),
			Name:     b.Variable,
			Format:   format,
			Offset:   attr.Offset,
		})
	}
	return layout, nil
}

// MeshBuffers holds the uploaded geometry of one mesh.
// Indices is nil for meshes drawn without an index buffer.
type MeshBuffers struct {
	Vertices  gfx.Buffer
	Indices   gfx.Buffer
	IndexType gfx.IndexType
}

// UploadMesh copies the vertices and indices of mesh into new buffers
func UploadMesh(dev gfx.Device, mesh *model.Mesh) (*MeshBuffers, error) {
	vbo, err := gfx.NewBufferWithData(dev, gfx.VertexBuffer, mesh.VertexData())
	if err != nil {
		return nil, fmt.Errorf("vertex buffer of %s: %w", mesh.Name, err)
	}
	bufs := &MeshBuffers{Vertices: vbo}
	if !mesh.HasIndices() {
		return bufs, nil
	}

	ibo, err := gfx.NewBufferWithData(dev, gfx.IndexBuffer, mesh.IndexData())
	if err != nil {
		vbo.Release()
		return nil, fmt.Errorf("index buffer of %s: %w", mesh.Name, err)
	}
	bufs.Indices = ibo
	if mesh.IndexType() == model.IndexUint32 {
		bufs.IndexType = gfx.Uint32
	}
	return bufs, nil
}

// Release frees both buffers
func (b *MeshBuffers) Release() {
	if b.Indices != nil {
		b.Indices.Release()
	}
	b.Vertices.Release()
}

// drawMesh records the draw of a triangle list mesh, indexed when it has
// an index buffer. Triangle strips are not drawable.
func drawMesh(cb gfx.CommandBuffer, mesh *model.Mesh, bufs *MeshBuffers) error {
	if mesh.NumStrips != 0 || mesh.Topology != model.TriangleList {
		return fmt.Errorf("mesh %s is not a triangle list: %w", mesh.Name, core.ErrInvalidData)
	}

	cb.BindVertexBuffer(bufs.Vertices, 0)
	if bufs.Indices != nil {
		cb.BindIndexBuffer(bufs.Indices, 0, bufs.IndexType)
		cb.DrawIndexed(0, mesh.NumFaces()*3, 0, 1)
	} else {
		cb.DrawArrays(0, mesh.NumFaces()*3, 1)
	}
	return nil
}

func logMeshInfo(logger log.FieldLogger, mesh *model.Mesh) {
	info := mesh.Info()
	logger.WithFields(log.Fields{
		"mesh":       mesh.Name,
		"vertices":   info.NumVertices,
		"faces":      info.NumFaces,
		"position":   info.PositionIndex,
		"index_type": mesh.IndexType(),
	}).Info("mesh loaded")
}
