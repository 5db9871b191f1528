// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package collada decodes the subset of Collada (.dae) documents
// needed to build meshes: geometries, their sources and
// triangle/tristrip primitives, and the visual scene nodes that
// instantiate them.
package collada

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// Collada is the top-level Collada object
type Collada struct {
	Geometries   []Geometry    `xml:"library_geometries>geometry"`
	VisualScenes []VisualScene `xml:"library_visual_scenes>visual_scene"`
}

// Geometry represents Collada's geometry
type Geometry struct {
	Mesh Mesh   `xml:"mesh"`
	ID   string `xml:"id,attr"`
	Name string `xml:"name,attr"`
}

// Mesh contains all the primitive data
type Mesh struct {
	Source    []Source    `xml:"source"`
	Vertices  Vertices    `xml:"vertices"`
	Triangles []Triangles `xml:"triangles"`
	Tristrips []Tristrips `xml:"tristrips"`
}

// FindSource looks up a source by its id, a leading '#' is ignored
func (m *Mesh) FindSource(id string) (*Source, error) {
	id = strings.TrimPrefix(id, "#")
	for idx := range m.Source {
		if m.Source[idx].ID == id {
			return &m.Source[idx], nil
		}
	}
	return nil, fmt.Errorf("collada: source %q not found", id)
}

// Source links to other sources where data is present
type Source struct {
	ID       string   `xml:"id,attr"`
	Floats   Floats   `xml:"float_array"`
	Accessor Accessor `xml:"technique_common>accessor"`
}

// Stride is the number of floats per element, defaults to 3
func (s *Source) Stride() int {
	if s.Accessor.Stride > 0 {
		return s.Accessor.Stride
	}
	return 3
}

// Accessor describes how to read a source's array
type Accessor struct {
	Source string `xml:"source,attr"`
	Count  int    `xml:"count,attr"`
	Stride int    `xml:"stride,attr"`
}

// Floats is the array of floats
type Floats struct {
	ID   string
	Data []float32
}

// UnmarshalXML unmarshals the array of floats
func (f *Floats) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, attr := range start.Attr {
		switch attr.Name.Local {
		case "id":
			f.ID = attr.Value
		}
	}
	var raw string
	if err := d.DecodeElement(&raw, &start); err != nil {
		return err
	}
	for _, r := range strings.Fields(raw) {
		num, err := strconv.ParseFloat(r, 32)
		if err != nil {
			return err
		}
		f.Data = append(f.Data, float32(num))
	}
	return nil
}

// Vertices contains the list of vertices
type Vertices struct {
	ID     string  `xml:"id,attr"`
	Inputs []Input `xml:"input"`
}

// Triangles contain the list of triangles
type Triangles struct {
	Count    int     `xml:"count,attr"`
	Material string  `xml:"material,attr"`
	Inputs   []Input `xml:"input"`
	Index    []int
}

// UnmarshalXML parses the index list
func (t *Triangles) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, attr := range start.Attr {
		switch attr.Name.Local {
		case "count":
			num, err := strconv.Atoi(attr.Value)
			if err != nil {
				return err
			}
			t.Count = num
		case "material":
			t.Material = attr.Value
		}
	}

	return decodePrimitive(d, start, func(inputs []Input, p []int) {
		t.Inputs = inputs
		t.Index = append(t.Index, p...)
	})
}

// Stride is the number of indices per vertex
func (t *Triangles) Stride() int {
	return stride(t.Inputs)
}

// Tristrips are recognised so a mesh can report them, they are not triangulated
type Tristrips struct {
	Count    int     `xml:"count,attr"`
	Material string  `xml:"material,attr"`
	Inputs   []Input `xml:"input"`
	Strips   [][]int
}

// UnmarshalXML parses every strip
func (t *Tristrips) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, attr := range start.Attr {
		switch attr.Name.Local {
		case "count":
			num, err := strconv.Atoi(attr.Value)
			if err != nil {
				return err
			}
			t.Count = num
		case "material":
			t.Material = attr.Value
		}
	}

	return decodePrimitive(d, start, func(inputs []Input, p []int) {
		t.Inputs = inputs
		if p != nil {
			t.Strips = append(t.Strips, p)
		}
	})
}

func decodePrimitive(d *xml.Decoder, start xml.StartElement, add func([]Input, []int)) error {
	var inputs []Input
	for {
		token, err := d.Token()
		if err != nil {
			return err
		}

		switch el := token.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "input":
				var input Input
				if err := d.DecodeElement(&input, &el); err != nil {
					return err
				}
				inputs = append(inputs, input)
				add(inputs, nil)
			case "p":
				var raw string
				if err := d.DecodeElement(&raw, &el); err != nil {
					return err
				}
				ints, err := parseInts(raw)
				if err != nil {
					return err
				}
				add(inputs, ints)
			default:
				if err := d.Skip(); err != nil {
					return err
				}
			}
		case xml.EndElement:
			if el == start.End() {
				return nil
			}
		}
	}
}

func parseInts(raw string) ([]int, error) {
	fields := strings.Fields(raw)
	ints := make([]int, 0, len(fields))
	for _, r := range fields {
		num, err := strconv.Atoi(r)
		if err != nil {
			return nil, err
		}
		ints = append(ints, num)
	}
	return ints, nil
}

func stride(inputs []Input) int {
	var max uint
	for _, in := range inputs {
		if in.Offset > max {
			max = in.Offset
		}
	}
	return int(max) + 1
}

// Input is Collada'a input type
type Input struct {
	Semantic string `xml:"semantic,attr"`
	Source   string `xml:"source,attr"`
	Offset   uint   `xml:"offset,attr"`
	Set      int    `xml:"set,attr"`
}

// VisualScene is a tree of nodes
type VisualScene struct {
	ID    string `xml:"id,attr"`
	Nodes []Node `xml:"node"`
}

// Node instantiates geometries, nested nodes are flattened by Walk
type Node struct {
	ID               string             `xml:"id,attr"`
	Name             string             `xml:"name,attr"`
	InstanceGeometry []InstanceGeometry `xml:"instance_geometry"`
	Children         []Node             `xml:"node"`
}

// InstanceGeometry references a geometry by url
type InstanceGeometry struct {
	URL string `xml:"url,attr"`
}

// Walk visits n and all of its children depth first
func (n *Node) Walk(visit func(*Node)) {
	visit(n)
	for idx := range n.Children {
		n.Children[idx].Walk(visit)
	}
}
