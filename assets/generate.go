// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package assets

//go:generate glslangValidator -V ../data/VertShader_vk.vert -o ../data/VertShader.vert.spv
//go:generate glslangValidator -V ../data/FragShader_vk.frag -o ../data/FragShader.frag.spv
//go:generate glslangValidator -V ../data/FragShaderTextured_vk.frag -o ../data/FragShaderTextured.frag.spv
//go:generate glslangValidator -V ../data/Triangle_vk.vert -o ../data/Triangle.vert.spv
//go:generate glslangValidator -V ../data/Triangle_vk.frag -o ../data/Triangle.frag.spv
