// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package assets finds demo assets in directories, kar archives and the
// files embedded into the binary, and caches the decoded models and textures.
package assets

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io"
	"io/fs"
	"os"
	"path"
	"sync"

	"github.com/devblok/mydemo/core"
	"github.com/devblok/mydemo/gfx"
	"github.com/devblok/mydemo/model"
	"github.com/gobuffalo/packr"
	"github.com/h2non/filetype"
	log "github.com/sirupsen/logrus"
	_ "golang.org/x/image/bmp"  // register decoder
	_ "golang.org/x/image/tiff" // register decoder
)

// Embedded returns the assets compiled into the binary
func Embedded() BoxSource {
	return BoxSource{Name: "data", Box: packr.NewBox("../data")}
}

// NewStore creates a store searching sources in order
func NewStore(logger log.FieldLogger, sources ...Source) *Store {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Store{
		sources:  sources,
		log:      logger,
		models:   make(map[string]*model.Model),
		textures: make(map[string]image.Image),
	}
}

// NewStoreFromConfig mounts the asset directory when it exists, then
// every configured archive, then the embedded assets.
func NewStoreFromConfig(cfg core.AssetConfiguration, logger log.FieldLogger) (*Store, error) {
	var sources []Source
	if cfg.Directory != "" {
		if info, err := os.Stat(cfg.Directory); err == nil && info.IsDir() {
			sources = append(sources, DirSource(cfg.Directory))
		}
	}

	var archives []*ArchiveSource
	for _, p := range cfg.Archives {
		ar, err := OpenArchive(p)
		if err != nil {
			for _, opened := range archives {
				opened.Close()
			}
			return nil, err
		}
		archives = append(archives, ar)
		sources = append(sources, ar)
	}

	sources = append(sources, Embedded())
	s := NewStore(logger, sources...)
	s.archives = archives
	return s, nil
}

// Store loads assets from its sources
type Store struct {
	sources  []Source
	archives []*ArchiveSource
	log      log.FieldLogger

	mutex    sync.Mutex
	models   map[string]*model.Model
	textures map[string]image.Image
}

// Sources returns the sources searched, in order
func (s *Store) Sources() []Source {
	return s.sources
}

// Open returns the asset from the first source that has it
func (s *Store) Open(name string) (io.ReadCloser, error) {
	for _, src := range s.sources {
		r, err := src.Open(name)
		if err == nil {
			s.log.WithFields(log.Fields{"asset": name, "source": src.String()}).Debug("opened asset")
			return r, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("asset %s: %w", name, core.ErrNotFound)
}

// ReadAll reads a whole asset
func (s *Store) ReadAll(name string) ([]byte, error) {
	r, err := s.Open(name)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// LoadModel loads and caches a model. Collada is the only supported format.
func (s *Store) LoadModel(name string) (*model.Model, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if m, ok := s.models[name]; ok {
		return m, nil
	}

	if ext := path.Ext(name); ext != ".dae" {
		return nil, fmt.Errorf("model %s: unsupported format %q: %w", name, ext, core.ErrInvalidData)
	}
	data, err := s.ReadAll(name)
	if err != nil {
		return nil, err
	}
	m, err := model.ImportCollada(data)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", name, err)
	}
	s.models[name] = m
	return m, nil
}

// LoadTexture loads and caches an image, the format is sniffed from its contents
func (s *Store) LoadTexture(name string) (image.Image, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if img, ok := s.textures[name]; ok {
		return img, nil
	}

	data, err := s.ReadAll(name)
	if err != nil {
		return nil, err
	}
	kind, err := filetype.Match(data)
	if err != nil || !filetype.IsImage(data) {
		return nil, fmt.Errorf("texture %s: not an image: %w", name, core.ErrInvalidData)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("texture %s (%s): %w: %s", name, kind.MIME.Value, core.ErrInvalidData, err.Error())
	}
	s.log.WithFields(log.Fields{"texture": name, "format": format}).Debug("decoded texture")
	s.textures[name] = img
	return img, nil
}

// ShaderNames lists the asset names tried for a shader on api, in order
func ShaderNames(api gfx.API, name string, stage gfx.ShaderStage) []string {
	glsl := name + ".vert"
	if stage == gfx.FragmentStage {
		glsl = name + ".frag"
	}
	spirv := []string{glsl + ".spv", name + "_vk.spv", name + ".spv"}

	switch api {
	case gfx.Vulkan:
		return spirv
	case gfx.OpenGL:
		return []string{glsl}
	}
	return append([]string{glsl}, spirv...)
}

var spirvMagic = []byte{0x03, 0x02, 0x23, 0x07}

// LoadShader finds the shader variant api consumes. SPIR-V
// is checked for its magic number.
func (s *Store) LoadShader(api gfx.API, name string, stage gfx.ShaderStage) ([]byte, error) {
	for _, candidate := range ShaderNames(api, name, stage) {
		data, err := s.ReadAll(candidate)
		if core.ResultOf(err) == core.NotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		if path.Ext(candidate) == ".spv" && !bytes.HasPrefix(data, spirvMagic) {
			return nil, fmt.Errorf("shader %s: not SPIR-V: %w", candidate, core.ErrInvalidData)
		}
		return data, nil
	}
	return nil, fmt.Errorf("shader %s for %s: %w", name, api, core.ErrNotFound)
}

// ReleaseAll drops every cached model and texture
func (s *Store) ReleaseAll() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.log.WithFields(log.Fields{
		"models":   len(s.models),
		"textures": len(s.textures),
	}).Debug("released assets")
	s.models = make(map[string]*model.Model)
	s.textures = make(map[string]image.Image)
}

// Close releases the cache and unmaps archives
func (s *Store) Close() error {
	s.ReleaseAll()
	var first error
	for _, ar := range s.archives {
		if err := ar.Close(); err != nil && first == nil {
			first = err
		}
	}
	s.archives = nil
	return first
}
