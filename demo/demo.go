// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package demo contains the sample applications run by the shell.
package demo

import (
	"fmt"
	"sort"
	"sync"

	"github.com/devblok/mydemo/core"
	"github.com/devblok/mydemo/shell"
)

// Factory creates a fresh demo
type Factory func() shell.Demo

var (
	registryMutex sync.RWMutex
	registry      = make(map[string]Factory)
)

// Register makes a demo available by name, registering a name twice panics
func Register(name string, f Factory) {
	registryMutex.Lock()
	defer registryMutex.Unlock()
	if _, ok := registry[name]; ok {
		panic("demo: " + name + " registered twice")
	}
	registry[name] = f
}

// New creates the demo registered as name
func New(name string) (shell.Demo, error) {
	registryMutex.RLock()
	f, ok := registry[name]
	registryMutex.RUnlock()
	if !ok {
		return nil, fmt.Errorf("demo %q: %w", name, core.ErrNotFound)
	}
	return f(), nil
}

// Names lists the registered demos, sorted
func Names() []string {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
