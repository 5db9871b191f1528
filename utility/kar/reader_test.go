// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kar_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/devblok/mydemo/utility/kar"
	qt "github.com/frankban/quicktest"
	"golang.org/x/exp/mmap"
)

func writeTestArchive(c *qt.C) string {
	data := buildArchive(c, map[string]string{
		"test/test1.txt": "this is a test",
		"test/test2.txt": "this is another test",
	})
	path := filepath.Join(c.TempDir(), "opentest.kar")
	c.Assert(os.WriteFile(path, data, 0o644), qt.IsNil)
	return path
}

func readFileAndCompare(c *qt.C, ar *kar.Archive, name, expected string) {
	f, err := ar.Open(name)
	c.Assert(err, qt.IsNil)
	result := make([]byte, len(expected))
	n, err := f.Read(result)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, len(expected))
	c.Assert(string(result), qt.Equals, expected)
}

func TestOpenFile(t *testing.T) {
	c := qt.New(t)
	r, err := os.Open(writeTestArchive(c))
	c.Assert(err, qt.IsNil)
	defer r.Close()

	ar, err := kar.Open(r)
	c.Assert(err, qt.IsNil)
	readFileAndCompare(c, ar, "test/test1.txt", "this is a test")
	readFileAndCompare(c, ar, "test/test2.txt", "this is another test")
}

func TestOpenmmap(t *testing.T) {
	c := qt.New(t)
	r, err := mmap.Open(writeTestArchive(c))
	c.Assert(err, qt.IsNil)
	defer r.Close()

	ar, err := kar.Open(r)
	c.Assert(err, qt.IsNil)

	got, err := ar.ReadAll("test/test1.txt")
	c.Assert(err, qt.IsNil)
	c.Assert(string(got), qt.Equals, "this is a test")
	got, err = ar.ReadAll("test/test2.txt")
	c.Assert(err, qt.IsNil)
	c.Assert(string(got), qt.Equals, "this is another test")
}

func BenchmarkReadAllmmap(b *testing.B) {
	c := qt.New(b)
	r, err := mmap.Open(writeTestArchive(c))
	c.Assert(err, qt.IsNil)
	defer r.Close()
	ar, err := kar.Open(r)
	c.Assert(err, qt.IsNil)

	b.ResetTimer()
	for idx := 0; idx < b.N; idx++ {
		if _, err := ar.ReadAll("test/test2.txt"); err != nil {
			b.Fatal(err)
		}
	}
}
