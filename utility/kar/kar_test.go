// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kar_test

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/devblok/mydemo/utility/kar"
	qt "github.com/frankban/quicktest"
)

var (
	testString1 = "idunvovkjnreovmegihjbrqlkmfrjnb"
	testString2 = "idunvovkjnreovmsdvwrvnervnreegihjbrqlkmfrjnb"
)

func buildArchive(c *qt.C, files map[string]string) []byte {
	builder, err := kar.NewBuilder(kar.Header{
		Author:      "devblok",
		DateCreated: time.Now().Unix(),
		Version:     1,
	})
	c.Assert(err, qt.IsNil)
	for name, contents := range files {
		c.Assert(builder.Add(name, strings.NewReader(contents)), qt.IsNil)
	}

	var buf bytes.Buffer
	written, err := builder.WriteTo(&buf)
	c.Assert(err, qt.IsNil)
	c.Assert(written, qt.Equals, int64(buf.Len()))
	return buf.Bytes()
}

func TestCreateAndRead(t *testing.T) {
	c := qt.New(t)
	data := buildArchive(c, map[string]string{"test": testString1, "test2": testString2})

	ar, err := kar.Open(bytes.NewReader(data))
	c.Assert(err, qt.IsNil)

	f, err := ar.Open("test")
	c.Assert(err, qt.IsNil)
	c.Assert(f.Size(), qt.Equals, int64(len(testString1)))

	result, err := io.ReadAll(f)
	c.Assert(err, qt.IsNil)
	c.Assert(string(result), qt.Equals, testString1)
}

func TestCreateAndReadAll(t *testing.T) {
	c := qt.New(t)
	data := buildArchive(c, map[string]string{"test": testString1, "test2": testString2})

	ar, err := kar.Open(bytes.NewReader(data))
	c.Assert(err, qt.IsNil)
	c.Assert(ar.Names(), qt.DeepEquals, []string{"test", "test2"})
	c.Assert(ar.Header().Author, qt.Equals, "devblok")

	got, err := ar.ReadAll("test2")
	c.Assert(err, qt.IsNil)
	c.Assert(string(got), qt.Equals, testString2)
}

func TestReadLarge(t *testing.T) {
	c := qt.New(t)
	large := strings.Repeat("teapot ", 100000)
	data := buildArchive(c, map[string]string{"big": large, "empty": ""})
	c.Assert(len(data) < len(large), qt.IsTrue)

	ar, err := kar.Open(bytes.NewReader(data))
	c.Assert(err, qt.IsNil)

	got, err := ar.ReadAll("big")
	c.Assert(err, qt.IsNil)
	c.Assert(string(got) == large, qt.IsTrue)

	got, err = ar.ReadAll("empty")
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.HasLen, 0)
}

func TestConcurrentRead(t *testing.T) {
	c := qt.New(t)
	data := buildArchive(c, map[string]string{"test": testString1, "test2": testString2})
	ar, err := kar.Open(bytes.NewReader(data))
	c.Assert(err, qt.IsNil)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for idx := 0; idx < 20; idx++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			name, want := "test", testString1
			if idx%2 == 1 {
				name, want = "test2", testString2
			}
			got, err := ar.ReadAll(name)
			if err != nil {
				errs <- err
			} else if string(got) != want {
				errs <- errors.New("mismatch in " + name)
			}
		}(idx)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		c.Error(err)
	}
}

func TestMissingFile(t *testing.T) {
	c := qt.New(t)
	data := buildArchive(c, map[string]string{"test": testString1})
	ar, err := kar.Open(bytes.NewReader(data))
	c.Assert(err, qt.IsNil)

	_, err = ar.Open("nope")
	c.Assert(errors.Is(err, fs.ErrNotExist), qt.IsTrue)
	_, err = ar.ReadAll("nope")
	c.Assert(errors.Is(err, fs.ErrNotExist), qt.IsTrue)
}

func TestOpenRejectsGarbage(t *testing.T) {
	c := qt.New(t)

	_, err := kar.Open(strings.NewReader("PK\x03\x04 this is a zip"))
	c.Assert(err, qt.Equals, kar.ErrFileFormat)

	_, err = kar.Open(strings.NewReader("KA"))
	c.Assert(err, qt.Equals, kar.ErrFileFormat)

	data := buildArchive(c, map[string]string{"test": testString1})
	_, err = kar.Open(bytes.NewReader(data[:len(data)-4]))
	c.Assert(errors.Is(err, kar.ErrFileFormat), qt.IsTrue)
}

func TestBuilderWrittenOnce(t *testing.T) {
	c := qt.New(t)
	builder, err := kar.NewBuilder(kar.Header{Version: 1})
	c.Assert(err, qt.IsNil)
	c.Assert(builder.Add("a", strings.NewReader("a")), qt.IsNil)
	c.Assert(builder.Add("a", strings.NewReader("b")), qt.IsNil)
	c.Assert(builder.Len(), qt.Equals, 1)

	_, err = builder.WriteTo(io.Discard)
	c.Assert(err, qt.IsNil)
	_, err = builder.WriteTo(io.Discard)
	c.Assert(err, qt.Equals, kar.ErrClosed)
	c.Assert(builder.Add("b", strings.NewReader("b")), qt.Equals, kar.ErrClosed)
}
