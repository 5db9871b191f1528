// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/devblok/mydemo/utility/kar"
	"github.com/mitchellh/go-homedir"
	"golang.org/x/exp/mmap"
)

func currentUserName() string {
	u, err := user.Current()
	if err != nil || u.Name == "" {
		return "unknown"
	}
	return u.Name
}

func main() {
	os.Exit(run())
}

func run() int {
	fs := flag.NewFlagSet("kar", flag.ContinueOnError)
	var (
		author   = fs.String("author", currentUserName(), "Set the author of the package when compressing")
		version  = fs.Int64("version", 1, "Archive version number to create it with")
		extract  = fs.String("e", "", "Extract the file given")
		compress = fs.String("c", "", "Compress the given file/folder")
		list     = fs.String("l", "", "List the contents of the file given")
		dstFile  = fs.String("f", "out.kar", "Destination file")
		dstDir   = fs.String("o", ".", "Destination directory when extracting")
		silent   = fs.Bool("s", false, "Silent")
	)
	if err := fs.Parse(os.Args[1:]); err != nil {
		return 2
	}

	ops := 0
	for _, op := range []string{*extract, *compress, *list} {
		if op != "" {
			ops++
		}
	}
	if ops > 1 {
		fmt.Fprintln(os.Stderr, "kar: only one operation at a time")
		return 2
	}

	var err error
	switch {
	case *compress != "":
		header := kar.Header{
			Author:      *author,
			DateCreated: time.Now().Unix(),
			Version:     *version,
		}
		err = compressFiles(*compress, *dstFile, header, *silent)
	case *extract != "":
		err = extractFiles(*extract, *dstDir, *silent)
	case *list != "":
		err = listFiles(*list)
	default:
		fs.SetOutput(os.Stderr)
		fs.PrintDefaults()
		return 2
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "kar:", err)
		return 1
	}
	return 0
}

func compressFiles(src, dst string, header kar.Header, silent bool) error {
	src, err := homedir.Expand(src)
	if err != nil {
		return err
	}
	dst, err = homedir.Expand(dst)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dst); err == nil {
		return errors.New("destination file exists, will not overwrite")
	}

	var filesToCompress []string
	err = filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		filesToCompress = append(filesToCompress, path)
		return nil
	})
	if err != nil {
		return err
	}
	if len(filesToCompress) == 0 {
		return fmt.Errorf("nothing to compress in %s", src)
	}

	karBuilder, err := kar.NewBuilder(header)
	if err != nil {
		return err
	}

	for _, ftc := range filesToCompress {
		name, err := archiveName(src, ftc)
		if err != nil {
			return err
		}
		f, err := os.Open(ftc)
		if err != nil {
			return err
		}
		err = karBuilder.Add(name, f)
		f.Close()
		if err != nil {
			return err
		}
		if !silent {
			fmt.Println("a", name)
		}
	}

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := karBuilder.WriteTo(out); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

// archiveName is the slash separated path of file relative to root.
// A single file is stored under its base name.
func archiveName(root, file string) (string, error) {
	if root == file {
		return filepath.Base(file), nil
	}
	rel, err := filepath.Rel(root, file)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

func openArchive(path string) (*kar.Archive, io.Closer, error) {
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, nil, err
	}
	r, err := mmap.Open(path)
	if err != nil {
		return nil, nil, err
	}
	ar, err := kar.Open(r)
	if err != nil {
		r.Close()
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return ar, r, nil
}

func listFiles(path string) error {
	ar, closer, err := openArchive(path)
	if err != nil {
		return err
	}
	defer closer.Close()

	h := ar.Header()
	fmt.Printf("author: %s\nversion: %d\ncreated: %s\n", h.Author, h.Version,
		time.Unix(h.DateCreated, 0).UTC().Format(time.RFC3339))
	for _, name := range ar.Names() {
		entry, err := ar.Stat(name)
		if err != nil {
			return err
		}
		fmt.Printf("%10d %10d %s\n", entry.Size, entry.CompressedSize, name)
	}
	return nil
}

func extractFiles(path, dir string, silent bool) error {
	ar, closer, err := openArchive(path)
	if err != nil {
		return err
	}
	defer closer.Close()

	dir, err = homedir.Expand(dir)
	if err != nil {
		return err
	}
	for _, name := range ar.Names() {
		target := filepath.Join(dir, filepath.FromSlash(name))
		rel, err := filepath.Rel(dir, target)
		if err != nil || rel == ".." || filepath.IsAbs(rel) || len(rel) > 2 && rel[:3] == ".."+string(filepath.Separator) {
			return fmt.Errorf("%s escapes the destination directory", name)
		}
		data, err := ar.ReadAll(name)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return err
		}
		if !silent {
			fmt.Println("x", name)
		}
	}
	return nil
}
