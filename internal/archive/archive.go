// Package archive compresses and extracts single-entry zip archives, the
// container format of uploaded bulk files and downloaded result files.
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
)

// ErrEntryCount is returned when an archive does not hold exactly one file.
var ErrEntryCount = errors.New("archive must contain exactly one file")

var zipMagic = []byte("PK\x03\x04")

// Codec is the archive surface used by operations and the service manager.
type Codec interface {
	Compress(src, dst string) error
	Extract(src, dir string) (string, error)
}

// Zip implements Codec with the zip format.
type Zip struct{}

var _ Codec = Zip{}

// IsZip reports whether the file at path starts with a zip local file header.
func IsZip(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	buf := make([]byte, len(zipMagic))
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return bytes.Equal(buf[:n], zipMagic), nil
}

// Compress writes src into a new archive at dst as its only entry, named after
// src's base name.
func (Zip) Compress(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create archive %s: %w", dst, err)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close archive %s: %w", dst, cerr)
		}
		if err != nil {
			os.Remove(dst)
		}
	}()

	zw := zip.NewWriter(out)
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("failed to build zip header: %w", err)
	}
	hdr.Name = filepath.Base(src)
	hdr.Method = zip.Deflate
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("failed to create zip entry: %w", err)
	}
	if _, err := io.Copy(w, in); err != nil {
		return fmt.Errorf("failed to compress %s: %w", src, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish archive %s: %w", dst, err)
	}
	return nil
}

// Extract writes the only entry of the archive at src into dir and returns the
// extracted file's path. Directory components of the entry name are dropped.
func (Zip) Extract(src, dir string) (path string, err error) {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return "", fmt.Errorf("failed to open archive %s: %w", src, err)
	}
	defer zr.Close()

	var files []*zip.File
	for _, f := range zr.File {
		if !f.FileInfo().IsDir() {
			files = append(files, f)
		}
	}
	if len(files) != 1 {
		return "", fmt.Errorf("%s has %d files: %w", src, len(files), ErrEntryCount)
	}
	entry := files[0]

	name := filepath.Base(filepath.FromSlash(entry.Name))
	if name == "." || name == string(filepath.Separator) {
		return "", fmt.Errorf("invalid entry name %q in %s", entry.Name, src)
	}
	path = filepath.Join(dir, name)

	rc, err := entry.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open entry %s: %w", entry.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
		if err != nil {
			os.Remove(path)
			path = ""
		}
	}()
	if _, err := io.Copy(out, rc); err != nil {
		return "", fmt.Errorf("failed to extract %s: %w", entry.Name, err)
	}
	return path, nil
}
