// Package packager builds the archive a player downloads for a game.
package packager

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Excluded reports whether a file stays on the server. Server-side config and
// compiled python caches are never shipped to players.
func Excluded(name string) bool {
	return name == "server_config.json" || strings.HasSuffix(name, ".pyc")
}

// Archive is a finished zip spooled to a temporary file.
type Archive struct {
	file *os.File
	size int64
}

// Size is the archive length in bytes.
func (a *Archive) Size() int64 { return a.size }

// Reader returns the archive contents from the start.
func (a *Archive) Reader() (io.Reader, error) {
	if _, err := a.file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return a.file, nil
}

// Close removes the temporary file.
func (a *Archive) Close() error {
	name := a.file.Name()
	err := a.file.Close()
	if rmErr := os.Remove(name); rmErr != nil && err == nil {
		err = rmErr
	}
	return err
}

// Zip packs every regular file under dir, with paths relative to dir, into a
// deflated archive in tmpDir (os.TempDir when empty).
func Zip(dir, tmpDir string) (*Archive, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	f, err := os.CreateTemp(tmpDir, "download-*.zip")
	if err != nil {
		return nil, fmt.Errorf("create temp archive: %w", err)
	}
	a := &Archive{file: f}

	if err := writeZip(f, dir); err != nil {
		_ = a.Close()
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.size = st.Size()
	return a, nil
}

func writeZip(w io.Writer, dir string) error {
	zw := zip.NewWriter(w)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() || Excluded(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		return addFile(zw, path, filepath.ToSlash(rel))
	})
	if err != nil {
		return fmt.Errorf("pack %s: %w", dir, err)
	}
	return zw.Close()
}

func addFile(zw *zip.Writer, path, name string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	st, err := src.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(st)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	dst, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	return err
}
