package inspect

import (
	"archive/tar"
	"archive/zip"
	"bufio"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

type Format int

const (
	FormatUnknown Format = iota
	FormatZip
	FormatTar
	FormatTarGz
)

func (f Format) String() string {
	switch f {
	case FormatZip:
		return "zip"
	case FormatTar:
		return "tar"
	case FormatTarGz:
		return "tar.gz"
	default:
		return "unknown"
	}
}

// DetectFormat looks only at the file name suffix.
func DetectFormat(path string) Format {
	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.HasSuffix(name, ".zip"):
		return FormatZip
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return FormatTarGz
	case strings.HasSuffix(name, ".tar"):
		return FormatTar
	default:
		return FormatUnknown
	}
}

// DefaultMaxExtractBytes caps the total size written to the workspace.
const DefaultMaxExtractBytes int64 = 512 << 20

var errTooLarge = errors.New("archive exceeds extraction limit")

type extractor struct {
	dir      string
	maxBytes int64
	written  int64
}

// extract unpacks path into dir. Only regular files and directories are
// materialized; every entry must resolve inside dir.
func extract(path string, format Format, dir string, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxExtractBytes
	}
	x := &extractor{dir: dir, maxBytes: maxBytes}
	switch format {
	case FormatZip:
		return x.zip(path)
	case FormatTar, FormatTarGz:
		return x.tar(path)
	default:
		return ErrUnsupportedFormat
	}
}

func (x *extractor) zip(path string) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return err
	}
	defer zr.Close()

	for _, f := range zr.File {
		mode := f.Mode()
		switch {
		case mode.IsDir():
			if _, err := x.target(f.Name); err != nil {
				return err
			}
			continue
		case !mode.IsRegular():
			continue
		}
		if err := x.writeZipEntry(f); err != nil {
			return err
		}
	}
	return nil
}

func (x *extractor) writeZipEntry(f *zip.File) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%s: %w", f.Name, err)
	}
	defer rc.Close()
	return x.write(f.Name, rc)
}

var errNoTarHeader = errors.New("no tar header")

// tar reads plain and gzip-compressed tarballs; compression is detected from
// the stream header rather than the suffix.
func (x *extractor) tar(path string) error {
	fh, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fh.Close()

	br := bufio.NewReader(fh)
	var r io.Reader = br
	if magic, _ := br.Peek(2); len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return err
		}
		defer gz.Close()
		r = gz
	}

	tr := tar.NewReader(r)
	for entries := 0; ; entries++ {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			if entries == 0 {
				return errNoTarHeader
			}
			break
		}
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if _, err := x.target(hdr.Name); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := x.write(hdr.Name, tr); err != nil {
				return err
			}
		}
	}
	return nil
}

// target resolves name inside the workspace and creates its parent dirs.
func (x *extractor) target(name string) (string, error) {
	clean := filepath.FromSlash(strings.TrimSuffix(name, "/"))
	if clean == "" || clean == "." {
		return x.dir, nil
	}
	if !filepath.IsLocal(clean) {
		return "", fmt.Errorf("entry %q escapes workspace", name)
	}
	dst := filepath.Join(x.dir, clean)
	if strings.HasSuffix(name, "/") {
		return dst, os.MkdirAll(dst, 0o755)
	}
	return dst, os.MkdirAll(filepath.Dir(dst), 0o755)
}

func (x *extractor) write(name string, r io.Reader) error {
	dst, err := x.target(name)
	if err != nil {
		return err
	}
	if st, err := os.Lstat(dst); err == nil && !st.Mode().IsRegular() {
		return fmt.Errorf("entry %q collides with %s", name, st.Mode().Type())
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	remaining := x.maxBytes - x.written
	n, err := io.Copy(out, io.LimitReader(r, remaining+1))
	x.written += n
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if x.written > x.maxBytes {
		return errTooLarge
	}
	return nil
}

// file is one extracted image in walk order.
type file struct {
	Rel  string
	Path string
}

// walk lists regular, non-hidden files under dir in lexical order.
func walk(dir string) ([]file, error) {
	var out []file
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == dir {
			return nil
		}
		if hidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		out = append(out, file{Rel: filepath.ToSlash(rel), Path: p})
		return nil
	})
	return out, err
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".") || name == "__MACOSX"
}
