// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package stage

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/bzip2"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// maxFileSize bounds one extracted file: 4 GiB. The container formats
// place no limit on decompression amplification, so the cap keeps a
// crafted archive from filling the disk.
const maxFileSize int64 = 4 << 30

// tarSuffixes are the archive name endings handled as possibly
// compressed tar streams.
var tarSuffixes = []string{
	".tar", ".tar.gz", ".tgz", ".tar.bz2", ".tbz2",
	".tar.xz", ".txz", ".tar.zst", ".tar.lz4",
}

// Unpack extracts an archive into destDir. The container and
// compression formats are chosen by the archive name's suffix: tar
// (optionally gzip, bzip2, xz, zstd, or lz4 compressed) and zip are
// supported. When every archive entry lives under a single top-level
// directory, the conventional name-version/ wrapper of release
// tarballs, that directory is stripped so the source tree lands
// directly in destDir. A name with no recognized suffix is written to
// destDir as a single file.
func Unpack(data []byte, name, destDir string) error {
	lower := strings.ToLower(name)
	switch {
	case isTarName(lower):
		return unpackTar(data, lower, destDir)
	case strings.HasSuffix(lower, ".zip"):
		return unpackZip(data, destDir)
	}

	base := filepath.Base(filepath.FromSlash(name))
	if base == "." || base == string(filepath.Separator) {
		return fmt.Errorf("cannot derive a file name from %q", name)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("creating extraction root: %w", err)
	}
	return writeExtractedFile(filepath.Join(destDir, base), bytes.NewReader(data), 0o644)
}

func isTarName(lower string) bool {
	for _, suffix := range tarSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// decompressor wraps r in the decoder the archive suffix names. The
// cleanup func releases decoder resources and must run after reading
// finishes.
func decompressor(lower string, r io.Reader) (io.Reader, func(), error) {
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		return zr, func() { zr.Close() }, nil
	case strings.HasSuffix(lower, ".tar.bz2"), strings.HasSuffix(lower, ".tbz2"):
		return bzip2.NewReader(r), func() {}, nil
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".txz"):
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("opening xz stream: %w", err)
		}
		return xr, func() {}, nil
	case strings.HasSuffix(lower, ".tar.zst"):
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("opening zstd stream: %w", err)
		}
		return zr, zr.Close, nil
	case strings.HasSuffix(lower, ".tar.lz4"):
		return lz4.NewReader(r), func() {}, nil
	default:
		return r, func() {}, nil
	}
}

// pendingLink is a symlink or hard link deferred to the end of
// extraction. Creating links only after every regular file exists
// means no archive entry is ever written through a link.
type pendingLink struct {
	path   string
	target string
	hard   bool
}

func unpackTar(data []byte, lower, destDir string) error {
	names, err := tarEntryNames(data, lower)
	if err != nil {
		return err
	}
	top := commonTopDir(names)

	reader, cleanup, err := decompressor(lower, bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer cleanup()

	tr := tar.NewReader(reader)
	var links []pendingLink
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading tar archive: %w", err)
		}
		if header.Typeflag == tar.TypeXGlobalHeader {
			continue
		}

		name, ok := strippedName(header.Name, top)
		if !ok {
			continue
		}
		if !filepath.IsLocal(name) {
			return fmt.Errorf("archive entry %q escapes the extraction root", header.Name)
		}
		target := filepath.Join(destDir, name)

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("creating directory %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("creating directory for %s: %w", target, err)
			}
			if err := writeExtractedFile(target, tr, filePerm(header.FileInfo().Mode())); err != nil {
				return err
			}
		case tar.TypeSymlink:
			links = append(links, pendingLink{path: target, target: header.Linkname})
		case tar.TypeLink:
			linkName, ok := strippedName(header.Linkname, top)
			if !ok || !filepath.IsLocal(linkName) {
				return fmt.Errorf("hard link %q targets %q outside the archive", header.Name, header.Linkname)
			}
			links = append(links, pendingLink{path: target, target: filepath.Join(destDir, linkName), hard: true})
		default:
			// Device nodes and FIFOs have no place in a source tree.
		}
	}

	return createLinks(links)
}

// tarEntryNames decodes the archive once for its entry names only, so
// the common top directory is known before extraction begins.
func tarEntryNames(data []byte, lower string) ([]string, error) {
	reader, cleanup, err := decompressor(lower, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer cleanup()

	tr := tar.NewReader(reader)
	var names []string
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading tar archive: %w", err)
		}
		if header.Typeflag == tar.TypeXGlobalHeader {
			continue
		}
		names = append(names, header.Name)
	}
	return names, nil
}

func unpackZip(data []byte, destDir string) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("opening zip archive: %w", err)
	}

	names := make([]string, 0, len(zr.File))
	for _, file := range zr.File {
		names = append(names, file.Name)
	}
	top := commonTopDir(names)

	var links []pendingLink
	for _, file := range zr.File {
		name, ok := strippedName(file.Name, top)
		if !ok {
			continue
		}
		if !filepath.IsLocal(name) {
			return fmt.Errorf("archive entry %q escapes the extraction root", file.Name)
		}
		target := filepath.Join(destDir, name)
		mode := file.Mode()

		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("creating directory %s: %w", target, err)
			}
		case mode&fs.ModeSymlink != 0:
			// Zip stores the link target as the entry content.
			linkTarget, err := readZipEntry(file)
			if err != nil {
				return err
			}
			links = append(links, pendingLink{path: target, target: string(linkTarget)})
		default:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("creating directory for %s: %w", target, err)
			}
			rc, err := file.Open()
			if err != nil {
				return fmt.Errorf("opening zip entry %q: %w", file.Name, err)
			}
			err = writeExtractedFile(target, rc, filePerm(mode))
			rc.Close()
			if err != nil {
				return err
			}
		}
	}

	return createLinks(links)
}

func readZipEntry(file *zip.File) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("opening zip entry %q: %w", file.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxFileSize))
	if err != nil {
		return nil, fmt.Errorf("reading zip entry %q: %w", file.Name, err)
	}
	return data, nil
}

func createLinks(links []pendingLink) error {
	for _, link := range links {
		if err := os.MkdirAll(filepath.Dir(link.path), 0o755); err != nil {
			return fmt.Errorf("creating directory for %s: %w", link.path, err)
		}
		if link.hard {
			if err := os.Link(link.target, link.path); err != nil {
				return fmt.Errorf("creating hard link: %w", err)
			}
			continue
		}
		if err := os.Symlink(link.target, link.path); err != nil {
			return fmt.Errorf("creating symlink: %w", err)
		}
	}
	return nil
}

// commonTopDir returns the top-level directory shared by every archive
// entry, or "" when there is none. Release tarballs conventionally
// wrap their tree in a name-version/ directory; recognizing it lets
// extraction produce the same layout whether or not the wrapper is
// present. A lone top-level file is not a wrapper.
func commonTopDir(names []string) string {
	top := ""
	sawChild := false
	for _, name := range names {
		cleaned := path.Clean(strings.TrimPrefix(name, "/"))
		if cleaned == "." {
			continue
		}
		first, rest, found := strings.Cut(cleaned, "/")
		if first == ".." {
			return ""
		}
		if found && rest != "" {
			sawChild = true
		}
		if top == "" {
			top = first
			continue
		}
		if first != top {
			return ""
		}
	}
	if !sawChild {
		return ""
	}
	return top
}

// strippedName converts an archive entry name to a destination-relative
// path, removing the shared top directory. ok is false for the top
// directory entry itself, which has no destination equivalent.
func strippedName(name, top string) (string, bool) {
	cleaned := path.Clean(strings.TrimPrefix(name, "/"))
	if cleaned == "." {
		return "", false
	}
	if top != "" {
		if cleaned == top {
			return "", false
		}
		if rest, found := strings.CutPrefix(cleaned, top+"/"); found {
			cleaned = rest
		}
	}
	return filepath.FromSlash(cleaned), true
}

// filePerm converts an archive mode to permission bits for an
// extracted file. Archives written without mode information yield
// plain read-write files.
func filePerm(mode fs.FileMode) fs.FileMode {
	perm := mode.Perm()
	if perm == 0 {
		return 0o644
	}
	return perm
}

func writeExtractedFile(target string, r io.Reader, perm fs.FileMode) error {
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("creating extracted file: %w", err)
	}
	written, err := io.Copy(f, io.LimitReader(r, maxFileSize+1))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("writing %s: %w", target, err)
	}
	if written > maxFileSize {
		return fmt.Errorf("extracted file %s exceeds the %d byte limit", target, maxFileSize)
	}
	return nil
}
