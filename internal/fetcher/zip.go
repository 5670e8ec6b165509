package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// ExtractZIP unpacks the regular files of an archive into destDir with their
// directories flattened. When exts is non-empty only names with one of those
// extensions (case-insensitive, with the dot) are kept. macOS metadata
// entries are always skipped. Returns the written paths in archive order.
func ExtractZIP(zipPath, destDir string, exts ...string) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrapf(err, "zip: open %s", zipPath)
	}
	defer r.Close() //nolint:errcheck

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "zip: create %s", destDir)
	}

	var written []string
	for _, f := range r.File {
		name := filepath.Base(f.Name)
		if f.FileInfo().IsDir() || !wanted(f.Name, exts) {
			continue
		}
		dest := filepath.Join(destDir, name)
		if filepath.Dir(dest) != filepath.Clean(destDir) {
			return written, eris.Errorf("zip: illegal path %q", f.Name)
		}
		if err := writeEntry(f, dest); err != nil {
			return written, err
		}
		written = append(written, dest)
	}
	return written, nil
}

func wanted(entry string, exts []string) bool {
	name := filepath.Base(entry)
	if strings.HasPrefix(entry, "__MACOSX/") || strings.HasPrefix(name, "._") || name == ".DS_Store" {
		return false
	}
	if len(exts) == 0 {
		return true
	}
	for _, ext := range exts {
		if strings.EqualFold(filepath.Ext(name), ext) {
			return true
		}
	}
	return false
}

func writeEntry(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return eris.Wrapf(err, "zip: open entry %s", f.Name)
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(dest)
	if err != nil {
		return eris.Wrapf(err, "zip: create %s", dest)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close() //nolint:errcheck
		return eris.Wrapf(err, "zip: write %s", dest)
	}
	return eris.Wrapf(out.Close(), "zip: close %s", dest)
}
